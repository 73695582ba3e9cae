package mqtt

import "errors"

// ErrNotConnected is returned by Publish and Subscribe when no live
// session exists.
var ErrNotConnected = errors.New("not connected to broker")
