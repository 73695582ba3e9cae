package engine

import "errors"

// ErrNoSession is returned when PUB, SUB or DISCONNECT executes without
// a live session: before the first CONNECT, or after a scripted
// DISCONNECT that no later CONNECT re-established.
var ErrNoSession = errors.New("no session established, CONNECT first")

// ErrConfigAfterConnect is returned when a connection-config CFG_*
// command appears at or after the first CONNECT.
var ErrConfigAfterConnect = errors.New("connection config not allowed after CONNECT")
