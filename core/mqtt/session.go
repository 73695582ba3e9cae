package mqtt

import "time"

// SessionConfig holds the connection parameters accumulated from a
// script's CFG_* commands. It is built once, before the first CONNECT,
// and never mutated afterwards.
type SessionConfig struct {
	ClientID     string `json:"client_id"`
	CleanSession bool   `json:"clean_session"`
	KeepaliveSec int    `json:"keepalive_sec"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	UseTLS       bool   `json:"use_tls"`
	TLSCert      string `json:"tls_cert"`
	TLSKey       string `json:"tls_key"`
}

// Message is one inbound publication delivered to a subscription.
type Message struct {
	// Route is the subscribed topic filter that matched. It may contain
	// wildcards and is the key the engine routes log writes by.
	Route      string
	Topic      string
	Payload    string
	ReceivedAt time.Time
}

// LinkState describes a session link transition.
type LinkState int

const (
	LinkUp LinkState = iota
	LinkLost
)

// LinkEvent reports a connection state change observed by the adapter.
type LinkEvent struct {
	State LinkState
	Err   error
	At    time.Time
}

// Session is the engine-facing surface of the external MQTT client.
// Inbound messages and link transitions are delivered asynchronously on
// the buses the adapter was constructed with; the adapter never retries
// on its own.
type Session interface {
	// Connect establishes the connection, blocking until the session is
	// live or an error occurs. TLS, credentials, keepalive and clean
	// session come from the SessionConfig.
	Connect(host string, port int) error

	// Disconnect closes the connection. It is idempotent.
	Disconnect()

	IsConnected() bool

	// Publish blocks until the client accepts the message for sending.
	Publish(topic string, qos byte, payload string) error

	// Subscribe registers the topic filter. Matching messages arrive on
	// the message bus tagged with the filter as their Route.
	Subscribe(filter string, qos byte) error
}
