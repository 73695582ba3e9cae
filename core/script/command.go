// Package script parses cmdscript text files into typed command
// sequences and folds their CFG_* prelude into a session configuration.
package script

import "time"

// Command is one parsed, validated script instruction. Concrete types
// carry only the fields their keyword requires and are immutable once
// parsed. Line reports the 1-based source line for diagnostics.
type Command interface {
	Line() int
}

type pos struct{ line int }

func (p pos) Line() int { return p.line }

// ClientID sets the MQTT client identifier (CFG_CLIENT_ID).
type ClientID struct {
	pos
	ID string
}

// CleanSession toggles the clean-session flag (CFG_CLEAN_SESSION).
type CleanSession struct {
	pos
	Enabled bool
}

// Keepalive sets the keepalive interval (CFG_KEEPALIVE).
type Keepalive struct {
	pos
	Seconds int
}

// Credentials sets the username/password pair (CFG_USER).
type Credentials struct {
	pos
	Username string
	Password string
}

// UseTLS toggles TLS on the connection (CFG_USE_TLS).
type UseTLS struct {
	pos
	Enabled bool
}

// TLSCert sets the client certificate and key paths (CFG_TLS_CERT).
type TLSCert struct {
	pos
	CertFile string
	KeyFile  string
}

// PubEach registers a standing periodic publication (CFG_PUB_EACH).
type PubEach struct {
	pos
	Interval time.Duration
	QoS      byte
	Topic    string
	Payload  string
}

// Connect establishes the broker session (CONNECT).
type Connect struct {
	pos
	Host string
	Port int
}

// Disconnect closes the broker session (DISCONNECT).
type Disconnect struct {
	pos
}

// Delay suspends the main command sequence (DELAY, DELAY_MS, DELAY_H;
// the unit is normalized at parse time).
type Delay struct {
	pos
	Duration time.Duration
}

// Pub publishes a single message (PUB).
type Pub struct {
	pos
	QoS     byte
	Topic   string
	Payload string
}

// Sub registers a standing subscription logged to a file (SUB).
type Sub struct {
	pos
	QoS     byte
	Topic   string
	LogFile string
}

// Keyword returns the script keyword that produced cmd.
func Keyword(cmd Command) string {
	switch cmd.(type) {
	case ClientID:
		return "CFG_CLIENT_ID"
	case CleanSession:
		return "CFG_CLEAN_SESSION"
	case Keepalive:
		return "CFG_KEEPALIVE"
	case Credentials:
		return "CFG_USER"
	case UseTLS:
		return "CFG_USE_TLS"
	case TLSCert:
		return "CFG_TLS_CERT"
	case PubEach:
		return "CFG_PUB_EACH"
	case Connect:
		return "CONNECT"
	case Disconnect:
		return "DISCONNECT"
	case Delay:
		return "DELAY"
	case Pub:
		return "PUB"
	case Sub:
		return "SUB"
	}
	return ""
}

// IsConnectionConfig reports whether cmd is one of the CFG_* keywords
// that configure the connection itself. CFG_PUB_EACH is workload, not
// connection config, and is excluded on purpose.
func IsConnectionConfig(cmd Command) bool {
	switch cmd.(type) {
	case ClientID, CleanSession, Keepalive, Credentials, UseTLS, TLSCert:
		return true
	}
	return false
}
