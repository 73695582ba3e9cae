// Package mqtt adapts the Eclipse Paho client to the engine-facing
// session interface.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/cmdscript/cmdscript/core/mqtt"
	"github.com/cmdscript/cmdscript/infra/logger"
	"github.com/cmdscript/cmdscript/internal/eventbus"
)

// Options tunes adapter behavior independent of the script.
type Options struct {
	ConnectTimeout    time.Duration
	DisconnectQuiesce time.Duration
}

func (o *Options) setDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.DisconnectQuiesce <= 0 {
		o.DisconnectQuiesce = 250 * time.Millisecond
	}
}

// pahoClient is the slice of the Paho API the adapter uses, extracted
// so tests can substitute a fake.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newPahoClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoSession implements coremqtt.Session over Eclipse Paho. Inbound
// messages and link transitions fan out on the buses it is constructed
// with. Auto-reconnect stays off: reconnection is script policy, not
// adapter policy.
type PahoSession struct {
	cfg  coremqtt.SessionConfig
	opts Options
	log  logger.Logger

	msgs  *eventbus.Bus[coremqtt.Message]
	links *eventbus.Bus[coremqtt.LinkEvent]

	mu  sync.Mutex
	cli pahoClient
}

// NewPahoSession creates a disconnected session. The wire connection is
// only opened by Connect, driven by the script's CONNECT command.
func NewPahoSession(cfg coremqtt.SessionConfig, opts Options,
	msgs *eventbus.Bus[coremqtt.Message], links *eventbus.Bus[coremqtt.LinkEvent],
	log logger.Logger) *PahoSession {
	opts.setDefaults()
	return &PahoSession{cfg: cfg, opts: opts, msgs: msgs, links: links, log: log}
}

// Connect dials host:port, blocking until the session is live or the
// attempt fails.
func (s *PahoSession) Connect(host string, port int) error {
	opts, err := s.clientOptions(host, port)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// only one live session at a time: a scripted re-CONNECT replaces
	// the client, so close the old one before dialing
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(uint(s.opts.DisconnectQuiesce / time.Millisecond))
	}
	cli := newPahoClient(opts)
	token := cli.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect %s:%d: %w", host, port, err)
	}
	s.cli = cli
	s.log.Infof("connected to %s:%d as %s", host, port, s.cfg.ClientID)
	s.links.Publish(coremqtt.LinkEvent{State: coremqtt.LinkUp, At: time.Now().UTC()})
	return nil
}

func (s *PahoSession) clientOptions(host string, port int) (*paho.ClientOptions, error) {
	scheme := "tcp"
	if s.cfg.UseTLS {
		scheme = "ssl"
	}
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, host, port)).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(s.cfg.CleanSession).
		SetKeepAlive(time.Duration(s.cfg.KeepaliveSec) * time.Second).
		SetConnectTimeout(s.opts.ConnectTimeout).
		SetAutoReconnect(false)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	if s.cfg.UseTLS {
		tlsCfg, err := loadTLSConfig(s.cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		s.log.Errorf("connection lost: %v", err)
		s.links.Publish(coremqtt.LinkEvent{State: coremqtt.LinkLost, Err: err, At: time.Now().UTC()})
	}
	return opts, nil
}

// loadTLSConfig builds a client TLS configuration from the cert and key
// paths in the session config.
func loadTLSConfig(cfg coremqtt.SessionConfig) (*tls.Config, error) {
	if cfg.TLSCert == "" || cfg.TLSKey == "" {
		return nil, fmt.Errorf("tls enabled but no client cert/key configured")
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

// Disconnect closes the connection, idempotently.
func (s *PahoSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(uint(s.opts.DisconnectQuiesce / time.Millisecond))
		s.log.Infof("disconnected")
	}
}

// IsConnected reports whether a live session exists.
func (s *PahoSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cli != nil && s.cli.IsConnected()
}

// Publish blocks until the client accepts the message.
func (s *PahoSession) Publish(topic string, qos byte, payload string) error {
	s.mu.Lock()
	cli := s.cli
	s.mu.Unlock()
	if cli == nil || !cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	token := cli.Publish(topic, qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers filter; matching messages land on the message bus
// tagged with filter as their Route, so wildcard filters route
// correctly.
func (s *PahoSession) Subscribe(filter string, qos byte) error {
	s.mu.Lock()
	cli := s.cli
	s.mu.Unlock()
	if cli == nil || !cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	handler := func(_ paho.Client, m paho.Message) {
		s.msgs.Publish(coremqtt.Message{
			Route:      filter,
			Topic:      m.Topic(),
			Payload:    string(m.Payload()),
			ReceivedAt: time.Now().UTC(),
		})
	}
	token := cli.Subscribe(filter, qos, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}
