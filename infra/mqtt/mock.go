package mqtt

import (
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/cmdscript/cmdscript/core/mqtt"
	"github.com/cmdscript/cmdscript/internal/eventbus"
)

// MockSession is an in-memory session used by engine tests. It records
// every call in order and can inject inbound messages and link events.
type MockSession struct {
	mu        sync.Mutex
	calls     []string
	connected bool

	ConnectErr   error
	PublishErr   map[string]error // keyed by topic
	SubscribeErr map[string]error // keyed by filter

	msgs  *eventbus.Bus[coremqtt.Message]
	links *eventbus.Bus[coremqtt.LinkEvent]
}

// NewMockSession creates a MockSession delivering on the given buses.
func NewMockSession(msgs *eventbus.Bus[coremqtt.Message], links *eventbus.Bus[coremqtt.LinkEvent]) *MockSession {
	return &MockSession{
		PublishErr:   make(map[string]error),
		SubscribeErr: make(map[string]error),
		msgs:         msgs,
		links:        links,
	}
}

func (m *MockSession) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

// Calls returns the ordered call trace.
func (m *MockSession) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockSession) Connect(host string, port int) error {
	m.record(fmt.Sprintf("connect %s:%d", host, port))
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	m.links.Publish(coremqtt.LinkEvent{State: coremqtt.LinkUp, At: time.Now().UTC()})
	return nil
}

func (m *MockSession) Disconnect() {
	m.record("disconnect")
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *MockSession) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockSession) Publish(topic string, qos byte, payload string) error {
	if !m.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	if err := m.PublishErr[topic]; err != nil {
		m.record(fmt.Sprintf("publish-fail %d %s %s", qos, topic, payload))
		return err
	}
	m.record(fmt.Sprintf("publish %d %s %s", qos, topic, payload))
	return nil
}

func (m *MockSession) Subscribe(filter string, qos byte) error {
	if !m.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	if err := m.SubscribeErr[filter]; err != nil {
		return err
	}
	m.record(fmt.Sprintf("subscribe %d %s", qos, filter))
	return nil
}

// Inject delivers an inbound message as if it arrived on the wire.
func (m *MockSession) Inject(route, topic, payload string) {
	m.msgs.Publish(coremqtt.Message{Route: route, Topic: topic, Payload: payload, ReceivedAt: time.Now().UTC()})
}

// DropLink simulates a mid-run connection loss.
func (m *MockSession) DropLink(err error) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.links.Publish(coremqtt.LinkEvent{State: coremqtt.LinkLost, Err: err, At: time.Now().UTC()})
}

// PublishCount returns how many successful publishes hit topic.
func (m *MockSession) PublishCount(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	prefix := "publish "
	for _, c := range m.calls {
		if len(c) > len(prefix) && c[:len(prefix)] == prefix {
			var qos int
			var t string
			if _, err := fmt.Sscanf(c, "publish %d %s", &qos, &t); err == nil && t == topic {
				n++
			}
		}
	}
	return n
}
