package mqtt

import (
	"fmt"
	"net"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/cmdscript/cmdscript/core/mqtt"
	"github.com/cmdscript/cmdscript/infra/logger"
	"github.com/cmdscript/cmdscript/internal/eventbus"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// startBroker runs an in-process MQTT broker for the duration of the test.
func startBroker(t *testing.T) int {
	t.Helper()
	port := freePort(t)
	server := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	tcp := listeners.NewTCP(listeners.Config{
		ID:      "test",
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})
	require.NoError(t, server.AddListener(tcp))
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(func() { _ = server.Close() })
	// give the listener a moment to come up
	time.Sleep(50 * time.Millisecond)
	return port
}

func newSession(t *testing.T) (*PahoSession, *eventbus.Bus[coremqtt.Message], *eventbus.Bus[coremqtt.LinkEvent]) {
	t.Helper()
	msgs := eventbus.New[coremqtt.Message](64)
	links := eventbus.New[coremqtt.LinkEvent](8)
	t.Cleanup(func() {
		msgs.Close()
		links.Close()
	})
	cfg := coremqtt.SessionConfig{
		ClientID:     "cmdscript-test",
		CleanSession: true,
		KeepaliveSec: 30,
	}
	s := NewPahoSession(cfg, Options{ConnectTimeout: 3 * time.Second}, msgs, links, logger.NopLogger{})
	return s, msgs, links
}

func TestPahoSessionConnectPublishSubscribe(t *testing.T) {
	port := startBroker(t)
	s, msgs, _ := newSession(t)
	ch := msgs.Subscribe()

	require.NoError(t, s.Connect("127.0.0.1", port))
	require.True(t, s.IsConnected())
	t.Cleanup(s.Disconnect)

	require.NoError(t, s.Subscribe("cmdscript/test/#", 1))
	require.NoError(t, s.Publish("cmdscript/test/a", 1, "payload with spaces"))

	select {
	case m := <-ch:
		require.Equal(t, "cmdscript/test/#", m.Route)
		require.Equal(t, "cmdscript/test/a", m.Topic)
		require.Equal(t, "payload with spaces", m.Payload)
		require.False(t, m.ReceivedAt.IsZero())
	case <-time.After(3 * time.Second):
		t.Fatalf("no message delivered")
	}
}

func TestPahoSessionConnectRefused(t *testing.T) {
	s, _, _ := newSession(t)
	err := s.Connect("127.0.0.1", freePort(t))
	require.Error(t, err)
	require.False(t, s.IsConnected())
}

func TestPahoSessionPublishWithoutConnect(t *testing.T) {
	s, _, _ := newSession(t)
	require.ErrorIs(t, s.Publish("t", 0, "x"), coremqtt.ErrNotConnected)
	require.ErrorIs(t, s.Subscribe("t", 0), coremqtt.ErrNotConnected)
}

func TestPahoSessionDisconnectIdempotent(t *testing.T) {
	port := startBroker(t)
	s, _, _ := newSession(t)
	require.NoError(t, s.Connect("127.0.0.1", port))
	s.Disconnect()
	s.Disconnect()
	require.False(t, s.IsConnected())
}

type stubToken struct{}

func (stubToken) Wait() bool                     { return true }
func (stubToken) WaitTimeout(time.Duration) bool { return true }
func (stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (stubToken) Error() error { return nil }

type stubClient struct {
	connected   bool
	disconnects int
}

func (c *stubClient) IsConnected() bool { return c.connected }
func (c *stubClient) Connect() paho.Token {
	c.connected = true
	return stubToken{}
}
func (c *stubClient) Disconnect(uint) {
	c.connected = false
	c.disconnects++
}
func (c *stubClient) Publish(string, byte, bool, interface{}) paho.Token { return stubToken{} }
func (c *stubClient) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return stubToken{}
}

func TestConnectClosesPreviousClient(t *testing.T) {
	var clients []*stubClient
	orig := newPahoClient
	newPahoClient = func(*paho.ClientOptions) pahoClient {
		c := &stubClient{}
		clients = append(clients, c)
		return c
	}
	t.Cleanup(func() { newPahoClient = orig })

	s, _, _ := newSession(t)
	require.NoError(t, s.Connect("127.0.0.1", 1883))
	require.NoError(t, s.Connect("127.0.0.1", 1884))
	require.Len(t, clients, 2)
	require.Equal(t, 1, clients[0].disconnects)
	require.False(t, clients[0].IsConnected())
	require.True(t, clients[1].IsConnected())
	require.True(t, s.IsConnected())
}

func TestLoadTLSConfigMissingFiles(t *testing.T) {
	_, err := loadTLSConfig(coremqtt.SessionConfig{UseTLS: true})
	require.Error(t, err)
	_, err = loadTLSConfig(coremqtt.SessionConfig{UseTLS: true, TLSCert: "nope.pem", TLSKey: "nope.key"})
	require.Error(t, err)
}
