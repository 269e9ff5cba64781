package panel

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyncapp/zync/host/internal/bridge"
	"github.com/zyncapp/zync/host/internal/infrastructure/config"
	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/protocol"
	"github.com/zyncapp/zync/host/internal/providers/remote"
	"github.com/zyncapp/zync/host/internal/providers/terminal"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

type recordingSink struct {
	writes chan string
}

func (s *recordingSink) WriteToTerminal(text string) { s.writes <- text }
func (s *recordingSink) SetStatusBar(string)         {}

func panelPlugin() types.Plugin {
	return types.Plugin{
		ID:    "git-panel",
		Name:  "Git",
		Panel: `<div id="log"></div>`,
		Style: `#log { font-family: monospace; }`,
	}
}

func newTestStack(t *testing.T, cfg config.RateLimitConfig, providers ...bridge.Provider) (*Manager, *httptest.Server) {
	t.Helper()
	reg := bridge.NewRegistry()
	for _, p := range providers {
		require.NoError(t, reg.Register(p))
	}
	m := NewManager(bridge.New(reg, logging.NewNop()), cfg, logging.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("/panels/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[2] != "ws" {
			http.NotFound(w, r)
			return
		}
		m.Attach(w, r, parts[1], r.URL.Query().Get("token"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(m.Shutdown)
	return m, srv
}

func dialSurface(t *testing.T, srv *httptest.Server, panelID, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/panels/" + panelID + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	data, err := protocol.Encode(env)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, ok := protocol.Decode(data)
	require.True(t, ok)
	return env
}

func TestComposedDocumentCarriesShimAndToken(t *testing.T) {
	m, _ := newTestStack(t, config.RateLimitConfig{})

	p, doc, err := m.Open(panelPlugin())
	require.NoError(t, err)

	assert.Contains(t, doc, `<div id="log"></div>`)
	assert.Contains(t, doc, "font-family: monospace")
	assert.Contains(t, doc, p.token)
	assert.Contains(t, doc, "window.zync")
}

func TestOpenRequiresPanelPayload(t *testing.T) {
	m, _ := newTestStack(t, config.RateLimitConfig{})

	_, _, err := m.Open(types.Plugin{ID: "headless", Logic: "1"})
	assert.Error(t, err)
}

func TestSurfaceRoundTrip(t *testing.T) {
	sink := &recordingSink{writes: make(chan string, 1)}
	m, srv := newTestStack(t, config.RateLimitConfig{}, terminal.NewProvider(sink))

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)

	conn, _, err := dialSurface(t, srv, p.ID, p.token)
	require.NoError(t, err)
	defer conn.Close()

	sendEnvelope(t, conn, protocol.Envelope{
		Type:    "zync:terminal:send",
		Payload: map[string]interface{}{"text": "git log\n", "requestId": "r1"},
	})

	resp := readEnvelope(t, conn)
	assert.Equal(t, "zync:terminal:send:response", resp.Type)
	assert.Equal(t, "r1", resp.RequestID())

	select {
	case text := <-sink.writes:
		assert.Equal(t, "git log\n", text)
	case <-time.After(time.Second):
		t.Fatal("terminal sink never received the text")
	}
}

func TestSecondUpgradeWithSameTokenRefused(t *testing.T) {
	m, srv := newTestStack(t, config.RateLimitConfig{})

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)

	first, _, err := dialSurface(t, srv, p.ID, p.token)
	require.NoError(t, err)
	defer first.Close()

	_, resp, err := dialSurface(t, srv, p.ID, p.token)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWrongTokenRefused(t *testing.T) {
	m, srv := newTestStack(t, config.RateLimitConfig{})

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)

	_, resp, err := dialSurface(t, srv, p.ID, "tok_forged")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMalformedFramesDropped(t *testing.T) {
	sink := &recordingSink{writes: make(chan string, 1)}
	m, srv := newTestStack(t, config.RateLimitConfig{}, terminal.NewProvider(sink))

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)
	conn, _, err := dialSurface(t, srv, p.ID, p.token)
	require.NoError(t, err)
	defer conn.Close()

	// Garbage, then a frame with no type: both vanish without killing
	// the surface.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"payload":{"x":1}}`)))

	sendEnvelope(t, conn, protocol.Envelope{
		Type:    "zync:terminal:send",
		Payload: map[string]interface{}{"text": "ok\n", "requestId": "r1"},
	})
	resp := readEnvelope(t, conn)
	assert.Equal(t, "r1", resp.RequestID())
}

// Remote exec with no active connection must come back as a local
// error response; nothing is dialed.
func TestRemoteExecFailsClosed(t *testing.T) {
	remoteProvider := remote.NewProviderWithDialer(nil)
	m, srv := newTestStack(t, config.RateLimitConfig{}, remoteProvider)

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)
	conn, _, err := dialSurface(t, srv, p.ID, p.token)
	require.NoError(t, err)
	defer conn.Close()

	sendEnvelope(t, conn, protocol.Envelope{
		Type:    "zync:ssh:exec",
		Payload: map[string]interface{}{"command": "ls", "requestId": "r1"},
	})

	resp := readEnvelope(t, conn)
	assert.Equal(t, "zync:ssh:exec:response", resp.Type)
	assert.Contains(t, resp.Payload["error"], "no active remote connection")
}

func TestUnsupportedCapabilityOnPanelSurface(t *testing.T) {
	m, srv := newTestStack(t, config.RateLimitConfig{})

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)
	conn, _, err := dialSurface(t, srv, p.ID, p.token)
	require.NoError(t, err)
	defer conn.Close()

	// The headless fs surface is not reachable from a panel.
	sendEnvelope(t, conn, protocol.Envelope{
		Type:    "api:fs:read",
		Payload: map[string]interface{}{"path": "x", "requestId": "r1"},
	})

	resp := readEnvelope(t, conn)
	assert.Contains(t, resp.Payload["error"], "unsupported capability")
}

func TestRateLimitDropsExcessFrames(t *testing.T) {
	sink := &recordingSink{writes: make(chan string, 8)}
	cfg := config.RateLimitConfig{Enabled: true, MessagesPerSecond: 1, Burst: 1}
	m, srv := newTestStack(t, cfg, terminal.NewProvider(sink))

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)
	conn, _, err := dialSurface(t, srv, p.ID, p.token)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 5; i++ {
		sendEnvelope(t, conn, protocol.Envelope{
			Type:    "zync:terminal:send",
			Payload: map[string]interface{}{"text": "x"},
		})
	}

	// Burst of one: exactly one frame makes it through immediately.
	select {
	case <-sink.writes:
	case <-time.After(time.Second):
		t.Fatal("first frame should pass the limiter")
	}
	select {
	case <-sink.writes:
		t.Fatal("excess frames should have been dropped")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseTearsDownSurface(t *testing.T) {
	m, srv := newTestStack(t, config.RateLimitConfig{})

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)
	conn, _, err := dialSurface(t, srv, p.ID, p.token)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, m.Close(p.ID))
	assert.Equal(t, 0, m.Count())
	assert.False(t, m.DeliverToPanel(p.ID, protocol.NewInit()))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	assert.Error(t, m.Close(p.ID))
}

// Every teardown path reaches the close hook, so per-panel state held
// elsewhere (pending confirms) dies with the panel.
func TestCloseHookRunsOnTeardown(t *testing.T) {
	m, _ := newTestStack(t, config.RateLimitConfig{})

	var closed []string
	m.WithCloseHook(func(panelID string) { closed = append(closed, panelID) })

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)
	require.NoError(t, m.Close(p.ID))
	assert.Equal(t, []string{p.ID}, closed)

	q, _, err := m.Open(panelPlugin())
	require.NoError(t, err)
	m.CloseOwned("git-panel")
	assert.Equal(t, []string{p.ID, q.ID}, closed)
}

func TestDeliverToPanel(t *testing.T) {
	m, srv := newTestStack(t, config.RateLimitConfig{})

	p, _, err := m.Open(panelPlugin())
	require.NoError(t, err)

	// Not attached yet: nothing to deliver to.
	assert.False(t, m.DeliverToPanel(p.ID, protocol.NewInit()))

	conn, _, err := dialSurface(t, srv, p.ID, p.token)
	require.NoError(t, err)
	defer conn.Close()

	env := protocol.NewResponse("zync:ui:confirm", "r1", map[string]interface{}{"confirmed": true})
	require.True(t, m.DeliverToPanel(p.ID, env))

	got := readEnvelope(t, conn)
	assert.Equal(t, "zync:ui:confirm:response", got.Type)
	assert.Equal(t, "r1", got.RequestID())
}

func TestCloseOwnedPanels(t *testing.T) {
	m, _ := newTestStack(t, config.RateLimitConfig{})

	_, _, err := m.Open(panelPlugin())
	require.NoError(t, err)
	other := panelPlugin()
	other.ID = "other-plugin"
	_, _, err = m.Open(other)
	require.NoError(t, err)

	m.CloseOwned("git-panel")
	assert.Equal(t, 1, m.Count())
}
