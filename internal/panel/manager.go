package panel

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/bridge"
	"github.com/zyncapp/zync/host/internal/infrastructure/config"
	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/infrastructure/monitoring"
	"github.com/zyncapp/zync/host/internal/protocol"
	"github.com/zyncapp/zync/host/internal/shared/id"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Panel is one open panel: the rendered document plus, once the webview
// attaches, its websocket surface.
type Panel struct {
	ID       string
	PluginID string
	Title    string

	token     string
	tokenUsed bool
	surface   *Surface
}

// Manager owns panel lifecycles and their websocket surfaces.
//
// Each opened panel gets a one-time surface token baked into its
// document. The websocket upgrade must present it; the first upgrade
// consumes it and any later upgrade with the same token is refused, so
// only the surface the host created can speak for the panel.
type Manager struct {
	bridge   *bridge.Bridge
	cfg      config.RateLimitConfig
	log      *logging.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader

	// activeConn names the remote connection panel calls may use;
	// empty means remote execution fails closed.
	activeConn func() string

	// onClose runs after a panel is torn down, so collaborators can
	// drop per-panel state such as pending prompts.
	onClose func(panelID string)

	mu     sync.RWMutex
	panels map[string]*Panel
}

// NewManager creates a panel manager dispatching through br.
func NewManager(br *bridge.Bridge, cfg config.RateLimitConfig, log *logging.Logger) *Manager {
	return &Manager{
		bridge: br,
		cfg:    cfg,
		log:    log.Named("panel"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The surface token is the access check; the desktop
			// webview sets no meaningful origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		activeConn: func() string { return "" },
		onClose:    func(string) {},
		panels:     make(map[string]*Panel),
	}
}

// WithMetrics adds metrics tracking to the manager.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithActiveConnection wires the source of the active remote connection
// id used for zync:ssh:exec context.
func (m *Manager) WithActiveConnection(fn func() string) *Manager {
	m.activeConn = fn
	return m
}

// WithCloseHook wires a callback invoked after each panel teardown.
func (m *Manager) WithCloseHook(fn func(panelID string)) *Manager {
	m.onClose = fn
	return m
}

// Open creates a panel for a plugin's panel payload and returns it with
// its composed document.
func (m *Manager) Open(plugin types.Plugin) (*Panel, string, error) {
	if !plugin.HasPanel() {
		return nil, "", fmt.Errorf("plugin %s has no panel payload", plugin.ID)
	}

	p := &Panel{
		ID:       id.NewPanelID().String(),
		PluginID: plugin.ID,
		Title:    plugin.Name,
		token:    id.NewSurfaceToken().String(),
	}

	m.mu.Lock()
	m.panels[p.ID] = p
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.PanelsActive.Inc()
	}
	m.log.Info("panel opened",
		zap.String("panel", p.ID),
		zap.String("plugin", plugin.ID))

	doc := composeDocument(plugin, p.ID, p.token)
	return p, doc, nil
}

// Attach upgrades an incoming request into the panel's surface. The
// presented token must match and be unused.
func (m *Manager) Attach(w http.ResponseWriter, r *http.Request, panelID, token string) error {
	m.mu.Lock()
	p, ok := m.panels[panelID]
	if !ok || token == "" || token != p.token || p.tokenUsed {
		m.mu.Unlock()
		http.Error(w, "forbidden", http.StatusForbidden)
		return fmt.Errorf("surface attach refused for panel %s", panelID)
	}
	p.tokenUsed = true
	m.mu.Unlock()

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("surface upgrade: %w", err)
	}

	surface := newSurface(p.ID, conn, m.limiter(), m.log, m.metrics)
	m.mu.Lock()
	p.surface = surface
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SurfaceConnections.Inc()
	}

	go surface.writeLoop()
	go m.readLoop(p, surface)
	return nil
}

// readLoop pulls frames off the surface, dispatches capability calls
// and queues the responses. Malformed frames are dropped, over-rate
// frames are dropped, and a read error ends the surface.
func (m *Manager) readLoop(p *Panel, s *Surface) {
	defer m.detach(p.ID)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		if s.limiter != nil && !s.limiter.Allow() {
			m.log.Debug("surface frame rate limited", zap.String("panel", p.ID))
			continue
		}

		env, ok := protocol.Decode(data)
		if !ok {
			m.log.Debug("malformed surface frame dropped", zap.String("panel", p.ID))
			continue
		}
		if m.metrics != nil {
			m.metrics.SurfaceMessages.WithLabelValues("in").Inc()
		}

		sctx := &types.Context{
			PluginID:     p.PluginID,
			PanelID:      p.ID,
			ConnectionID: m.activeConn(),
		}
		if resp := m.bridge.Dispatch(context.Background(), sctx, env); resp != nil {
			s.Send(*resp)
		}
	}
}

// DeliverToPanel queues an envelope for a panel's surface. Returns
// false when the panel is gone or never attached.
func (m *Manager) DeliverToPanel(panelID string, env protocol.Envelope) bool {
	m.mu.RLock()
	p, ok := m.panels[panelID]
	var surface *Surface
	if ok {
		surface = p.surface
	}
	m.mu.RUnlock()

	if surface == nil {
		return false
	}
	return surface.Send(env)
}

// Close tears a panel down: surface closed, token dead, record gone.
func (m *Manager) Close(panelID string) error {
	m.mu.Lock()
	p, ok := m.panels[panelID]
	if ok {
		delete(m.panels, panelID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown panel: %s", panelID)
	}
	if p.surface != nil {
		p.surface.Close()
	}
	if m.metrics != nil {
		m.metrics.PanelsActive.Dec()
	}
	m.onClose(panelID)
	m.log.Info("panel closed", zap.String("panel", panelID))
	return nil
}

// CloseOwned closes every panel opened for a plugin.
func (m *Manager) CloseOwned(pluginID string) {
	m.mu.RLock()
	var owned []string
	for panelID, p := range m.panels {
		if p.PluginID == pluginID {
			owned = append(owned, panelID)
		}
	}
	m.mu.RUnlock()

	for _, panelID := range owned {
		m.Close(panelID)
	}
}

// Shutdown closes all panels.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.panels))
	for panelID := range m.panels {
		ids = append(ids, panelID)
	}
	m.mu.RUnlock()

	for _, panelID := range ids {
		m.Close(panelID)
	}
}

// Count returns the number of open panels.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.panels)
}

// detach drops a surface whose connection ended, keeping the panel
// record so the application can close it explicitly.
func (m *Manager) detach(panelID string) {
	m.mu.Lock()
	p, ok := m.panels[panelID]
	var surface *Surface
	if ok && p.surface != nil {
		surface = p.surface
		p.surface = nil
	}
	m.mu.Unlock()

	if surface != nil {
		surface.Close()
		if m.metrics != nil {
			m.metrics.SurfaceConnections.Dec()
		}
	}
}
