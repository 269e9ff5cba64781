package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/bridge"
	"github.com/zyncapp/zync/host/internal/commands"
	"github.com/zyncapp/zync/host/internal/infrastructure/config"
	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/infrastructure/monitoring"
	"github.com/zyncapp/zync/host/internal/panel"
	"github.com/zyncapp/zync/host/internal/plugins"
	"github.com/zyncapp/zync/host/internal/protocol"
	"github.com/zyncapp/zync/host/internal/providers/fs"
	"github.com/zyncapp/zync/host/internal/providers/remote"
	"github.com/zyncapp/zync/host/internal/providers/terminal"
	"github.com/zyncapp/zync/host/internal/providers/theme"
	"github.com/zyncapp/zync/host/internal/providers/ui"
	"github.com/zyncapp/zync/host/internal/providers/window"
	"github.com/zyncapp/zync/host/internal/sandbox"
)

// Server assembles the whole host: both capability registries, the
// sandbox and panel managers, the plugin store, the chrome channel and
// the HTTP surface tying them together.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *monitoring.Metrics

	chrome    *chromeHub
	commands  *commands.Registry
	themes    *theme.Provider
	remote    *remote.Provider
	windows   *window.Provider
	panelUI   *ui.Provider
	sandboxes *sandbox.Manager
	panels    *panel.Manager
	store     *plugins.Store

	engine *gin.Engine
	http   *http.Server
}

// New builds the host server graph from configuration.
func New(cfg *config.Config, log *logging.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log.Named("server"),
		metrics: monitoring.NewMetrics(),
		chrome:  newChromeHub(log),
	}

	s.commands = commands.NewRegistry()
	s.themes = theme.NewProvider()
	s.remote = remote.NewProvider()

	// Headless surface: what plugin logic may reach.
	headless := bridge.NewRegistry()
	headlessBridge := bridge.New(headless, log).WithMetrics(s.metrics)
	s.sandboxes = sandbox.NewManager(headlessBridge, cfg.Sandbox, log).WithMetrics(s.metrics)

	s.windows = window.NewProvider(s.chrome, s.sandboxes, log)
	mustRegister(headless,
		fs.NewProvider(cfg.Plugins.DataDir),
		s.themes,
		commands.NewProvider(s.commands),
		s.windows,
	)

	// Panel surface: narrower, zync:-prefixed.
	panelRegistry := bridge.NewRegistry()
	panelBridge := bridge.New(panelRegistry, log).WithMetrics(s.metrics)
	s.panels = panel.NewManager(panelBridge, cfg.RateLimit, log).
		WithMetrics(s.metrics).
		WithActiveConnection(s.remote.Active)

	s.panelUI = ui.NewProvider(s.chrome, s.panels, log)
	// A closed panel can never receive its confirm answer; drop the
	// pending entries with the panel.
	s.panels.WithCloseHook(s.panelUI.Abandon)
	mustRegister(panelRegistry,
		terminal.NewProvider(s.chrome),
		s.remote,
		s.panelUI,
	)

	s.store = plugins.NewStore(plugins.Deps{
		Sandboxes: s.sandboxes,
		Commands:  s.commands,
		Themes:    s.themes,
		Windows:   s.windows,
		Panels:    s.panels,
	}, log)

	s.themes.Observe(func(t theme.Theme) {
		s.chrome.Broadcast(protocol.Envelope{
			Type: typeThemeChanged,
			Payload: map[string]interface{}{
				"id":   t.ID,
				"mode": t.Mode,
			},
		})
	})
	s.chrome.handle = s.handleChrome

	s.engine = s.buildRouter()
	return s
}

func mustRegister(reg *bridge.Registry, providers ...bridge.Provider) {
	for _, p := range providers {
		if err := reg.Register(p); err != nil {
			panic(fmt.Sprintf("capability registration: %v", err))
		}
	}
}

// Store exposes the plugin store for startup loading.
func (s *Server) Store() *plugins.Store { return s.store }

// handleChrome processes envelopes arriving on the chrome channel.
func (s *Server) handleChrome(env protocol.Envelope) {
	switch env.Type {
	case typeQuickPickAnswer:
		reqID, _ := env.Payload["requestId"].(string)
		s.windows.Resolve(reqID, env.Payload["selection"])

	case typeConfirmAnswer:
		reqID, _ := env.Payload["requestId"].(string)
		confirmed, _ := env.Payload["confirmed"].(bool)
		s.panelUI.Resolve(reqID, confirmed)

	case typeCommandInvoke:
		cmdID, _ := env.Payload["id"].(string)
		reg, ok := s.commands.Get(cmdID)
		if !ok {
			s.log.Debug("unknown command invoked", zap.String("command", cmdID))
			return
		}
		if !s.sandboxes.InvokeCommand(reg.OwnerID, cmdID) {
			s.log.Debug("command owner has no live sandbox",
				zap.String("command", cmdID),
				zap.String("plugin", reg.OwnerID))
		}

	default:
		s.log.Debug("unhandled chrome message", zap.String("type", env.Type))
	}
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", func(c *gin.Context) {
		s.metrics.UpdateUptime()
		s.metrics.Handler().ServeHTTP(c.Writer, c.Request)
	})

	engine.GET("/ws", func(c *gin.Context) {
		if err := s.chrome.Attach(c.Writer, c.Request); err != nil {
			s.log.Warn("chrome attach failed", zap.Error(err))
		}
	})

	engine.GET("/plugins", s.handleListPlugins)
	engine.POST("/plugins/:id/enable", s.handleEnablePlugin)
	engine.POST("/plugins/:id/disable", s.handleDisablePlugin)
	engine.DELETE("/plugins/:id", s.handleUninstallPlugin)

	engine.GET("/commands", s.handleListCommands)
	engine.POST("/commands/:id/invoke", s.handleInvokeCommand)

	engine.POST("/panels/open", s.handleOpenPanel)
	engine.DELETE("/panels/:id", s.handleClosePanel)
	engine.GET("/panels/:id/ws", func(c *gin.Context) {
		err := s.panels.Attach(c.Writer, c.Request, c.Param("id"), c.Query("token"))
		if err != nil {
			s.log.Debug("panel attach refused", zap.Error(err))
		}
	})

	return engine
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.store.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"plugins":          stats.TotalPlugins,
		"enabled":          stats.EnabledPlugins,
		"active_sandboxes": stats.ActiveSandboxes,
		"open_panels":      s.panels.Count(),
	})
}

func (s *Server) handleListPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": s.store.List()})
}

func (s *Server) handleEnablePlugin(c *gin.Context) {
	if err := s.store.Enable(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

func (s *Server) handleDisablePlugin(c *gin.Context) {
	if err := s.store.Disable(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"disabled": true})
}

func (s *Server) handleUninstallPlugin(c *gin.Context) {
	if err := s.store.Uninstall(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uninstalled": true})
}

func (s *Server) handleListCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": s.commands.List()})
}

func (s *Server) handleInvokeCommand(c *gin.Context) {
	cmdID := c.Param("id")
	reg, ok := s.commands.Get(cmdID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown command: %s", cmdID)})
		return
	}
	if !s.sandboxes.InvokeCommand(reg.OwnerID, cmdID) {
		c.JSON(http.StatusConflict, gin.H{"error": "command owner has no live sandbox"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoked": true})
}

func (s *Server) handleOpenPanel(c *gin.Context) {
	var req struct {
		PluginID string `json:"plugin_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PluginID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plugin_id required"})
		return
	}

	p, doc, err := s.store.OpenPanel(req.PluginID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"panel_id": p.ID,
		"title":    p.Title,
		"document": doc,
	})
}

func (s *Server) handleClosePanel(c *gin.Context) {
	if err := s.panels.Close(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

// Engine returns the HTTP router, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves HTTP until ctx is canceled, then drains everything: HTTP
// first, then the plugin store, connections and chrome clients.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("host listening", zap.String("addr", addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown", zap.Error(err))
	}

	s.Shutdown()
	return nil
}

// Shutdown tears down everything the server owns.
func (s *Server) Shutdown() {
	s.store.Shutdown()
	s.remote.Shutdown()
	s.chrome.Shutdown()
	s.log.Info("host stopped")
}
