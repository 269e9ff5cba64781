package window

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/protocol"
	"github.com/zyncapp/zync/host/internal/shared/id"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

// UISink receives user-facing output from plugins. The host server
// implements it over the UI chrome channel; tests use a recording fake.
type UISink interface {
	// QuickPick presents a selection prompt. The answer comes back
	// later through Provider.Resolve.
	QuickPick(pluginID, requestID string, items []interface{}, options map[string]interface{})
	// Notify shows a transient notification.
	Notify(level, message, pluginID string)
}

// Router delivers a response envelope to a plugin's live sandbox.
// Delivery to a terminated or unknown plugin returns false.
type Router interface {
	Deliver(pluginID string, env protocol.Envelope) bool
}

// Window records a plugin-created window.
type Window struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	OwnerID string `json:"owner_id"`
}

// Provider serves the window capability family: quick-pick prompts,
// window records, notifications and plugin log lines.
//
// showQuickPick is the one asynchronous operation in the surface: the
// dispatch defers, the prompt goes out through the sink, and the user's
// answer is routed back to the originating sandbox by Resolve. A prompt
// whose sandbox has terminated by answer time is dropped silently.
type Provider struct {
	sink   UISink
	router Router
	log    *logging.Logger

	mu      sync.Mutex
	pending map[string]string // requestID -> pluginID
	windows map[string]Window
}

// NewProvider creates a window provider.
func NewProvider(sink UISink, router Router, log *logging.Logger) *Provider {
	return &Provider{
		sink:    sink,
		router:  router,
		log:     log,
		pending: make(map[string]string),
		windows: make(map[string]Window),
	}
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	return types.Capability{
		Family:      "api:window",
		Name:        "Window",
		Description: "Quick-pick prompts, windows, notifications and logging",
		Ops: []types.Op{
			{
				ID:          "api:window:showQuickPick",
				Name:        "Show Quick Pick",
				Description: "Prompt the user to pick from a list",
				Params: []types.Param{
					{Name: "items", Type: "array", Description: "Selectable items", Required: true},
					{Name: "options", Type: "object", Description: "Prompt options", Required: false},
				},
				Returns: "object",
			},
			{
				ID:          "api:window:create",
				Name:        "Create Window",
				Description: "Open a plugin window",
				Params: []types.Param{
					{Name: "title", Type: "string", Description: "Window title", Required: true},
				},
				Returns: "object",
			},
			{
				ID:          "api:ui:notify",
				Name:        "Notify",
				Description: "Show a transient notification",
				Params: []types.Param{
					{Name: "type", Type: "string", Description: "info, warning or error", Required: false},
					{Name: "message", Type: "string", Description: "Notification text", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "api:log",
				Name:        "Log",
				Description: "Write a line to the host log",
				Params: []types.Param{
					{Name: "level", Type: "string", Description: "debug, info, warn or error", Required: false},
					{Name: "message", Type: "string", Description: "Log text", Required: true},
				},
				Returns: "boolean",
			},
		},
	}
}

// Execute runs a window operation
func (p *Provider) Execute(ctx context.Context, op string, params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	switch op {
	case "api:window:showQuickPick":
		return p.showQuickPick(params, sctx)
	case "api:window:create":
		return p.create(params, sctx)
	case "api:ui:notify":
		return p.notify(params, sctx)
	case "api:log":
		return p.logLine(params, sctx)
	default:
		return failure(fmt.Sprintf("unknown operation: %s", op))
	}
}

func (p *Provider) showQuickPick(params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	if p.sink == nil {
		return failure("no user interface attached")
	}
	if sctx == nil || sctx.PluginID == "" {
		return failure("quick pick requires a plugin context")
	}
	if sctx.RequestID == "" {
		// Without a correlation token there is nowhere to send the
		// answer; refuse rather than prompt into the void.
		return failure("quick pick requires a request id")
	}

	items, ok := params["items"].([]interface{})
	if !ok || len(items) == 0 {
		return failure("items parameter required")
	}
	options, _ := params["options"].(map[string]interface{})

	p.mu.Lock()
	p.pending[sctx.RequestID] = sctx.PluginID
	p.mu.Unlock()

	p.sink.QuickPick(sctx.PluginID, sctx.RequestID, items, options)
	return &types.Result{Success: true, Deferred: true}, nil
}

// Resolve routes a quick-pick answer back to the sandbox that asked.
// selection is nil when the user dismissed the prompt. Unknown request
// ids and terminated sandboxes are dropped silently; a prompt is
// answered at most once.
func (p *Provider) Resolve(requestID string, selection interface{}) {
	p.mu.Lock()
	pluginID, ok := p.pending[requestID]
	if ok {
		delete(p.pending, requestID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	env := protocol.NewResponse("api:window:showQuickPick", requestID, map[string]interface{}{
		"selection": selection,
	})
	if p.router == nil || !p.router.Deliver(pluginID, env) {
		p.log.Debug("quick pick answer dropped",
			zap.String("plugin", pluginID),
			zap.String("request_id", requestID))
	}
}

// Abandon drops every pending prompt owned by a plugin. Called when its
// sandbox terminates so stale answers cannot linger in the table.
func (p *Provider) Abandon(pluginID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for reqID, owner := range p.pending {
		if owner == pluginID {
			delete(p.pending, reqID)
		}
	}
}

// PendingPrompts returns the number of unanswered quick picks.
func (p *Provider) PendingPrompts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *Provider) create(params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	title, _ := params["title"].(string)
	if title == "" {
		return failure("title parameter required")
	}

	win := Window{
		ID:      id.NewWindowID().String(),
		Title:   title,
		OwnerID: contextPlugin(sctx),
	}
	p.mu.Lock()
	p.windows[win.ID] = win
	p.mu.Unlock()

	return success(map[string]interface{}{
		"window_id": win.ID,
		"title":     win.Title,
	})
}

// Windows returns the windows created by a plugin.
func (p *Provider) Windows(pluginID string) []Window {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := []Window{}
	for _, w := range p.windows {
		if w.OwnerID == pluginID {
			out = append(out, w)
		}
	}
	return out
}

// CloseOwned removes all windows created by a plugin.
func (p *Provider) CloseOwned(pluginID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for winID, w := range p.windows {
		if w.OwnerID == pluginID {
			delete(p.windows, winID)
		}
	}
}

func (p *Provider) notify(params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	message, _ := params["message"].(string)
	if message == "" {
		return failure("message parameter required")
	}
	level, _ := params["type"].(string)
	if level == "" {
		level = "info"
	}

	if p.sink != nil {
		p.sink.Notify(level, message, contextPlugin(sctx))
	}
	return success(map[string]interface{}{"shown": true})
}

func (p *Provider) logLine(params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	message, _ := params["message"].(string)
	if message == "" {
		return failure("message parameter required")
	}
	level, _ := params["level"].(string)

	fields := []zap.Field{zap.String("plugin", contextPlugin(sctx))}
	switch level {
	case "debug":
		p.log.Debug(message, fields...)
	case "warn":
		p.log.Warn(message, fields...)
	case "error":
		p.log.Error(message, fields...)
	default:
		p.log.Info(message, fields...)
	}
	return success(map[string]interface{}{"logged": true})
}

func contextPlugin(sctx *types.Context) string {
	if sctx == nil {
		return ""
	}
	return sctx.PluginID
}

// Helper functions
func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	msg := message
	return &types.Result{Success: false, Error: &msg}, nil
}
