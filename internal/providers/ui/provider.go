package ui

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/protocol"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Sink presents panel-originated UI to the user.
type Sink interface {
	Notify(level, message, panelID string)
	// Confirm presents a yes/no prompt. The answer arrives later
	// through Provider.Resolve.
	Confirm(panelID, requestID, message string)
}

// Responder delivers a response envelope back to a panel surface.
// Delivery to a closed surface returns false.
type Responder interface {
	DeliverToPanel(panelID string, env protocol.Envelope) bool
}

// Provider serves notifications and confirmation prompts for panel
// surfaces. Confirmations follow the deferred pattern: the prompt goes
// out through the sink and the answer is routed back to the surface by
// Resolve. A surface that closed before the answer loses it silently.
type Provider struct {
	sink      Sink
	responder Responder
	log       *logging.Logger

	mu      sync.Mutex
	pending map[string]string // requestID -> panelID
}

// NewProvider creates a panel UI provider.
func NewProvider(sink Sink, responder Responder, log *logging.Logger) *Provider {
	return &Provider{
		sink:      sink,
		responder: responder,
		log:       log,
		pending:   make(map[string]string),
	}
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	return types.Capability{
		Family:      "zync:ui",
		Name:        "Panel UI",
		Description: "Notifications and confirmation prompts from panels",
		Ops: []types.Op{
			{
				ID:          "zync:ui:notify",
				Name:        "Notify",
				Description: "Show a transient notification",
				Params: []types.Param{
					{Name: "type", Type: "string", Description: "info, warning or error", Required: false},
					{Name: "message", Type: "string", Description: "Notification text", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "zync:ui:confirm",
				Name:        "Confirm",
				Description: "Ask the user a yes/no question",
				Params: []types.Param{
					{Name: "message", Type: "string", Description: "Question text", Required: true},
				},
				Returns: "object",
			},
		},
	}
}

// Execute runs a panel UI operation
func (p *Provider) Execute(ctx context.Context, op string, params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	switch op {
	case "zync:ui:notify":
		return p.notify(params, sctx)
	case "zync:ui:confirm":
		return p.confirm(params, sctx)
	default:
		return failure(fmt.Sprintf("unknown operation: %s", op))
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
		p.sink.Notify(level, message, panelID(sctx))
	}
	return success(map[string]interface{}{"shown": true})
}

func (p *Provider) confirm(params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	if p.sink == nil {
		return failure("no user interface attached")
	}
	if sctx == nil || sctx.PanelID == "" {
		return failure("confirm requires a panel context")
	}
	if sctx.RequestID == "" {
		return failure("confirm requires a request id")
	}
	message, _ := params["message"].(string)
	if message == "" {
		return failure("message parameter required")
	}

	p.mu.Lock()
	p.pending[sctx.RequestID] = sctx.PanelID
	p.mu.Unlock()

	p.sink.Confirm(sctx.PanelID, sctx.RequestID, message)
	return &types.Result{Success: true, Deferred: true}, nil
}

// Resolve routes a confirmation answer back to the panel that asked.
// Unknown ids and closed surfaces are dropped silently.
func (p *Provider) Resolve(requestID string, confirmed bool) {
	p.mu.Lock()
	target, ok := p.pending[requestID]
	if ok {
		delete(p.pending, requestID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	env := protocol.NewResponse("zync:ui:confirm", requestID, map[string]interface{}{
		"confirmed": confirmed,
	})
	if p.responder == nil || !p.responder.DeliverToPanel(target, env) {
		p.log.Debug("confirm answer dropped",
			zap.String("panel", target),
			zap.String("request_id", requestID))
	}
}

// PendingPrompts returns the number of unanswered confirmations.
func (p *Provider) PendingPrompts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Abandon drops pending confirmations owned by a panel surface.
func (p *Provider) Abandon(panelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for reqID, owner := range p.pending {
		if owner == panelID {
			delete(p.pending, reqID)
		}
	}
}

func panelID(sctx *types.Context) string {
	if sctx == nil {
		return ""
	}
	return sctx.PanelID
}

// Helper functions
func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	msg := message
	return &types.Result{Success: false, Error: &msg}, nil
}
