package terminal

import (
	"context"
	"fmt"
	"sync"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Sink receives text bound for the embedded terminal and status bar.
// The terminal emulator itself lives outside the host; the provider
// only relays text to whatever sink the application attached.
type Sink interface {
	WriteToTerminal(text string)
	SetStatusBar(text string)
}

// Provider serves terminal text injection and status bar updates for
// panel surfaces.
type Provider struct {
	mu   sync.RWMutex
	sink Sink

	status string
}

// NewProvider creates a terminal provider. sink may be nil until the
// application attaches one; sends without a sink fail.
func NewProvider(sink Sink) *Provider {
	return &Provider{sink: sink}
}

// Attach replaces the terminal sink.
func (p *Provider) Attach(sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// Status returns the last status bar text set through the provider.
func (p *Provider) Status() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	return types.Capability{
		Family:      "zync:terminal",
		Name:        "Terminal",
		Description: "Send text to the embedded terminal and status bar",
		Ops: []types.Op{
			{
				ID:          "zync:terminal:send",
				Name:        "Send to Terminal",
				Description: "Inject text into the active terminal",
				Params: []types.Param{
					{Name: "text", Type: "string", Description: "Text to inject", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "zync:statusbar:set",
				Name:        "Set Status Bar",
				Description: "Replace the status bar text",
				Params: []types.Param{
					{Name: "text", Type: "string", Description: "Status text", Required: true},
				},
				Returns: "boolean",
			},
		},
	}
}

// Execute runs a terminal operation
func (p *Provider) Execute(ctx context.Context, op string, params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	p.mu.RLock()
	sink := p.sink
	p.mu.RUnlock()

	switch op {
	case "zync:terminal:send":
		text, ok := params["text"].(string)
		if !ok {
			return failure("text parameter required")
		}
		if sink == nil {
			return failure("no terminal attached")
		}
		sink.WriteToTerminal(text)
		return success(map[string]interface{}{"sent": true})

	case "zync:statusbar:set":
		text, ok := params["text"].(string)
		if !ok {
			return failure("text parameter required")
		}
		p.mu.Lock()
		p.status = text
		p.mu.Unlock()
		if sink != nil {
			sink.SetStatusBar(text)
		}
		return success(map[string]interface{}{"set": true})

	default:
		return failure(fmt.Sprintf("unknown operation: %s", op))
	}
}

// Helper functions
func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	msg := message
	return &types.Result{Success: false, Error: &msg}, nil
}
