package commands

import (
	"context"
	"fmt"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Provider exposes command registration as a capability.
type Provider struct {
	registry *Registry
}

// NewProvider wraps a command registry for capability dispatch.
func NewProvider(registry *Registry) *Provider {
	return &Provider{registry: registry}
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	return types.Capability{
		Family:      "api:commands",
		Name:        "Commands",
		Description: "Register commands the user can invoke",
		Ops: []types.Op{
			{
				ID:          "api:commands:register",
				Name:        "Register Command",
				Description: "Register a command id with a display title",
				Params: []types.Param{
					{Name: "id", Type: "string", Description: "Command id", Required: true},
					{Name: "title", Type: "string", Description: "Display title", Required: true},
				},
				Returns: "object",
			},
			{
				ID:          "api:commands:list",
				Name:        "List Commands",
				Description: "List the caller's registered commands",
				Returns:     "array",
			},
		},
	}
}

// Execute runs a command registry operation
func (p *Provider) Execute(ctx context.Context, op string, params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	switch op {
	case "api:commands:register":
		return p.register(params, sctx)
	case "api:commands:list":
		return p.list(sctx)
	default:
		return failure(fmt.Sprintf("unknown operation: %s", op))
	}
}

func (p *Provider) register(params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	if sctx == nil || sctx.PluginID == "" {
		return failure("command registration requires a plugin context")
	}

	cmdID, _ := params["id"].(string)
	if cmdID == "" {
		return failure("id parameter required")
	}
	title, _ := params["title"].(string)

	// A taken id is a silent no-op, not an error: the first owner keeps
	// the command and the caller learns it was not accepted.
	accepted := p.registry.Register(Registration{
		ID:      cmdID,
		Title:   title,
		OwnerID: sctx.PluginID,
	})
	return success(map[string]interface{}{
		"id":       cmdID,
		"accepted": accepted,
	})
}

func (p *Provider) list(sctx *types.Context) (*types.Result, error) {
	if sctx == nil || sctx.PluginID == "" {
		return failure("command listing requires a plugin context")
	}

	owned := p.registry.ListByOwner(sctx.PluginID)
	commands := make([]map[string]interface{}, 0, len(owned))
	for _, reg := range owned {
		commands = append(commands, map[string]interface{}{
			"id":    reg.ID,
			"title": reg.Title,
		})
	}
	return success(map[string]interface{}{"commands": commands})
}

// Helper functions
func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	msg := message
	return &types.Result{Success: false, Error: &msg}, nil
}
