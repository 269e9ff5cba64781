package theme

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Theme describes a selectable appearance.
type Theme struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Mode    string            `json:"mode"` // "light" or "dark"
	Preview map[string]string `json:"preview,omitempty"`
	Builtin bool              `json:"builtin"`
	OwnerID string            `json:"owner_id,omitempty"`
}

// Provider manages the active theme and the set of selectable themes.
//
// The active theme is single-writer host state: every change goes
// through Execute or SetActive under the provider mutex, and observers
// are notified after the state is committed.
type Provider struct {
	mu       sync.RWMutex
	themes   map[string]Theme
	active   string
	observer func(Theme)
}

// NewProvider creates a theme provider seeded with the built-in themes.
func NewProvider() *Provider {
	p := &Provider{
		themes: make(map[string]Theme),
		active: "dark",
	}
	p.themes["dark"] = Theme{ID: "dark", Name: "Zync Dark", Mode: "dark", Builtin: true}
	p.themes["light"] = Theme{ID: "light", Name: "Zync Light", Mode: "light", Builtin: true}
	return p
}

// Observe registers a callback invoked after each theme change.
func (p *Provider) Observe(fn func(Theme)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = fn
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	return types.Capability{
		Family:      "api:theme",
		Name:        "Theme",
		Description: "Query and change the active appearance theme",
		Ops: []types.Op{
			{
				ID:          "api:theme:set",
				Name:        "Set Theme",
				Description: "Activate a theme by id",
				Params: []types.Param{
					{Name: "theme", Type: "string", Description: "Theme id", Required: true},
				},
				Returns: "object",
			},
			{
				ID:          "api:theme:current",
				Name:        "Current Theme",
				Description: "Get the active theme",
				Returns:     "object",
			},
			{
				ID:          "api:theme:list",
				Name:        "List Themes",
				Description: "List all selectable themes",
				Returns:     "array",
			},
		},
	}
}

// Execute runs a theme operation
func (p *Provider) Execute(ctx context.Context, op string, params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	switch op {
	case "api:theme:set":
		id, _ := params["theme"].(string)
		return p.set(id)
	case "api:theme:current":
		return p.current()
	case "api:theme:list":
		return p.list()
	default:
		return failure(fmt.Sprintf("unknown operation: %s", op))
	}
}

// RegisterPluginTheme adds a theme declared in a plugin's metadata. The
// theme id is the owning plugin's id, so uninstall can remove it again.
func (p *Provider) RegisterPluginTheme(pluginID, name string, meta *types.ThemeMeta) error {
	if meta == nil {
		return fmt.Errorf("plugin %s declares no theme", pluginID)
	}
	if meta.Mode != "light" && meta.Mode != "dark" {
		return fmt.Errorf("plugin %s theme mode %q is not light or dark", pluginID, meta.Mode)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.themes[pluginID] = Theme{
		ID:      pluginID,
		Name:    name,
		Mode:    meta.Mode,
		Preview: meta.Preview,
		OwnerID: pluginID,
	}
	return nil
}

// RemovePluginTheme drops a plugin's theme. If it was active, the
// matching built-in mode takes over.
func (p *Provider) RemovePluginTheme(pluginID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	theme, ok := p.themes[pluginID]
	if !ok || theme.Builtin {
		return
	}
	delete(p.themes, pluginID)
	if p.active == pluginID {
		p.active = theme.Mode // built-in ids match mode names
	}
}

// SetActive activates a theme by id outside the capability path.
func (p *Provider) SetActive(id string) error {
	result, _ := p.set(id)
	if !result.Success {
		return fmt.Errorf("%s", result.ErrorMessage())
	}
	return nil
}

// Active returns the currently active theme.
func (p *Provider) Active() Theme {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.themes[p.active]
}

func (p *Provider) set(id string) (*types.Result, error) {
	if id == "" {
		return failure("theme parameter required")
	}

	p.mu.Lock()
	theme, ok := p.themes[id]
	if !ok {
		p.mu.Unlock()
		return failure(fmt.Sprintf("unknown theme: %s", id))
	}
	p.active = id
	observer := p.observer
	p.mu.Unlock()

	if observer != nil {
		observer(theme)
	}
	return success(map[string]interface{}{"active": id, "mode": theme.Mode})
}

func (p *Provider) current() (*types.Result, error) {
	theme := p.Active()
	return success(map[string]interface{}{
		"id":      theme.ID,
		"name":    theme.Name,
		"mode":    theme.Mode,
		"builtin": theme.Builtin,
	})
}

func (p *Provider) list() (*types.Result, error) {
	p.mu.RLock()
	ids := make([]string, 0, len(p.themes))
	for id := range p.themes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	themes := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		t := p.themes[id]
		themes = append(themes, map[string]interface{}{
			"id":      t.ID,
			"name":    t.Name,
			"mode":    t.Mode,
			"builtin": t.Builtin,
		})
	}
	active := p.active
	p.mu.RUnlock()

	return success(map[string]interface{}{
		"themes": themes,
		"active": active,
	})
}

// Helper functions
func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	msg := message
	return &types.Result{Success: false, Error: &msg}, nil
}
