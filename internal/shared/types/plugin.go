package types

import "time"

// SandboxState represents sandbox lifecycle states
type SandboxState string

const (
	StateUnloaded   SandboxState = "unloaded"
	StateStarting   SandboxState = "starting"
	StateReady      SandboxState = "ready"
	StateTerminated SandboxState = "terminated"
)

// ThemeMeta carries optional theme metadata declared by a plugin.
// Preview colors are cosmetic and never security-relevant.
type ThemeMeta struct {
	Mode    string            `json:"mode"` // "light" or "dark"
	Preview map[string]string `json:"preview,omitempty"`
}

// Plugin represents an installed extension.
//
// Payloads are optional: a plugin may ship only a theme, only panel
// markup, or a full logic entry point. The store owns these records;
// sandboxes are created from them at activation time.
type Plugin struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Version   string     `json:"version"`
	Logic     string     `json:"logic,omitempty"` // entry-point script
	Style     string     `json:"style,omitempty"`
	Panel     string     `json:"panel,omitempty"` // rendered panel markup
	Theme     *ThemeMeta `json:"theme,omitempty"`
	Enabled   bool       `json:"enabled"`
	InstallAt time.Time  `json:"installed_at,omitempty"`
}

// HasLogic reports whether the plugin carries a headless entry point.
func (p *Plugin) HasLogic() bool { return p.Logic != "" }

// HasPanel reports whether the plugin carries panel markup.
func (p *Plugin) HasPanel() bool { return p.Panel != "" }

// StoreStats contains plugin store statistics
type StoreStats struct {
	TotalPlugins    int `json:"total_plugins"`
	EnabledPlugins  int `json:"enabled_plugins"`
	ActiveSandboxes int `json:"active_sandboxes"`
}
