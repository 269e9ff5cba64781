package types

// Capability describes a capability family served by the bridge
type Capability struct {
	Family      string `json:"family"` // envelope type prefix, e.g. "api:fs"
	Name        string `json:"name"`
	Description string `json:"description"`
	Ops         []Op   `json:"ops"`
}

// Op describes one operation within a capability family
type Op struct {
	ID          string  `json:"id"` // full envelope type, e.g. "api:fs:read"
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
	Returns     string  `json:"returns"`
}

// Param describes an operation parameter
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Context identifies the sandbox a capability call originated from.
//
// ConnectionID is the active remote connection for panel-scoped calls;
// empty means no connection is active and remote execution must fail
// closed. RequestID is the correlation token of the call being served,
// set by the dispatcher; a provider that defers its answer uses it to
// address the eventual response.
type Context struct {
	PluginID     string `json:"plugin_id"`
	PanelID      string `json:"panel_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	RequestID    string `json:"-"`
}

// Result represents a capability execution result.
//
// Deferred marks a successful dispatch whose answer arrives later
// through a separately routed response envelope; the dispatcher sends
// nothing for it.
type Result struct {
	Success  bool                   `json:"success"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Error    *string                `json:"error,omitempty"`
	Deferred bool                   `json:"-"`
}

// ErrorMessage returns the error string, or "" when the result succeeded.
func (r *Result) ErrorMessage() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return *r.Error
}
