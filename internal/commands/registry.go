package commands

import "sync"

// Registration is one command registered by a plugin. The host knows the
// id, title and owner; the handler body never leaves the owning sandbox.
type Registration struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	OwnerID string `json:"owner_plugin_id"`
}

// Registry is the process-wide command table.
//
// First write wins: re-registering an existing id is a silent no-op, so
// one plugin cannot override another's command. Mutation is funneled
// through the host's coordination path; the lock only guards readers.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Registration
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Registration)}
}

// Register records a command. Returns true when the registration was
// accepted, false when the id was already taken.
func (r *Registry) Register(reg Registration) bool {
	if reg.ID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[reg.ID]; exists {
		return false
	}
	r.commands[reg.ID] = reg
	return true
}

// Get looks up a command by id.
func (r *Registry) Get(id string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.commands[id]
	return reg, ok
}

// List returns all registered commands.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.commands))
	for _, reg := range r.commands {
		out = append(out, reg)
	}
	return out
}

// ListByOwner returns the commands registered by one plugin.
func (r *Registry) ListByOwner(pluginID string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Registration
	for _, reg := range r.commands {
		if reg.OwnerID == pluginID {
			out = append(out, reg)
		}
	}
	return out
}

// RemoveOwner drops every command owned by pluginID, returning how many
// were removed. Used on disable and uninstall.
func (r *Registry) RemoveOwner(pluginID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, reg := range r.commands {
		if reg.OwnerID == pluginID {
			delete(r.commands, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}
