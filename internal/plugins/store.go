package plugins

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/commands"
	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/panel"
	"github.com/zyncapp/zync/host/internal/plugins/manifest"
	"github.com/zyncapp/zync/host/internal/providers/theme"
	"github.com/zyncapp/zync/host/internal/providers/window"
	"github.com/zyncapp/zync/host/internal/sandbox"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Deps are the collaborators the store coordinates. Nil members are
// tolerated; the store simply skips the concern.
type Deps struct {
	Sandboxes *sandbox.Manager
	Commands  *commands.Registry
	Themes    *theme.Provider
	Windows   *window.Provider
	Panels    *panel.Manager
}

// Store owns the installed plugin records and drives their lifecycles:
// install registers metadata, enable starts the headless sandbox,
// disable and uninstall tear everything the plugin owns back down.
type Store struct {
	deps Deps
	log  *logging.Logger

	mu      sync.RWMutex
	plugins map[string]*types.Plugin
}

// NewStore creates an empty plugin store.
func NewStore(deps Deps, log *logging.Logger) *Store {
	return &Store{
		deps:    deps,
		log:     log.Named("plugins"),
		plugins: make(map[string]*types.Plugin),
	}
}

// Install registers a plugin record. The sandbox does not start until
// Enable. A declared theme becomes selectable immediately.
func (s *Store) Install(plugin types.Plugin) error {
	if plugin.ID == "" {
		return fmt.Errorf("plugin has no id")
	}

	s.mu.Lock()
	if _, exists := s.plugins[plugin.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("plugin %s is already installed", plugin.ID)
	}
	record := plugin
	record.Enabled = false
	s.plugins[plugin.ID] = &record
	s.mu.Unlock()

	if plugin.Theme != nil && s.deps.Themes != nil {
		if err := s.deps.Themes.RegisterPluginTheme(plugin.ID, plugin.Name, plugin.Theme); err != nil {
			s.log.Warn("plugin theme rejected",
				zap.String("plugin", plugin.ID),
				zap.Error(err))
		}
	}

	s.log.Info("plugin installed",
		zap.String("plugin", plugin.ID),
		zap.String("version", plugin.Version))
	return nil
}

// LoadDir scans a plugin root, installs everything it finds and enables
// the plugins whose manifests ask for it. Returns how many installed.
func (s *Store) LoadDir(root string) (int, error) {
	found, loadErrs, err := manifest.Scan(root)
	if err != nil {
		return 0, err
	}
	for _, loadErr := range loadErrs {
		s.log.Warn("plugin skipped", zap.Error(loadErr))
	}

	installed := 0
	for _, plugin := range found {
		wantEnabled := plugin.Enabled
		if err := s.Install(*plugin); err != nil {
			s.log.Warn("plugin not installed",
				zap.String("plugin", plugin.ID),
				zap.Error(err))
			continue
		}
		installed++
		if wantEnabled {
			if err := s.Enable(plugin.ID); err != nil {
				s.log.Warn("plugin not enabled",
					zap.String("plugin", plugin.ID),
					zap.Error(err))
			}
		}
	}
	return installed, nil
}

// Enable activates a plugin, starting its headless sandbox when it has
// a logic payload. Enabling an enabled plugin is a no-op.
func (s *Store) Enable(pluginID string) error {
	s.mu.Lock()
	plugin, ok := s.plugins[pluginID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("plugin %s is not installed", pluginID)
	}
	if plugin.Enabled {
		s.mu.Unlock()
		return nil
	}
	plugin.Enabled = true
	record := *plugin
	s.mu.Unlock()

	if record.HasLogic() && s.deps.Sandboxes != nil {
		if _, err := s.deps.Sandboxes.Start(record); err != nil {
			s.mu.Lock()
			plugin.Enabled = false
			s.mu.Unlock()
			return fmt.Errorf("enable %s: %w", pluginID, err)
		}
	}

	s.log.Info("plugin enabled", zap.String("plugin", pluginID))
	return nil
}

// Disable deactivates a plugin: sandbox terminated, owned commands
// removed, pending prompts abandoned, panels closed. The record and a
// registered theme survive.
func (s *Store) Disable(pluginID string) error {
	s.mu.Lock()
	plugin, ok := s.plugins[pluginID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("plugin %s is not installed", pluginID)
	}
	wasEnabled := plugin.Enabled
	plugin.Enabled = false
	s.mu.Unlock()

	if !wasEnabled {
		return nil
	}
	s.teardown(pluginID)
	s.log.Info("plugin disabled", zap.String("plugin", pluginID))
	return nil
}

// Uninstall removes a plugin entirely, including its theme and windows.
func (s *Store) Uninstall(pluginID string) error {
	s.mu.Lock()
	_, ok := s.plugins[pluginID]
	if ok {
		delete(s.plugins, pluginID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("plugin %s is not installed", pluginID)
	}

	s.teardown(pluginID)
	if s.deps.Themes != nil {
		s.deps.Themes.RemovePluginTheme(pluginID)
	}
	if s.deps.Windows != nil {
		s.deps.Windows.CloseOwned(pluginID)
	}

	s.log.Info("plugin uninstalled", zap.String("plugin", pluginID))
	return nil
}

// teardown releases everything a running plugin holds.
func (s *Store) teardown(pluginID string) {
	if s.deps.Sandboxes != nil {
		if _, running := s.deps.Sandboxes.Get(pluginID); running {
			s.deps.Sandboxes.Terminate(pluginID)
		}
	}
	if s.deps.Commands != nil {
		removed := s.deps.Commands.RemoveOwner(pluginID)
		if removed > 0 {
			s.log.Debug("commands removed",
				zap.String("plugin", pluginID),
				zap.Int("count", removed))
		}
	}
	if s.deps.Windows != nil {
		s.deps.Windows.Abandon(pluginID)
	}
	if s.deps.Panels != nil {
		s.deps.Panels.CloseOwned(pluginID)
	}
}

// Get returns a copy of an installed plugin record.
func (s *Store) Get(pluginID string) (types.Plugin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plugin, ok := s.plugins[pluginID]
	if !ok {
		return types.Plugin{}, false
	}
	return *plugin, true
}

// List returns all installed plugins ordered by id.
func (s *Store) List() []types.Plugin {
	s.mu.RLock()
	out := make([]types.Plugin, 0, len(s.plugins))
	for _, plugin := range s.plugins {
		out = append(out, *plugin)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenPanel opens a panel for an enabled plugin.
func (s *Store) OpenPanel(pluginID string) (*panel.Panel, string, error) {
	plugin, ok := s.Get(pluginID)
	if !ok {
		return nil, "", fmt.Errorf("plugin %s is not installed", pluginID)
	}
	if !plugin.Enabled {
		return nil, "", fmt.Errorf("plugin %s is disabled", pluginID)
	}
	if s.deps.Panels == nil {
		return nil, "", fmt.Errorf("panels are not available")
	}
	return s.deps.Panels.Open(plugin)
}

// Stats returns store statistics.
func (s *Store) Stats() types.StoreStats {
	s.mu.RLock()
	total := len(s.plugins)
	enabled := 0
	for _, plugin := range s.plugins {
		if plugin.Enabled {
			enabled++
		}
	}
	s.mu.RUnlock()

	active := 0
	if s.deps.Sandboxes != nil {
		active = s.deps.Sandboxes.Count()
	}
	return types.StoreStats{
		TotalPlugins:    total,
		EnabledPlugins:  enabled,
		ActiveSandboxes: active,
	}
}

// Shutdown tears down every running plugin. No sandbox or panel
// survives it.
func (s *Store) Shutdown() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.plugins))
	for pluginID, plugin := range s.plugins {
		if plugin.Enabled {
			ids = append(ids, pluginID)
		}
	}
	s.mu.RUnlock()

	for _, pluginID := range ids {
		s.teardown(pluginID)
	}
	if s.deps.Sandboxes != nil {
		s.deps.Sandboxes.Shutdown()
	}
	if s.deps.Panels != nil {
		s.deps.Panels.Shutdown()
	}
	s.log.Info("plugin store shut down", zap.Int("plugins", len(ids)))
}
