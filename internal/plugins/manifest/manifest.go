package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/goccy/go-yaml"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

// FileName is the manifest file a plugin directory must carry.
const FileName = "manifest.yaml"

// Manifest is the on-disk plugin descriptor. Payload fields name files
// relative to the plugin directory; Load reads them into the plugin
// record.
type Manifest struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Logic   string `yaml:"logic,omitempty"`
	Style   string `yaml:"style,omitempty"`
	Panel   string `yaml:"panel,omitempty"`
	Enabled *bool  `yaml:"enabled,omitempty"`

	Theme *ThemeManifest `yaml:"theme,omitempty"`
}

// ThemeManifest is the optional theme block.
type ThemeManifest struct {
	Mode    string            `yaml:"mode"`
	Preview map[string]string `yaml:"preview,omitempty"`
}

// Load reads a plugin from its directory: the manifest plus every
// payload file it names.
func Load(dir string) (*types.Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("manifest in %s has no id", dir)
	}
	if m.Name == "" {
		m.Name = m.ID
	}

	plugin := &types.Plugin{
		ID:        m.ID,
		Name:      m.Name,
		Version:   m.Version,
		Enabled:   m.Enabled == nil || *m.Enabled,
		InstallAt: time.Now(),
	}

	if plugin.Logic, err = payload(dir, m.Logic); err != nil {
		return nil, err
	}
	if plugin.Style, err = payload(dir, m.Style); err != nil {
		return nil, err
	}
	if plugin.Panel, err = payload(dir, m.Panel); err != nil {
		return nil, err
	}

	if m.Theme != nil {
		plugin.Theme = &types.ThemeMeta{
			Mode:    m.Theme.Mode,
			Preview: m.Theme.Preview,
		}
	}
	return plugin, nil
}

// payload reads one named payload file. Payload paths stay inside the
// plugin directory.
func payload(dir, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(name) || clean != name || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("payload path %q must stay inside the plugin directory", name)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("read payload %s: %w", name, err)
	}
	return string(data), nil
}

// Scan walks a plugin root and loads every directory carrying a
// manifest. Broken plugins are skipped and reported in errs; the scan
// itself only fails when the root cannot be walked.
func Scan(root string) ([]*types.Plugin, []error, error) {
	var mu sync.Mutex
	var plugins []*types.Plugin
	var errs []error

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || d.Name() != FileName {
			return nil
		}

		plugin, loadErr := Load(filepath.Dir(path))
		mu.Lock()
		defer mu.Unlock()
		if loadErr != nil {
			errs = append(errs, loadErr)
			return nil
		}
		plugins = append(plugins, plugin)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan plugins: %w", err)
	}

	sort.Slice(plugins, func(i, j int) bool { return plugins[i].ID < plugins[j].ID })
	return plugins, errs, nil
}
