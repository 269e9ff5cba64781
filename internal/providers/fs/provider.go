package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Provider implements the plugin-scoped filesystem capability.
//
// Every operation resolves against the calling plugin's own root under
// the host data directory; a path that escapes the root is rejected
// before any file operation runs. Plugins never see each other's roots.
type Provider struct {
	dataDir string
}

// NewProvider creates a filesystem provider rooted at dataDir.
func NewProvider(dataDir string) *Provider {
	return &Provider{dataDir: dataDir}
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	return types.Capability{
		Family:      "api:fs",
		Name:        "Plugin Filesystem",
		Description: "File operations scoped to the plugin's own data root",
		Ops: []types.Op{
			{
				ID:          "api:fs:read",
				Name:        "Read File",
				Description: "Read file contents",
				Params: []types.Param{
					{Name: "path", Type: "string", Description: "File path", Required: true},
				},
				Returns: "string",
			},
			{
				ID:          "api:fs:write",
				Name:        "Write File",
				Description: "Write data to file (overwrites existing)",
				Params: []types.Param{
					{Name: "path", Type: "string", Description: "File path", Required: true},
					{Name: "data", Type: "string", Description: "Data to write", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "api:fs:list",
				Name:        "List Directory",
				Description: "List directory contents, optionally filtered by glob",
				Params: []types.Param{
					{Name: "path", Type: "string", Description: "Directory path", Required: true},
					{Name: "glob", Type: "string", Description: "Glob filter (doublestar syntax)", Required: false},
				},
				Returns: "array",
			},
			{
				ID:          "api:fs:exists",
				Name:        "Check Existence",
				Description: "Check if a file or directory exists",
				Params: []types.Param{
					{Name: "path", Type: "string", Description: "File or directory path", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "api:fs:mkdir",
				Name:        "Create Directory",
				Description: "Create a directory (recursive)",
				Params: []types.Param{
					{Name: "path", Type: "string", Description: "Directory path", Required: true},
				},
				Returns: "boolean",
			},
		},
	}
}

// Execute runs a filesystem operation
func (p *Provider) Execute(ctx context.Context, op string, params map[string]interface{}, sctx *types.Context) (*types.Result, error) {
	root, err := p.rootFor(sctx)
	if err != nil {
		return failure(err.Error())
	}

	switch op {
	case "api:fs:read":
		return p.read(root, params)
	case "api:fs:write":
		return p.write(root, params)
	case "api:fs:list":
		return p.list(root, params)
	case "api:fs:exists":
		return p.exists(root, params)
	case "api:fs:mkdir":
		return p.mkdir(root, params)
	default:
		return failure(fmt.Sprintf("unknown operation: %s", op))
	}
}

// rootFor returns the calling plugin's filesystem root, creating it on
// first use.
func (p *Provider) rootFor(sctx *types.Context) (string, error) {
	if sctx == nil || sctx.PluginID == "" {
		return "", fmt.Errorf("filesystem access requires a plugin context")
	}
	root := filepath.Join(p.dataDir, sctx.PluginID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("plugin root unavailable: %v", err)
	}
	return root, nil
}

// resolve maps a plugin-supplied path into the plugin root, rejecting
// traversal outside it.
func resolve(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path parameter required")
	}

	full := filepath.Join(root, filepath.Clean("/"+path))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes plugin root", path)
	}
	return full, nil
}

func (p *Provider) read(root string, params map[string]interface{}) (*types.Result, error) {
	path, _ := params["path"].(string)
	full, err := resolve(root, path)
	if err != nil {
		return failure(err.Error())
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return failure(fmt.Sprintf("not found: %s", path))
		}
		return failure(fmt.Sprintf("read failed: %v", err))
	}

	return success(map[string]interface{}{
		"path":    path,
		"content": string(data),
		"size":    len(data),
	})
}

func (p *Provider) write(root string, params map[string]interface{}) (*types.Result, error) {
	path, _ := params["path"].(string)
	data, ok := params["data"].(string)
	if !ok {
		return failure("data parameter required")
	}

	full, err := resolve(root, path)
	if err != nil {
		return failure(err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return failure(fmt.Sprintf("write failed: %v", err))
	}
	if err := os.WriteFile(full, []byte(data), 0o644); err != nil {
		return failure(fmt.Sprintf("write failed: %v", err))
	}

	return success(map[string]interface{}{
		"written": true,
		"path":    path,
		"size":    len(data),
	})
}

func (p *Provider) list(root string, params map[string]interface{}) (*types.Result, error) {
	path, _ := params["path"].(string)
	full, err := resolve(root, path)
	if err != nil {
		return failure(err.Error())
	}

	pattern, _ := params["glob"].(string)
	if pattern != "" {
		if !doublestar.ValidatePattern(pattern) {
			return failure(fmt.Sprintf("invalid glob: %s", pattern))
		}
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return failure(fmt.Sprintf("list failed: %v", err))
	}

	listed := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		if pattern != "" {
			matched, _ := doublestar.Match(pattern, entry.Name())
			if !matched {
				continue
			}
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		item := map[string]interface{}{
			"name":     entry.Name(),
			"is_dir":   entry.IsDir(),
			"size":     info.Size(),
			"modified": info.ModTime(),
		}
		if !entry.IsDir() {
			if mime, err := mimetype.DetectFile(filepath.Join(full, entry.Name())); err == nil {
				item["mime"] = mime.String()
			}
		}
		listed = append(listed, item)
	}

	return success(map[string]interface{}{
		"path":    path,
		"entries": listed,
		"count":   len(listed),
	})
}

func (p *Provider) exists(root string, params map[string]interface{}) (*types.Result, error) {
	path, _ := params["path"].(string)
	full, err := resolve(root, path)
	if err != nil {
		return failure(err.Error())
	}

	info, err := os.Stat(full)
	if err != nil {
		return success(map[string]interface{}{"exists": false, "path": path})
	}

	return success(map[string]interface{}{
		"exists": true,
		"path":   path,
		"is_dir": info.IsDir(),
	})
}

func (p *Provider) mkdir(root string, params map[string]interface{}) (*types.Result, error) {
	path, _ := params["path"].(string)
	full, err := resolve(root, path)
	if err != nil {
		return failure(err.Error())
	}

	if err := os.MkdirAll(full, 0o755); err != nil {
		return failure(fmt.Sprintf("mkdir failed: %v", err))
	}

	return success(map[string]interface{}{"created": true, "path": path})
}

// Helper functions
func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	msg := message
	return &types.Result{Success: false, Error: &msg}, nil
}
