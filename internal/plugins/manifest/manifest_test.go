package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlugin(t *testing.T, root, dir string, files map[string]string) string {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(pluginDir, name), []byte(content), 0o644))
	}
	return pluginDir
}

func TestLoadFullPlugin(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "git-tools", map[string]string{
		FileName: `
id: git-tools
name: Git Tools
version: 1.2.0
logic: main.js
style: style.css
panel: panel.html
theme:
  mode: dark
  preview:
    bg: "#1e1e1e"
`,
		"main.js":    `zync.log("hi")`,
		"style.css":  `body {}`,
		"panel.html": `<div></div>`,
	})

	plugin, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "git-tools", plugin.ID)
	assert.Equal(t, "Git Tools", plugin.Name)
	assert.Equal(t, "1.2.0", plugin.Version)
	assert.Equal(t, `zync.log("hi")`, plugin.Logic)
	assert.Equal(t, `body {}`, plugin.Style)
	assert.Equal(t, `<div></div>`, plugin.Panel)
	assert.True(t, plugin.Enabled)
	require.NotNil(t, plugin.Theme)
	assert.Equal(t, "dark", plugin.Theme.Mode)
	assert.Equal(t, "#1e1e1e", plugin.Theme.Preview["bg"])
}

func TestLoadMinimalThemeOnlyPlugin(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "just-a-theme", map[string]string{
		FileName: `
id: just-a-theme
theme:
  mode: light
`,
	})

	plugin, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "just-a-theme", plugin.Name) // name defaults to id
	assert.False(t, plugin.HasLogic())
	assert.False(t, plugin.HasPanel())
	require.NotNil(t, plugin.Theme)
}

func TestLoadDisabled(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "off", map[string]string{
		FileName: "id: off\nenabled: false\n",
	})

	plugin, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, plugin.Enabled)
}

func TestLoadRejectsMissingID(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "anon", map[string]string{
		FileName: "name: No ID\n",
	})

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsEscapingPayloadPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "outside.js"), []byte("1"), 0o644))
	dir := writePlugin(t, root, "sneaky", map[string]string{
		FileName: "id: sneaky\nlogic: ../outside.js\n",
	})

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin directory")
}

func TestLoadMissingPayloadFile(t *testing.T) {
	dir := writePlugin(t, t.TempDir(), "broken", map[string]string{
		FileName: "id: broken\nlogic: nope.js\n",
	})

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "alpha", map[string]string{
		FileName:  "id: alpha\nlogic: main.js\n",
		"main.js": "1",
	})
	writePlugin(t, root, "beta", map[string]string{
		FileName: "id: beta\n",
	})
	writePlugin(t, root, "broken", map[string]string{
		FileName: "id: broken\nlogic: missing.js\n",
	})
	// A directory without a manifest is not a plugin.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes"), 0o755))

	plugins, errs, err := Scan(root)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "alpha", plugins[0].ID)
	assert.Equal(t, "beta", plugins[1].ID)
	assert.Len(t, errs, 1)
}
