package theme

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

func exec(t *testing.T, p *Provider, op string, params map[string]interface{}) *types.Result {
	t.Helper()
	result, err := p.Execute(context.Background(), op, params, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestBuiltinsPresent(t *testing.T) {
	p := NewProvider()

	result := exec(t, p, "api:theme:list", nil)
	require.True(t, result.Success)

	themes := result.Data["themes"].([]map[string]interface{})
	ids := []string{}
	for _, th := range themes {
		ids = append(ids, th["id"].(string))
	}
	assert.ElementsMatch(t, []string{"dark", "light"}, ids)
	assert.Equal(t, "dark", result.Data["active"])
}

func TestSetAndCurrent(t *testing.T) {
	p := NewProvider()

	result := exec(t, p, "api:theme:set", map[string]interface{}{"theme": "light"})
	require.True(t, result.Success)

	result = exec(t, p, "api:theme:current", nil)
	require.True(t, result.Success)
	assert.Equal(t, "light", result.Data["id"])
	assert.Equal(t, "light", result.Data["mode"])
}

func TestSetUnknownTheme(t *testing.T) {
	p := NewProvider()

	result := exec(t, p, "api:theme:set", map[string]interface{}{"theme": "solarized"})
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage(), "unknown theme")

	// active unchanged
	assert.Equal(t, "dark", p.Active().ID)
}

func TestPluginThemeLifecycle(t *testing.T) {
	p := NewProvider()

	err := p.RegisterPluginTheme("nord-plugin", "Nord", &types.ThemeMeta{
		Mode:    "dark",
		Preview: map[string]string{"bg": "#2e3440"},
	})
	require.NoError(t, err)

	result := exec(t, p, "api:theme:set", map[string]interface{}{"theme": "nord-plugin"})
	require.True(t, result.Success)
	assert.Equal(t, "nord-plugin", p.Active().ID)

	// Removing the active plugin theme falls back to its mode's built-in.
	p.RemovePluginTheme("nord-plugin")
	assert.Equal(t, "dark", p.Active().ID)

	result = exec(t, p, "api:theme:set", map[string]interface{}{"theme": "nord-plugin"})
	assert.False(t, result.Success)
}

func TestRegisterPluginThemeValidation(t *testing.T) {
	p := NewProvider()

	assert.Error(t, p.RegisterPluginTheme("x", "X", nil))
	assert.Error(t, p.RegisterPluginTheme("x", "X", &types.ThemeMeta{Mode: "sepia"}))
}

func TestObserverNotified(t *testing.T) {
	p := NewProvider()

	var seen []string
	p.Observe(func(th Theme) { seen = append(seen, th.ID) })

	exec(t, p, "api:theme:set", map[string]interface{}{"theme": "light"})
	exec(t, p, "api:theme:set", map[string]interface{}{"theme": "dark"})

	assert.Equal(t, []string{"light", "dark"}, seen)
}

func TestRemoveBuiltinIsNoOp(t *testing.T) {
	p := NewProvider()

	p.RemovePluginTheme("dark")
	assert.Equal(t, "dark", p.Active().ID)
}
