package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

func TestProviderRegister(t *testing.T) {
	reg := NewRegistry()
	p := NewProvider(reg)
	sctx := &types.Context{PluginID: "p1"}

	result, err := p.Execute(context.Background(), "api:commands:register",
		map[string]interface{}{"id": "notes.open", "title": "Open Notes"}, sctx)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, true, result.Data["accepted"])

	stored, ok := reg.Get("notes.open")
	require.True(t, ok)
	assert.Equal(t, "p1", stored.OwnerID)
	assert.Equal(t, "Open Notes", stored.Title)
}

// The second registration of an id succeeds as a call but changes
// nothing; the first owner keeps the command.
func TestProviderDuplicateIsSilentNoOp(t *testing.T) {
	reg := NewRegistry()
	p := NewProvider(reg)

	result, err := p.Execute(context.Background(), "api:commands:register",
		map[string]interface{}{"id": "x", "title": "First"}, &types.Context{PluginID: "p1"})
	require.NoError(t, err)
	require.True(t, result.Success)

	result, err = p.Execute(context.Background(), "api:commands:register",
		map[string]interface{}{"id": "x", "title": "Second"}, &types.Context{PluginID: "p2"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, false, result.Data["accepted"])

	stored, _ := reg.Get("x")
	assert.Equal(t, "p1", stored.OwnerID)
	assert.Equal(t, "First", stored.Title)
}

func TestProviderListOwnedOnly(t *testing.T) {
	reg := NewRegistry()
	p := NewProvider(reg)

	reg.Register(Registration{ID: "a", OwnerID: "p1"})
	reg.Register(Registration{ID: "b", OwnerID: "p2"})

	result, err := p.Execute(context.Background(), "api:commands:list", nil, &types.Context{PluginID: "p1"})
	require.NoError(t, err)
	require.True(t, result.Success)

	commands := result.Data["commands"].([]map[string]interface{})
	require.Len(t, commands, 1)
	assert.Equal(t, "a", commands[0]["id"])
}

func TestProviderRequiresPluginContext(t *testing.T) {
	p := NewProvider(NewRegistry())

	result, err := p.Execute(context.Background(), "api:commands:register",
		map[string]interface{}{"id": "x"}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
