package terminal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	writes []string
	status []string
}

func (s *recordingSink) WriteToTerminal(text string) { s.writes = append(s.writes, text) }
func (s *recordingSink) SetStatusBar(text string)    { s.status = append(s.status, text) }

func TestSendToTerminal(t *testing.T) {
	sink := &recordingSink{}
	p := NewProvider(sink)

	result, err := p.Execute(context.Background(), "zync:terminal:send",
		map[string]interface{}{"text": "git status\n"}, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, []string{"git status\n"}, sink.writes)
}

func TestSendWithoutSinkFails(t *testing.T) {
	p := NewProvider(nil)

	result, err := p.Execute(context.Background(), "zync:terminal:send",
		map[string]interface{}{"text": "ls"}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage(), "no terminal attached")
}

func TestStatusBar(t *testing.T) {
	sink := &recordingSink{}
	p := NewProvider(sink)

	result, err := p.Execute(context.Background(), "zync:statusbar:set",
		map[string]interface{}{"text": "3 problems"}, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "3 problems", p.Status())
	assert.Equal(t, []string{"3 problems"}, sink.status)
}

func TestStatusBarWithoutSinkStillRecords(t *testing.T) {
	p := NewProvider(nil)

	result, err := p.Execute(context.Background(), "zync:statusbar:set",
		map[string]interface{}{"text": "ready"}, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "ready", p.Status())
}

func TestAttachLater(t *testing.T) {
	p := NewProvider(nil)
	sink := &recordingSink{}
	p.Attach(sink)

	_, err := p.Execute(context.Background(), "zync:terminal:send",
		map[string]interface{}{"text": "echo hi\n"}, nil)
	require.NoError(t, err)
	assert.Len(t, sink.writes, 1)
}

func TestMissingText(t *testing.T) {
	p := NewProvider(&recordingSink{})

	result, err := p.Execute(context.Background(), "zync:terminal:send", map[string]interface{}{}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
}
