package ui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/protocol"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

type recordingSink struct {
	notices  []string
	confirms []string
}

func (s *recordingSink) Notify(level, message, _ string) {
	s.notices = append(s.notices, level+": "+message)
}

func (s *recordingSink) Confirm(_, requestID, _ string) {
	s.confirms = append(s.confirms, requestID)
}

type fakeResponder struct {
	alive     bool
	delivered []protocol.Envelope
}

func (r *fakeResponder) DeliverToPanel(_ string, env protocol.Envelope) bool {
	if !r.alive {
		return false
	}
	r.delivered = append(r.delivered, env)
	return true
}

func newTestProvider() (*Provider, *recordingSink, *fakeResponder) {
	sink := &recordingSink{}
	responder := &fakeResponder{alive: true}
	return NewProvider(sink, responder, logging.NewNop()), sink, responder
}

func TestConfirmRoundTrip(t *testing.T) {
	p, sink, responder := newTestProvider()
	sctx := &types.Context{PanelID: "panel_1", RequestID: "r1"}

	result, err := p.Execute(context.Background(), "zync:ui:confirm",
		map[string]interface{}{"message": "Delete file?"}, sctx)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.True(t, result.Deferred)
	assert.Equal(t, []string{"r1"}, sink.confirms)

	p.Resolve("r1", true)

	require.Len(t, responder.delivered, 1)
	env := responder.delivered[0]
	assert.Equal(t, "zync:ui:confirm:response", env.Type)
	assert.Equal(t, "r1", env.RequestID())
	payload := env.Payload["result"].(map[string]interface{})
	assert.Equal(t, true, payload["confirmed"])
}

func TestConfirmAnsweredOnce(t *testing.T) {
	p, _, responder := newTestProvider()

	_, err := p.Execute(context.Background(), "zync:ui:confirm",
		map[string]interface{}{"message": "?"},
		&types.Context{PanelID: "panel_1", RequestID: "r1"})
	require.NoError(t, err)

	p.Resolve("r1", false)
	p.Resolve("r1", true)
	assert.Len(t, responder.delivered, 1)
}

func TestConfirmDroppedWhenSurfaceClosed(t *testing.T) {
	p, _, responder := newTestProvider()
	responder.alive = false

	_, err := p.Execute(context.Background(), "zync:ui:confirm",
		map[string]interface{}{"message": "?"},
		&types.Context{PanelID: "panel_1", RequestID: "r1"})
	require.NoError(t, err)

	p.Resolve("r1", true)
	assert.Empty(t, responder.delivered)
}

func TestAbandonDropsPanelPrompts(t *testing.T) {
	p, _, responder := newTestProvider()

	_, err := p.Execute(context.Background(), "zync:ui:confirm",
		map[string]interface{}{"message": "?"},
		&types.Context{PanelID: "panel_1", RequestID: "r1"})
	require.NoError(t, err)

	p.Abandon("panel_1")
	p.Resolve("r1", true)
	assert.Empty(t, responder.delivered)
}

func TestNotify(t *testing.T) {
	p, sink, _ := newTestProvider()

	result, err := p.Execute(context.Background(), "zync:ui:notify",
		map[string]interface{}{"type": "warning", "message": "low disk"},
		&types.Context{PanelID: "panel_1"})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, []string{"warning: low disk"}, sink.notices)
}

func TestConfirmRequiresPanelContext(t *testing.T) {
	p, sink, _ := newTestProvider()

	result, err := p.Execute(context.Background(), "zync:ui:confirm",
		map[string]interface{}{"message": "?"}, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, sink.confirms)
}
