package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/infrastructure/monitoring"
	"github.com/zyncapp/zync/host/internal/protocol"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Bridge translates inbound capability envelopes into privileged host
// operations and produces correlated responses.
type Bridge struct {
	registry *Registry
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// New creates a bridge over a capability registry.
func New(registry *Registry, log *logging.Logger) *Bridge {
	return &Bridge{registry: registry, log: log}
}

// WithMetrics adds metrics tracking to the bridge.
func (b *Bridge) WithMetrics(m *monitoring.Metrics) *Bridge {
	b.metrics = m
	return b
}

// Dispatch executes the privileged operation named by env and returns
// the response envelope, or nil when the message expects no reply.
//
// A privileged-operation failure always becomes an error-carrying
// response, never an escaped panic: the host must stay up no matter what
// a provider or a plugin does. An envelope naming an operation outside
// the registered set is answered with an explicit unsupported-capability
// error rather than stranding the caller's pending request.
func (b *Bridge) Dispatch(ctx context.Context, sctx *types.Context, env protocol.Envelope) *protocol.Envelope {
	// Responses and the readiness handshake are not capability calls.
	if env.IsResponse() || env.IsInit() {
		b.drop("not_a_request")
		return nil
	}

	requestID := env.RequestID()

	provider, ok := b.registry.Lookup(env.Type)
	if !ok {
		b.drop("unsupported")
		b.log.Debug("unsupported capability",
			zap.String("type", env.Type),
			zap.String("plugin", pluginID(sctx)))
		if requestID == "" {
			return nil
		}
		resp := protocol.NewErrorResponse(env.Type, requestID, fmt.Sprintf("unsupported capability: %s", env.Type))
		return &resp
	}

	family := provider.Definition().Family
	start := time.Now()
	result, err := b.execute(ctx, provider, env, callContext(sctx, requestID))

	if err != nil || !result.Success {
		message := "capability failed"
		if err != nil {
			message = err.Error()
		} else if result.Error != nil {
			message = *result.Error
		}
		b.record(family, "error", start)
		b.log.Debug("capability error",
			zap.String("type", env.Type),
			zap.String("plugin", pluginID(sctx)),
			zap.String("error", message))
		if requestID == "" {
			return nil
		}
		resp := protocol.NewErrorResponse(env.Type, requestID, message)
		return &resp
	}

	b.record(family, "ok", start)
	if requestID == "" || result.Deferred {
		// Fire-and-forget, or a provider that answers through its own
		// routed response later. Nothing to send now.
		return nil
	}
	resp := protocol.NewResponse(env.Type, requestID, result.Data)
	return &resp
}

// execute runs the provider with panic containment.
func (b *Bridge) execute(ctx context.Context, provider Provider, env protocol.Envelope, sctx *types.Context) (result *types.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("capability panic",
				zap.String("type", env.Type),
				zap.Any("panic", r))
			result = nil
			err = fmt.Errorf("internal error in %s", env.Type)
		}
	}()

	params := requestParams(env)
	result, err = provider.Execute(ctx, env.Type, params, sctx)
	if err == nil && result == nil {
		err = fmt.Errorf("capability %s returned no result", env.Type)
	}
	return result, err
}

// requestParams copies the payload without the correlation token.
func requestParams(env protocol.Envelope) map[string]interface{} {
	params := make(map[string]interface{}, len(env.Payload))
	for k, v := range env.Payload {
		if k == "requestId" {
			continue
		}
		params[k] = v
	}
	return params
}

func (b *Bridge) record(family, outcome string, start time.Time) {
	if b.metrics != nil {
		b.metrics.RecordDispatch(family, outcome, time.Since(start))
	}
}

func (b *Bridge) drop(reason string) {
	if b.metrics != nil {
		b.metrics.RecordDrop(reason)
	}
}

func pluginID(sctx *types.Context) string {
	if sctx == nil {
		return ""
	}
	return sctx.PluginID
}

// callContext copies the sandbox context with the call's correlation
// token filled in. The caller's context value is never mutated.
func callContext(sctx *types.Context, requestID string) *types.Context {
	out := types.Context{RequestID: requestID}
	if sctx != nil {
		out.PluginID = sctx.PluginID
		out.PanelID = sctx.PanelID
		out.ConnectionID = sctx.ConnectionID
	}
	return &out
}
