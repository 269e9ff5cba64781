package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/bridge"
	"github.com/zyncapp/zync/host/internal/infrastructure/config"
	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/infrastructure/monitoring"
	"github.com/zyncapp/zync/host/internal/protocol"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Manager owns the headless sandboxes, one per plugin with a logic
// payload. It pumps each instance's outbound envelopes through the
// capability bridge and routes responses back in.
type Manager struct {
	bridge  *bridge.Bridge
	cfg     config.SandboxConfig
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewManager creates a sandbox manager dispatching through br.
func NewManager(br *bridge.Bridge, cfg config.SandboxConfig, log *logging.Logger) *Manager {
	return &Manager{
		bridge:    br,
		cfg:       cfg,
		log:       log.Named("sandbox"),
		instances: make(map[string]*Instance),
	}
}

// WithMetrics adds metrics tracking to the manager.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Start creates and boots a sandbox for the plugin. The call returns
// once the plugin's logic has been evaluated; an evaluation fault is
// logged, leaves the instance alive in the Starting state, and is not
// an error here.
func (m *Manager) Start(plugin types.Plugin) (*Instance, error) {
	if !plugin.HasLogic() {
		return nil, fmt.Errorf("plugin %s has no logic payload", plugin.ID)
	}

	m.mu.Lock()
	if _, exists := m.instances[plugin.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("plugin %s already has a sandbox", plugin.ID)
	}
	inst := newInstance(plugin.ID, m.cfg.ExecTimeout, m.log)
	inst.untrack = m.trackPending(inst)
	m.instances[plugin.ID] = inst
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SandboxesActive.Inc()
	}

	go inst.loop()
	go m.pump(inst)

	// Boot on the VM loop, but wait for it so callers observe a settled
	// state when Start returns. A Terminate racing the boot closes the
	// instance's done channel; both waits select against it so the
	// caller never blocks on a loop that already exited.
	booted := make(chan error, 1)
	boot := func() {
		booted <- inst.boot(plugin.Logic)
	}
	select {
	case inst.jobs <- boot:
	case <-inst.done:
		return nil, fmt.Errorf("plugin %s sandbox terminated during startup", plugin.ID)
	}

	var bootErr error
	select {
	case bootErr = <-booted:
	case <-inst.done:
		return nil, fmt.Errorf("plugin %s sandbox terminated during startup", plugin.ID)
	}
	if errors.Is(bootErr, errTerminated) {
		return nil, fmt.Errorf("plugin %s sandbox terminated during startup", plugin.ID)
	}
	if bootErr != nil {
		if m.metrics != nil {
			m.metrics.SandboxFaults.Inc()
		}
	}

	m.log.Info("sandbox started",
		zap.String("plugin", plugin.ID),
		zap.String("state", string(inst.State())))
	return inst, nil
}

// trackPending mirrors an instance's outstanding request count into the
// shared pending-requests gauge. The returned release function removes
// the instance's remaining contribution on teardown; it is nil when
// metrics are disabled.
func (m *Manager) trackPending(inst *Instance) func() {
	if m.metrics == nil {
		return nil
	}

	var mu sync.Mutex
	last := 0
	inst.correlator.Observe(func(depth int) {
		mu.Lock()
		m.metrics.PendingRequests.Add(float64(depth - last))
		last = depth
		mu.Unlock()
	})
	return func() {
		inst.correlator.Observe(nil)
		mu.Lock()
		m.metrics.PendingRequests.Sub(float64(last))
		last = 0
		mu.Unlock()
	}
}

// pump moves envelopes from the sandbox to the bridge and feeds
// responses back. Exits when the instance's outbound channel closes.
func (m *Manager) pump(inst *Instance) {
	for env := range inst.outbound {
		if env.IsInit() {
			// Readiness is advisory; the instance already flipped its
			// own state before announcing.
			m.log.Debug("sandbox ready", zap.String("plugin", inst.pluginID))
			continue
		}

		sctx := &types.Context{PluginID: inst.pluginID}
		resp := m.bridge.Dispatch(context.Background(), sctx, env)
		if resp != nil && !inst.Deliver(*resp) {
			m.log.Debug("response dropped, sandbox gone",
				zap.String("plugin", inst.pluginID),
				zap.String("type", resp.Type))
		}
	}
}

// Get returns the live instance for a plugin.
func (m *Manager) Get(pluginID string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[pluginID]
	return inst, ok
}

// State returns a plugin's sandbox state; Unloaded when none exists.
func (m *Manager) State(pluginID string) types.SandboxState {
	inst, ok := m.Get(pluginID)
	if !ok {
		return types.StateUnloaded
	}
	return inst.State()
}

// Deliver routes an envelope to a plugin's live sandbox. Implements the
// response router used by the quick-pick relay.
func (m *Manager) Deliver(pluginID string, env protocol.Envelope) bool {
	inst, ok := m.Get(pluginID)
	if !ok {
		return false
	}
	return inst.Deliver(env)
}

// InvokeCommand asks a plugin's sandbox to run a registered command.
func (m *Manager) InvokeCommand(pluginID, commandID string) bool {
	return m.Deliver(pluginID, protocol.NewCommandExecute(commandID))
}

// Terminate tears down a plugin's sandbox and forgets it.
func (m *Manager) Terminate(pluginID string) error {
	m.mu.Lock()
	inst, ok := m.instances[pluginID]
	if ok {
		delete(m.instances, pluginID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("plugin %s has no sandbox", pluginID)
	}

	inst.terminate()
	if inst.untrack != nil {
		inst.untrack()
	}
	if m.metrics != nil {
		m.metrics.SandboxesActive.Dec()
	}
	m.log.Info("sandbox terminated", zap.String("plugin", pluginID))
	return nil
}

// Shutdown terminates every sandbox. No instance survives it.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	instances := m.instances
	m.instances = make(map[string]*Instance)
	m.mu.Unlock()

	for _, inst := range instances {
		inst.terminate()
		if inst.untrack != nil {
			inst.untrack()
		}
		if m.metrics != nil {
			m.metrics.SandboxesActive.Dec()
		}
	}
	if len(instances) > 0 {
		m.log.Info("all sandboxes terminated", zap.Int("count", len(instances)))
	}
}

// Count returns the number of live sandboxes.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instances)
}
