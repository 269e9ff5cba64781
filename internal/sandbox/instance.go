package sandbox

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zyncapp/zync/host/internal/infrastructure/logging"
	"github.com/zyncapp/zync/host/internal/protocol"
	"github.com/zyncapp/zync/host/internal/shared/types"
)

// outboundBuffer bounds how many envelopes a sandbox can have in flight
// toward the host before further sends are dropped.
const outboundBuffer = 64

// errTerminated reports that the instance was torn down mid-operation.
var errTerminated = errors.New("sandbox terminated")

// Instance is one plugin's headless sandbox: a JavaScript VM, its loop
// goroutine, and the channel pair crossing the boundary.
//
// Every touch of the VM happens on the loop goroutine. Capability calls
// made by plugin code are already on it; envelopes arriving from the
// host are handed to it through the inbound channel. Promise settlement
// therefore always runs on the VM's own goroutine.
type Instance struct {
	pluginID string
	vm       *goja.Runtime
	log      *logging.Logger

	correlator *protocol.Correlator
	handlers   map[string]goja.Callable

	inbound  chan protocol.Envelope
	outbound chan protocol.Envelope
	jobs     chan func()

	// done closes when terminate runs, so nothing ever blocks sending
	// work toward a loop goroutine that has exited.
	done chan struct{}

	// untrack releases the instance's metrics contribution; set by the
	// manager when metrics are enabled.
	untrack func()

	execTimeout time.Duration

	mu    sync.Mutex
	state types.SandboxState
}

func newInstance(pluginID string, execTimeout time.Duration, log *logging.Logger) *Instance {
	return &Instance{
		pluginID:    pluginID,
		vm:          goja.New(),
		log:         log,
		correlator:  protocol.NewCorrelator(),
		handlers:    make(map[string]goja.Callable),
		inbound:     make(chan protocol.Envelope, outboundBuffer),
		outbound:    make(chan protocol.Envelope, outboundBuffer),
		jobs:        make(chan func()),
		done:        make(chan struct{}),
		execTimeout: execTimeout,
		state:       types.StateUnloaded,
	}
}

// PluginID returns the owning plugin's id.
func (i *Instance) PluginID() string { return i.pluginID }

// State returns the current lifecycle state.
func (i *Instance) State() types.SandboxState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// setStateIfLive moves to s unless the instance already terminated, so a
// boot racing a teardown cannot resurrect the state.
func (i *Instance) setStateIfLive(s types.SandboxState) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == types.StateTerminated {
		return false
	}
	i.state = s
	return true
}

// Deliver hands an envelope to the sandbox. Returns false when the
// instance has terminated or its inbound channel is full; the envelope
// is dropped either way, never queued against a dead VM.
func (i *Instance) Deliver(env protocol.Envelope) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == types.StateTerminated {
		return false
	}
	select {
	case i.inbound <- env:
		return true
	default:
		return false
	}
}

// Pending returns the number of capability requests awaiting responses.
func (i *Instance) Pending() int {
	return i.correlator.Len()
}

// loop is the VM goroutine. It exits when the inbound channel closes.
func (i *Instance) loop() {
	for {
		select {
		case job := <-i.jobs:
			job()
		case env, ok := <-i.inbound:
			if !ok {
				return
			}
			i.handle(env)
		}
	}
}

// handle processes one envelope on the loop goroutine.
func (i *Instance) handle(env protocol.Envelope) {
	switch {
	case env.IsResponse():
		// Settlement resolves or rejects the plugin's promise right
		// here, on the VM goroutine. Unknown ids are stale; drop them.
		if !i.correlator.Settle(env) {
			i.log.Debug("stale response dropped",
				zap.String("plugin", i.pluginID),
				zap.String("type", env.Type))
		}
	case env.Type == protocol.TypeCommandExecute:
		i.runCommand(env)
	default:
		i.log.Debug("unhandled sandbox message",
			zap.String("plugin", i.pluginID),
			zap.String("type", env.Type))
	}
}

// runCommand invokes a handler from the sandbox-local command table.
// The handler body never leaves the sandbox; the host only ever names
// the command id.
func (i *Instance) runCommand(env protocol.Envelope) {
	cmdID, _ := env.Payload["id"].(string)
	handler, ok := i.handlers[cmdID]
	if !ok {
		i.log.Debug("command not handled by sandbox",
			zap.String("plugin", i.pluginID),
			zap.String("command", cmdID))
		return
	}

	err := i.withTimeout(func() error {
		_, err := handler(goja.Undefined(), i.vm.ToValue(cmdID))
		return err
	})
	if err != nil {
		// Plugin faults never take the host down.
		i.log.Warn("command handler fault",
			zap.String("plugin", i.pluginID),
			zap.String("command", cmdID),
			zap.Error(err))
	}
}

// boot installs the capability shim and evaluates the plugin's logic,
// then announces readiness. Runs on the loop goroutine.
func (i *Instance) boot(logic string) error {
	if !i.setStateIfLive(types.StateStarting) {
		return errTerminated
	}
	i.installAPI()

	err := i.withTimeout(func() error {
		_, err := i.vm.RunString(logic)
		return err
	})
	if err != nil {
		// A fault during evaluation leaves the sandbox alive but not
		// ready; whatever registered before the fault keeps working.
		i.log.Warn("plugin evaluation fault",
			zap.String("plugin", i.pluginID),
			zap.Error(err))
		return err
	}

	if !i.setStateIfLive(types.StateReady) {
		return errTerminated
	}
	i.send(protocol.NewInit())
	return nil
}

// withTimeout interrupts the VM if fn runs past the exec timeout.
func (i *Instance) withTimeout(fn func() error) error {
	if i.execTimeout <= 0 {
		return fn()
	}
	timer := time.AfterFunc(i.execTimeout, func() {
		i.vm.Interrupt("execution timed out")
	})
	defer func() {
		timer.Stop()
		i.vm.ClearInterrupt()
	}()
	return fn()
}

// send posts an envelope toward the host without blocking the VM loop.
// A terminated instance sends nothing; the state check and the channel
// close are ordered by the instance mutex.
func (i *Instance) send(env protocol.Envelope) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == types.StateTerminated {
		return
	}
	select {
	case i.outbound <- env:
	default:
		i.log.Warn("outbound channel full, envelope dropped",
			zap.String("plugin", i.pluginID),
			zap.String("type", env.Type))
	}
}

// request issues a correlated capability call and returns the promise
// plugin code awaits. Runs on the loop goroutine.
func (i *Instance) request(opType string, params map[string]interface{}) goja.Value {
	promise, resolve, reject := i.vm.NewPromise()

	reqID := uuid.NewString()
	i.correlator.RegisterFunc(reqID, protocol.Pending{
		Resolve: func(payload map[string]interface{}) {
			resolve(i.vm.ToValue(payload["result"]))
		},
		Reject: func(message string) {
			reject(i.vm.ToValue(message))
		},
	})

	payload := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["requestId"] = reqID

	i.send(protocol.Envelope{Type: opType, Payload: payload})
	return i.vm.ToValue(promise)
}

// fire sends an uncorrelated capability call; nothing comes back.
func (i *Instance) fire(opType string, params map[string]interface{}) {
	i.send(protocol.Envelope{Type: opType, Payload: params})
}

// terminate tears the instance down. After it returns the state is
// Terminated, both channels are closed, and outstanding promises stay
// unsettled forever.
func (i *Instance) terminate() {
	i.mu.Lock()
	if i.state == types.StateTerminated {
		i.mu.Unlock()
		return
	}
	i.state = types.StateTerminated
	i.mu.Unlock()

	// Break any script mid-flight, then stop the loop. Deliver checks
	// state under the same mutex, so nothing sends after the close.
	close(i.done)
	i.vm.Interrupt("sandbox terminated")
	close(i.inbound)
	close(i.outbound)
}

// ---- capability shim ----

// installAPI builds the zync object plugin code programs against.
func (i *Instance) installAPI() {
	vm := i.vm
	zync := vm.NewObject()

	fs := vm.NewObject()
	fs.Set("read", i.asyncOp("api:fs:read", "path"))
	fs.Set("write", i.asyncOp("api:fs:write", "path", "data"))
	fs.Set("list", i.asyncOp("api:fs:list", "path", "glob"))
	fs.Set("exists", i.asyncOp("api:fs:exists", "path"))
	fs.Set("mkdir", i.asyncOp("api:fs:mkdir", "path"))
	zync.Set("fs", fs)

	window := vm.NewObject()
	window.Set("showQuickPick", i.asyncOp("api:window:showQuickPick", "items", "options"))
	window.Set("create", i.asyncOp("api:window:create", "title"))
	zync.Set("window", window)

	theme := vm.NewObject()
	theme.Set("set", i.asyncOp("api:theme:set", "theme"))
	theme.Set("current", i.asyncOp("api:theme:current"))
	theme.Set("list", i.asyncOp("api:theme:list"))
	zync.Set("theme", theme)

	cmds := vm.NewObject()
	cmds.Set("register", i.jsRegisterCommand)
	zync.Set("commands", cmds)

	zync.Set("log", i.jsLog)
	zync.Set("notify", i.jsNotify)
	vm.Set("zync", zync)

	// console.log lands in the host log like an api:log call would.
	console := vm.NewObject()
	console.Set("log", i.jsLog)
	console.Set("error", func(call goja.FunctionCall) goja.Value {
		i.fire("api:log", map[string]interface{}{
			"level":   "error",
			"message": formatArgs(call),
		})
		return goja.Undefined()
	})
	vm.Set("console", console)
}

// asyncOp returns a shim function issuing a correlated request. A single
// object argument is used as the parameter map; otherwise positional
// arguments map onto names in order.
func (i *Instance) asyncOp(opType string, names ...string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return i.request(opType, argsToParams(call, names))
	}
}

// jsRegisterCommand is zync.commands.register(id, title, handler).
// The handler stays in the sandbox-local table; only id and title cross
// to the host.
func (i *Instance) jsRegisterCommand(call goja.FunctionCall) goja.Value {
	cmdID := call.Argument(0).String()
	title := call.Argument(1).String()

	if handler, ok := goja.AssertFunction(call.Argument(2)); ok {
		i.handlers[cmdID] = handler
	}

	return i.request("api:commands:register", map[string]interface{}{
		"id":    cmdID,
		"title": title,
	})
}

// jsLog is zync.log(message) / zync.log(level, message).
func (i *Instance) jsLog(call goja.FunctionCall) goja.Value {
	level := "info"
	message := formatArgs(call)
	if len(call.Arguments) >= 2 {
		level = call.Argument(0).String()
		message = call.Argument(1).String()
	}
	i.fire("api:log", map[string]interface{}{
		"level":   level,
		"message": message,
	})
	return goja.Undefined()
}

// jsNotify is zync.notify(message) / zync.notify(type, message).
func (i *Instance) jsNotify(call goja.FunctionCall) goja.Value {
	kind := "info"
	message := call.Argument(0).String()
	if len(call.Arguments) >= 2 {
		kind = call.Argument(0).String()
		message = call.Argument(1).String()
	}
	i.fire("api:ui:notify", map[string]interface{}{
		"type":    kind,
		"message": message,
	})
	return goja.Undefined()
}

func argsToParams(call goja.FunctionCall, names []string) map[string]interface{} {
	if len(call.Arguments) == 1 {
		if obj, ok := call.Argument(0).Export().(map[string]interface{}); ok {
			return obj
		}
	}

	params := make(map[string]interface{})
	for idx, name := range names {
		if idx >= len(call.Arguments) {
			break
		}
		arg := call.Argument(idx)
		if goja.IsUndefined(arg) || goja.IsNull(arg) {
			continue
		}
		params[name] = arg.Export()
	}
	return params
}

func formatArgs(call goja.FunctionCall) string {
	out := ""
	for idx, arg := range call.Arguments {
		if idx > 0 {
			out += " "
		}
		out += fmt.Sprintf("%v", arg.Export())
	}
	return out
}
