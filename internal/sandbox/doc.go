// Package sandbox runs headless plugin logic in embedded JavaScript VMs.
//
// Each plugin with a logic payload gets one VM on its own loop
// goroutine. Plugin code reaches the host only through the installed
// zync API object; every call crosses the boundary as an envelope, and
// responses settle promises back on the VM's goroutine. The VM has no
// other host access.
//
// Lifecycle: Unloaded, Starting while the logic evaluates, Ready once
// the sandbox announces init, Terminated after teardown. Readiness is
// advisory; delivery works from Starting on. Faults in plugin code are
// logged and contained, never fatal to the host.
package sandbox
