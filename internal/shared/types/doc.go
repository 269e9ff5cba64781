// Package types provides shared data structures for the Zync plugin host.
//
// This package defines core types used across all host components,
// ensuring type safety and consistent data structures.
//
// Core Types:
//   - Plugin: Installed extension record (logic, style, panel, theme)
//   - Capability: Capability family served by the bridge
//   - Op: One operation within a capability family
//   - Context: Sandbox identity attached to a capability call
//   - Result: Standard capability execution result
//
// State Management:
//   - SandboxState: Sandbox lifecycle enum (unloaded, starting, ready,
//     terminated)
//   - StoreStats: Plugin store statistics
//
// Example Usage:
//
//	plugin := &types.Plugin{
//	    ID:      "git-tools",
//	    Name:    "Git Tools",
//	    Version: "1.2.0",
//	    Logic:   script,
//	    Enabled: true,
//	}
package types
