// Package server wires the host together and exposes its HTTP surface:
// the chrome websocket the application shell attaches to, the panel
// surface websockets, plugin and command management routes, and the
// metrics endpoint.
package server
