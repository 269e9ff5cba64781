// Package panel serves plugin panel surfaces.
//
// A panel is rendered markup shown in a webview; its only path back to
// the host is a websocket surface carrying envelopes. The host composes
// the document itself, injecting a capability shim and a one-time token
// that the websocket upgrade must present. Everything arriving on the
// surface goes through the panel capability registry, which is narrower
// than the headless one.
package panel
