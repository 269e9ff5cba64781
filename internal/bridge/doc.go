// Package bridge is the host-side capability dispatcher.
//
// It receives envelopes from sandbox channels, executes the privileged
// operation through a registered provider, and returns a correlated
// response envelope. The capability surface is a closed registry: each
// sandbox kind gets its own Registry holding only the providers that
// kind may reach (the headless api:* set, the panel zync:* set), and
// everything outside the set is answered with an explicit error.
//
// The bridge never lets a provider failure escape: errors, missing
// results, and panics all become error-carrying responses.
package bridge
