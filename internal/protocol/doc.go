// Package protocol defines the message envelope and correlation rules
// shared by both sandbox kinds.
//
// Every capability invocation that expects a result crosses the boundary
// as {type, payload:{...args, requestId}}; the requesting side registers
// the requestId in a Correlator and settles it when the matching
// ":response" envelope arrives. Ordering is only guaranteed within one
// channel; request/response pairs are correlated independently, so
// out-of-order completion is legal.
//
// Policy, applied uniformly:
//   - frames without a type are dropped silently
//   - responses for unknown or already-settled requestIds are dropped
//   - "init" transitions a sandbox to ready and is never correlated
//   - fire-and-forget messages carry no requestId and get no reply
package protocol
