package protocol

import (
	"context"
	"sync"
)

// Pending holds the settlement callbacks for one outstanding request.
// Exactly one of Resolve or Reject runs, at most once.
type Pending struct {
	Resolve func(payload map[string]interface{})
	Reject  func(message string)
}

// Correlator is the pending-request table owned by the requesting side of
// a sandbox boundary.
//
// Entries are keyed by requestId. Settlement removes the entry, so a
// second response for the same id is a no-op. There is no timeout here:
// an entry that never receives a response stays registered until the
// owner drops it or discards the table. Callers that must not wait
// forever bound the wait themselves (see Future.Await).
type Correlator struct {
	mu      sync.Mutex
	pending map[string]Pending

	// observer is notified of table depth changes; used for metrics.
	observer func(depth int)
}

// NewCorrelator creates an empty pending-request table.
func NewCorrelator() *Correlator {
	return &Correlator{pending: make(map[string]Pending)}
}

// Observe registers a depth observer. Pass nil to remove.
func (c *Correlator) Observe(fn func(depth int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// RegisterFunc tracks a request with explicit settlement callbacks.
func (c *Correlator) RegisterFunc(requestID string, p Pending) {
	c.mu.Lock()
	c.pending[requestID] = p
	c.notifyLocked()
	c.mu.Unlock()
}

// Register tracks a request and returns a Future settled by the matching
// response.
func (c *Correlator) Register(requestID string) *Future {
	f := newFuture()
	c.RegisterFunc(requestID, Pending{
		Resolve: f.resolve,
		Reject:  f.reject,
	})
	return f
}

// Settle routes a response envelope to its pending entry.
//
// Returns false, without side effects, when the envelope is not a
// response, carries no requestId, or no entry matches (stale or already
// settled). An "error" field in the payload rejects, anything else
// resolves with the full payload.
func (c *Correlator) Settle(env Envelope) bool {
	if !env.IsResponse() {
		return false
	}
	id := env.RequestID()
	if id == "" {
		return false
	}

	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		c.notifyLocked()
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	if msg, failed := env.Payload["error"].(string); failed {
		if p.Reject != nil {
			p.Reject(msg)
		}
		return true
	}
	if p.Resolve != nil {
		p.Resolve(env.Payload)
	}
	return true
}

// Drop removes an entry without settling it.
func (c *Correlator) Drop(requestID string) {
	c.mu.Lock()
	if _, ok := c.pending[requestID]; ok {
		delete(c.pending, requestID)
		c.notifyLocked()
	}
	c.mu.Unlock()
}

// Len returns the number of outstanding requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// notifyLocked must be called with c.mu held.
func (c *Correlator) notifyLocked() {
	if c.observer != nil {
		c.observer(len(c.pending))
	}
}

// Future is the Go-side deferred result of a correlated request.
type Future struct {
	done    chan struct{}
	once    sync.Once
	payload map[string]interface{}
	errMsg  string
	failed  bool
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(payload map[string]interface{}) {
	f.once.Do(func() {
		f.payload = payload
		close(f.done)
	})
}

func (f *Future) reject(message string) {
	f.once.Do(func() {
		f.errMsg = message
		f.failed = true
		close(f.done)
	})
}

// Await blocks until the future settles or ctx ends. The protocol itself
// never times requests out; the context is the caller's only bound.
func (f *Future) Await(ctx context.Context) (map[string]interface{}, error) {
	select {
	case <-f.done:
		if f.failed {
			return nil, &ResponseError{Message: f.errMsg}
		}
		return f.payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the future has already been fulfilled.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// ResponseError carries the error string from an error-bearing response.
type ResponseError struct {
	Message string
}

func (e *ResponseError) Error() string { return e.Message }
