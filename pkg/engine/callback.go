package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/getmockd/expectd/pkg/expectation"
)

// ErrCallbackNotFound is returned when a callback action names a client id
// with no registered handler.
var ErrCallbackNotFound = errors.New("no callback registered")

// Callback produces the response for a callback action.
type Callback interface {
	Handle(ctx context.Context, req *expectation.HTTPRequest) (*expectation.HTTPResponse, error)
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(ctx context.Context, req *expectation.HTTPRequest) (*expectation.HTTPResponse, error)

// Handle calls f.
func (f CallbackFunc) Handle(ctx context.Context, req *expectation.HTTPRequest) (*expectation.HTTPResponse, error) {
	return f(ctx, req)
}

// CallbackRegistry maps client ids to callbacks.
type CallbackRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Callback
}

func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{handlers: make(map[string]Callback)}
}

// Register adds or replaces the callback for clientID.
func (r *CallbackRegistry) Register(clientID string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[clientID] = cb
}

// Unregister removes the callback for clientID.
func (r *CallbackRegistry) Unregister(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, clientID)
}

func (r *CallbackRegistry) Lookup(clientID string) (Callback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.handlers[clientID]
	return cb, ok
}
