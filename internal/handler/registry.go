package handler

import (
	"fmt"

	"github.com/cloudledger/jobcore/internal/jobstore"
)

// Registry maps a job-type tag to its Handler, built once at process start.
type Registry struct {
	handlers map[jobstore.JobType]Handler
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[jobstore.JobType]Handler)}
}

// Register binds a handler to a job type. Intended to be called only during
// application wiring, never concurrently with Resolve.
func (r *Registry) Register(t jobstore.JobType, h Handler) {
	r.handlers[t] = h
}

// Resolve returns the handler for t, or ErrUnknownHandler if none is registered.
func (r *Registry) Resolve(t jobstore.JobType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, t)
	}
	return h, nil
}
