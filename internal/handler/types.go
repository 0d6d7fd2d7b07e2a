// Package handler maps job-type tags to handler implementations, each
// consuming a claimed job and a tenant-scoped session (SPEC_FULL.md §4.4).
//
// Grounded on original_source/app/services/jobs/processor.py's
// _register_default_handlers / _handle_* methods; the registry itself is a
// tagged-variant capability map populated once at process start, per §9's
// redesign of the source's dynamic string-tag dispatch.
package handler

import (
	"context"
	"encoding/json"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/tenant"
)

// Handler executes one job under a tenant-scoped session and returns a
// result value to persist on success. Handlers must be idempotent: the
// processor may invoke Execute more than once for the same job if a prior
// attempt crashed after succeeding but before its completion was committed.
type Handler interface {
	Execute(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error)

func (f HandlerFunc) Execute(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error) {
	return f(ctx, job, session)
}
