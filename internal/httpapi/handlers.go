package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/cloudledger/jobcore/internal/jobstore"
)

// enqueueRequest is the body accepted by POST /jobs.
type enqueueRequest struct {
	Type     jobstore.JobType `json:"type"`
	Payload  json.RawMessage  `json:"payload"`
	Priority int              `json:"priority"`
	DedupKey *string          `json:"dedup_key,omitempty"`
}

// handleEnqueue enqueues a single job on behalf of the authenticated tenant.
// Only the tenant-facing job types in jobstore.UserEnqueueableTypes may be
// requested directly; everything else is scheduler/processor-internal (§6).
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	if tenantID == nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "X-Tenant-ID header is required")
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if !jobstore.UserEnqueueableTypes[req.Type] {
		RespondError(w, http.StatusForbidden, "forbidden", "job type is not directly enqueueable")
		return
	}

	maxAttempts := jobstore.DefaultMaxAttempts
	if req.Type == jobstore.TypeWebhookRetry {
		maxAttempts = jobstore.WebhookMaxAttempts
	}

	job, err := s.Store.Enqueue(r.Context(), jobstore.EnqueueParams{
		Type:        req.Type,
		TenantID:    tenantID,
		Payload:     req.Payload,
		Priority:    req.Priority,
		DedupKey:    req.DedupKey,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "enqueue failed", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to enqueue job")
		return
	}

	Respond(w, http.StatusCreated, job)
}

// handleListJobs answers GET /jobs, scoped to the authenticated tenant
// unless the request carries the trusted admin header.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	f := jobstore.ListFilter{
		SortBy:   r.URL.Query().Get("sort_by"),
		SortDesc: r.URL.Query().Get("order") == "desc",
	}

	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		f.Limit = n
	}

	if status := r.URL.Query().Get("status"); status != "" {
		st := jobstore.Status(status)
		f.Status = &st
	}

	if !IsAdminFromContext(r.Context()) {
		tenantID := TenantFromContext(r.Context())
		if tenantID == nil {
			RespondError(w, http.StatusBadRequest, "bad_request", "X-Tenant-ID header is required")
			return
		}
		f.TenantID = tenantID
	} else if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(w, http.StatusBadRequest, "bad_request", "invalid tenant_id")
			return
		}
		f.TenantID = &id
	}

	jobs, err := s.Store.ListByTenant(r.Context(), f)
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "list jobs failed", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list jobs")
		return
	}

	Respond(w, http.StatusOK, jobs)
}

// handleJobStats answers GET /jobs/stats with a count per lifecycle status.
func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	var tenantID *uuid.UUID
	if !IsAdminFromContext(r.Context()) {
		tenantID = TenantFromContext(r.Context())
		if tenantID == nil {
			RespondError(w, http.StatusBadRequest, "bad_request", "X-Tenant-ID header is required")
			return
		}
	}

	counts, err := s.Store.CountByStatus(r.Context(), tenantID)
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "job stats failed", "error", err)
		RespondError(w, http.StatusInternalServerError, "internal_error", "failed to count jobs")
		return
	}

	Respond(w, http.StatusOK, counts)
}

// processBatchRequest is the optional body for a manual batch trigger.
type processBatchRequest struct {
	Limit int `json:"limit"`
}

// handleProcessBatch answers POST /admin/process (trusted admin header) by
// running a single synchronous batch through the processor and returning
// its result (§4.3, §6).
func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	limit, err := s.batchLimit(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	result := s.Processor.ProcessDueBatch(r.Context(), limit)
	if result.BatchError != nil {
		s.Logger.ErrorContext(r.Context(), "manual batch failed", "error", result.BatchError)
		RespondError(w, http.StatusInternalServerError, "internal_error", "batch processing failed")
		return
	}

	Respond(w, http.StatusOK, result)
}

// handleProcessBatchAsync answers POST /internal/process (shared-secret
// guarded). §6 requires this trigger to dispatch asynchronously: it
// responds 202 Accepted immediately and runs the batch in a background
// goroutine on a context detached from the request, since r.Context() is
// cancelled the moment the handler returns.
func (s *Server) handleProcessBatchAsync(w http.ResponseWriter, r *http.Request) {
	limit, err := s.batchLimit(r)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	go func() {
		result := s.Processor.ProcessDueBatch(context.Background(), limit)
		if result.BatchError != nil {
			s.Logger.Error("async batch failed", "error", result.BatchError)
		}
	}()

	Respond(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// batchLimit decodes the optional request body shared by both process
// triggers, falling back to Server.DefaultBatchLimit.
func (s *Server) batchLimit(r *http.Request) (int, error) {
	var req processBatchRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return 0, err
		}
	}
	if req.Limit <= 0 {
		return s.DefaultBatchLimit, nil
	}
	return req.Limit, nil
}

// handleHealthz answers GET /healthz — process liveness only.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz answers GET /readyz, checking every configured dependency.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	for name, check := range s.Checks {
		if err := check(ctx); err != nil {
			s.Logger.ErrorContext(ctx, "readiness check failed", "check", name, "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", name+" not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
