package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/tenant"
)

// RemediationPayload names the resource a remediation job targets.
type RemediationPayload struct {
	Action     string `json:"action"`
	ResourceID string `json:"resource_id"`
}

// RemediationResult is the result record persisted on success.
type RemediationResult struct {
	Status string `json:"status"`
	Action string `json:"action"`
}

// RateLimiter enforces the per-tenant remediation action cap (§5).
type RateLimiter interface {
	Allow(ctx context.Context, tenantID, action string) (bool, error)
}

// RemediationHandler implements the remediation job type: it checks the
// tenant's remediation policy and per-tenant rate limit before executing.
type RemediationHandler struct {
	Policy      RemediationPolicy
	RateLimiter RateLimiter
}

func NewRemediationHandler(policy RemediationPolicy, limiter RateLimiter) *RemediationHandler {
	return &RemediationHandler{Policy: policy, RateLimiter: limiter}
}

func (h *RemediationHandler) Execute(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error) {
	if job.TenantID == nil {
		return nil, fmt.Errorf("remediation: %w: missing tenant_id", ErrInvalidPayload)
	}
	tenantID := *job.TenantID

	var payload RemediationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.Action == "" || payload.ResourceID == "" {
		return nil, fmt.Errorf("remediation: %w: action and resource_id are required", ErrInvalidPayload)
	}

	if h.RateLimiter != nil {
		allowed, err := h.RateLimiter.Allow(ctx, tenantID.String(), payload.Action)
		if err != nil {
			return nil, fmt.Errorf("remediation: rate limit check: %w", err)
		}
		if !allowed {
			return json.Marshal(RemediationResult{Status: "rate_limited", Action: payload.Action})
		}
	}

	if h.Policy != nil {
		allowed, err := h.Policy.IsActionAllowed(ctx, tenantID, payload.Action)
		if err != nil {
			return nil, fmt.Errorf("remediation: policy check: %w", err)
		}
		if !allowed {
			return json.Marshal(RemediationResult{Status: "policy_denied", Action: payload.Action})
		}
		if err := h.Policy.Execute(ctx, tenantID, payload.Action, payload.ResourceID); err != nil {
			return nil, fmt.Errorf("remediation: execute: %w", err)
		}
	}

	return json.Marshal(RemediationResult{Status: "executed", Action: payload.Action})
}
