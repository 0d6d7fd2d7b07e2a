package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/tenant"
)

// RecurringBillingPayload names the subscription a billing job charges.
type RecurringBillingPayload struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
}

// RecurringBillingResult is the result record persisted on success.
type RecurringBillingResult struct {
	Status  string `json:"status"`
	Charged bool   `json:"charged"`
}

type subscriptionRow struct {
	tenantID           uuid.UUID
	tier               string
	status             string
	authorizationToken *string
}

// BillingHandler implements the recurring_billing job type. Per DESIGN.md
// Open Question 2, a missing pricing-plan row fails the job rather than
// billing $0 — silently charging nothing would look like a successful
// renewal to anyone reading the job's terminal status.
type BillingHandler struct {
	Billing BillingCollaborator
}

func NewBillingHandler(billing BillingCollaborator) *BillingHandler {
	return &BillingHandler{Billing: billing}
}

func (h *BillingHandler) Execute(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error) {
	var payload RecurringBillingPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil || payload.SubscriptionID == uuid.Nil {
		return nil, fmt.Errorf("recurring_billing: %w: subscription_id is required", ErrInvalidPayload)
	}

	row, err := h.lookupSubscription(ctx, session, payload.SubscriptionID)
	if err != nil {
		return nil, err
	}

	if row.status != "active" {
		return json.Marshal(RecurringBillingResult{Status: "skipped_inactive", Charged: false})
	}

	if row.authorizationToken == nil || *row.authorizationToken == "" {
		return nil, fmt.Errorf("recurring_billing: %w", ErrMissingAuthorizationToken)
	}

	if err := h.assertPricingPlanExists(ctx, session, row.tier); err != nil {
		return nil, err
	}

	charged, err := h.Billing.ChargeRenewal(ctx, payload.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("recurring_billing: charge renewal: %w", err)
	}

	return json.Marshal(RecurringBillingResult{Status: "completed", Charged: charged})
}

func (h *BillingHandler) lookupSubscription(ctx context.Context, session *tenant.Session, subscriptionID uuid.UUID) (subscriptionRow, error) {
	row, err := session.QueryRow(ctx, `
		SELECT tenant_id, tier, status, authorization_token
		FROM tenant_subscriptions
		WHERE id = $1`, subscriptionID)
	if err != nil {
		return subscriptionRow{}, fmt.Errorf("recurring_billing: lookup subscription: %w", err)
	}

	var sub subscriptionRow
	if err := row.Scan(&sub.tenantID, &sub.tier, &sub.status, &sub.authorizationToken); err != nil {
		return subscriptionRow{}, fmt.Errorf("recurring_billing: %w: %v", ErrSubscriptionNotFound, err)
	}
	return sub, nil
}

func (h *BillingHandler) assertPricingPlanExists(ctx context.Context, session *tenant.Session, tier string) error {
	row, err := session.QueryRow(ctx, `SELECT 1 FROM pricing_plans WHERE tier = $1`, tier)
	if err != nil {
		return fmt.Errorf("recurring_billing: lookup pricing plan: %w", err)
	}
	var exists int
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("recurring_billing: %w", ErrPricingPlanNotFound)
	}
	return nil
}
