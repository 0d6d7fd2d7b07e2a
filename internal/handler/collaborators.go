package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Analyzer delegates FinOps analysis content to an external LLM-backed
// service. The spec treats its analytic content as a Non-goal; only the
// contract is specified here.
type Analyzer interface {
	Analyze(ctx context.Context, summary CostSummary, tenantID uuid.UUID) (AnalysisResult, error)
}

// CostSummary is the normalized usage summary fed to the analyzer.
type CostSummary struct {
	TenantID   uuid.UUID
	PeriodDays int
	TotalCost  float64
	ByService  map[string]float64
}

// AnalysisResult is the small summary record finops_analysis returns.
type AnalysisResult struct {
	Headline    string   `json:"headline"`
	Suggestions []string `json:"suggestions"`
}

// CostRecord is one normalized cost-and-usage data point.
type CostRecord struct {
	ConnectionID uuid.UUID
	Timestamp    time.Time
	Service      string
	Cost         float64
	Usage        float64
	Unit         string
}

// CloudAdapter streams cost-and-usage records from one connected cloud
// account, per §6's "Collaborators (consumed)".
type CloudAdapter interface {
	StreamCostAndUsage(ctx context.Context, start, end time.Time, granularity string, yield func(CostRecord) bool) error
}

// BillingCollaborator charges a tenant subscription's stored payment method.
type BillingCollaborator interface {
	ChargeRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error)
}

// RemediationPolicy constrains which remediation actions a tenant has
// authorized to run automatically.
type RemediationPolicy interface {
	IsActionAllowed(ctx context.Context, tenantID uuid.UUID, action string) (bool, error)
	Execute(ctx context.Context, tenantID uuid.UUID, action string, resourceID string) error
}

// NotificationSink sends a severity-colored alert message.
type NotificationSink interface {
	SendAlert(ctx context.Context, title, message, severity string) (bool, error)
	Enabled() bool
}
