// Package zstypes holds the Item/Plugin/Detector contracts shared between
// the zombiescan orchestrator and every provider package, so the provider
// packages never need to import the orchestrator (which imports them).
package zstypes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TierGatedPlaceholder is substituted for is_gpu/owner fields on tenants
// below the growth tier.
const TierGatedPlaceholder = "Upgrade to Growth"

// Item is one normalized waste-detection result.
type Item struct {
	ResourceID          string          `json:"resource_id"`
	ResourceType        string          `json:"resource_type"`
	Provider            string          `json:"provider"`
	ConnectionID        uuid.UUID       `json:"connection_id"`
	ConnectionName      string          `json:"connection_name"`
	MonthlyCost         decimal.Decimal `json:"monthly_cost"`
	BackupCostMonthly   decimal.Decimal `json:"backup_cost_monthly,omitempty"`
	Recommendation      string          `json:"recommendation"`
	Action              string          `json:"action"`
	SupportsBackup      bool            `json:"supports_backup"`
	ExplainabilityNotes string          `json:"explainability_notes"`
	ConfidenceScore     float64         `json:"confidence_score"`
	IsGPU               *string         `json:"is_gpu,omitempty"`
	Owner               *string         `json:"owner,omitempty"`
}

// Result is the full aggregated scan output for one tenant.
type Result struct {
	Provider          string            `json:"provider,omitempty"`
	Region            string            `json:"region,omitempty"`
	ScannedAt         time.Time         `json:"scanned_at"`
	Categories        map[string][]Item `json:"categories"`
	TotalMonthlyWaste decimal.Decimal   `json:"total_monthly_waste"`
	ScanTimeout       bool              `json:"scan_timeout,omitempty"`
	PartialResults    bool              `json:"partial_results,omitempty"`
	ConnectionCount   int               `json:"connection_count"`
}

// CheckpointFunc persists a category's items before aggregation.
type CheckpointFunc func(categoryKey string, items []Item)

// Plugin detects zombie resources for one category on one connection.
type Plugin interface {
	CategoryKey() string
	Scan(ctx context.Context) ([]Item, error)
}

// Detector is the per-provider capability set: a tagged variant over
// {aws, azure, gcp} rather than an abstract base class.
type Detector interface {
	ProviderName() string
	Plugins() []Plugin
}

// Connection is a tenant's credentials for one cloud provider.
type Connection struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Provider string
	Name     string
	Region   string

	RoleARN      string
	ExternalID   string
	AWSAccountID string

	AzureTenantID  string
	ClientID       string
	ClientSecret   string
	SubscriptionID string

	ProjectID          string
	ServiceAccountJSON []byte
	AuthMethod         string
}

// CanonicalCategory maps a provider-specific category key to the canonical
// key used in the aggregated result.
var CanonicalCategory = map[string]string{
	"unattached_disks": "unattached_volumes",
	"orphaned_ips":     "unused_elastic_ips",
}
