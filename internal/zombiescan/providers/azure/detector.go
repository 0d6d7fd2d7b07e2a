// Package azure implements the Azure zombie-scan detector via the generic
// httpcloud collaborator (see providers/httpcloud for why).
package azure

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudledger/jobcore/internal/zombiescan/providers/httpcloud"
	"github.com/cloudledger/jobcore/internal/zombiescan/zstypes"
)

// Credentials holds the Azure-specific connection-row fields, mirroring
// factory.py's azure_tenant_id/client_id/client_secret/subscription_id
// extraction.
type Credentials struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
	ConnectionID   uuid.UUID
	Name           string
}

// Detector is the Azure zombie-resource detector.
type Detector struct {
	creds Credentials
}

func NewDetector(creds Credentials) *Detector { return &Detector{creds: creds} }

func (d *Detector) ProviderName() string { return "azure" }

func (d *Detector) Plugins() []zstypes.Plugin {
	client := httpcloud.NewClient(
		"https://management.azure.com/subscriptions/"+d.creds.SubscriptionID,
		"", // a real deployment exchanges ClientID/ClientSecret for a bearer token out of band
	)
	return []zstypes.Plugin{
		&unattachedDisksPlugin{creds: d.creds, client: client},
		&idleInstancesPlugin{creds: d.creds, client: client},
	}
}

type azureResource struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	CostUSD  float64 `json:"cost_usd"`
}

type unattachedDisksPlugin struct {
	creds  Credentials
	client *httpcloud.Client
}

func (p *unattachedDisksPlugin) CategoryKey() string { return "unattached_disks" }

func (p *unattachedDisksPlugin) Scan(ctx context.Context) ([]zstypes.Item, error) {
	var resources []azureResource
	if err := p.client.ListResources(ctx, "/providers/Microsoft.Compute/disks?unattached=true", &resources); err != nil {
		return nil, nil
	}
	items := make([]zstypes.Item, 0, len(resources))
	for _, r := range resources {
		items = append(items, zstypes.Item{
			ResourceID:          r.ID,
			ResourceType:        "Managed Disk",
			Provider:             "azure",
			ConnectionID:         p.creds.ConnectionID,
			ConnectionName:       p.creds.Name,
			MonthlyCost:          decimal.NewFromFloat(r.CostUSD),
			Recommendation:       "Disk is not attached to any VM.",
			Action:               "delete_disk",
			SupportsBackup:       true,
			ExplainabilityNotes:  "unattached managed disk",
			ConfidenceScore:      0.8,
		})
	}
	return items, nil
}

type idleInstancesPlugin struct {
	creds  Credentials
	client *httpcloud.Client
}

func (p *idleInstancesPlugin) CategoryKey() string { return "idle_instances" }

func (p *idleInstancesPlugin) Scan(ctx context.Context) ([]zstypes.Item, error) {
	var resources []azureResource
	if err := p.client.ListResources(ctx, "/providers/Microsoft.Compute/virtualMachines?idle=true", &resources); err != nil {
		return nil, nil
	}
	items := make([]zstypes.Item, 0, len(resources))
	for _, r := range resources {
		items = append(items, zstypes.Item{
			ResourceID:          r.ID,
			ResourceType:        "Virtual Machine",
			Provider:             "azure",
			ConnectionID:         p.creds.ConnectionID,
			ConnectionName:       p.creds.Name,
			MonthlyCost:          decimal.NewFromFloat(r.CostUSD),
			Recommendation:       "VM CPU utilization below 5% for 14 days.",
			Action:               "stop_instance",
			SupportsBackup:       false,
			ExplainabilityNotes:  "idle virtual machine",
			ConfidenceScore:      0.6,
		})
	}
	return items, nil
}
