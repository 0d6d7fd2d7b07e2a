// Package gcp implements the GCP zombie-scan detector via the generic
// httpcloud collaborator (see providers/httpcloud for why).
package gcp

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudledger/jobcore/internal/zombiescan/providers/httpcloud"
	"github.com/cloudledger/jobcore/internal/zombiescan/zstypes"
)

// Credentials holds the GCP-specific connection-row fields, mirroring
// factory.py's project_id/service_account_json/auth_method extraction.
type Credentials struct {
	ProjectID          string
	ServiceAccountJSON []byte
	AuthMethod         string
	ConnectionID       uuid.UUID
	Name               string
}

// Detector is the GCP zombie-resource detector.
type Detector struct {
	creds Credentials
}

func NewDetector(creds Credentials) *Detector { return &Detector{creds: creds} }

func (d *Detector) ProviderName() string { return "gcp" }

func (d *Detector) Plugins() []zstypes.Plugin {
	client := httpcloud.NewClient(
		"https://compute.googleapis.com/compute/v1/projects/"+d.creds.ProjectID,
		"", // exchanged from ServiceAccountJSON out of band in a real deployment
	)
	return []zstypes.Plugin{
		&unattachedDisksPlugin{creds: d.creds, client: client},
	}
}

type gcpResource struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	CostUSD float64 `json:"cost_usd"`
}

type unattachedDisksPlugin struct {
	creds  Credentials
	client *httpcloud.Client
}

func (p *unattachedDisksPlugin) CategoryKey() string { return "unattached_disks" }

func (p *unattachedDisksPlugin) Scan(ctx context.Context) ([]zstypes.Item, error) {
	var resources []gcpResource
	if err := p.client.ListResources(ctx, "/aggregated/disks?filter=users=null", &resources); err != nil {
		return nil, nil
	}
	items := make([]zstypes.Item, 0, len(resources))
	for _, r := range resources {
		items = append(items, zstypes.Item{
			ResourceID:          r.ID,
			ResourceType:        "Persistent Disk",
			Provider:             "gcp",
			ConnectionID:         p.creds.ConnectionID,
			ConnectionName:       p.creds.Name,
			MonthlyCost:          decimal.NewFromFloat(r.CostUSD),
			Recommendation:       "Persistent disk has no attached instance.",
			Action:               "delete_disk",
			SupportsBackup:       true,
			ExplainabilityNotes:  "unattached persistent disk",
			ConfidenceScore:      0.8,
		})
	}
	return items, nil
}
