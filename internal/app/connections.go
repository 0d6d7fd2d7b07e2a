package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloudledger/jobcore/internal/handler"
	"github.com/cloudledger/jobcore/internal/zombiescan"
)

// connectionDirectory answers both handler.ConnectionDirectory and
// zombiescan.ConnectionLookup against the same cloud_connections table, so
// cost_ingestion and zombie_scan see the same tenant connection set.
type connectionDirectory struct {
	pool *pgxpool.Pool
}

func newConnectionDirectory(pool *pgxpool.Pool) *connectionDirectory {
	return &connectionDirectory{pool: pool}
}

func (d *connectionDirectory) ListConnections(ctx context.Context, tenantID uuid.UUID) ([]zombiescan.Connection, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, tenant_id, provider, name, region,
		       role_arn, external_id, aws_account_id,
		       azure_tenant_id, client_id, client_secret, subscription_id,
		       project_id, service_account_json, auth_method
		FROM cloud_connections
		WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list cloud connections: %w", err)
	}
	defer rows.Close()

	var conns []zombiescan.Connection
	for rows.Next() {
		var c zombiescan.Connection
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Provider, &c.Name, &c.Region,
			&c.RoleARN, &c.ExternalID, &c.AWSAccountID,
			&c.AzureTenantID, &c.ClientID, &c.ClientSecret, &c.SubscriptionID,
			&c.ProjectID, &c.ServiceAccountJSON, &c.AuthMethod); err != nil {
			return nil, fmt.Errorf("scan cloud connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// ListConnectionRefs adapts ListConnections to handler.ConnectionDirectory's
// narrower ConnectionRef view.
func (d *connectionDirectory) ListConnectionRefs(ctx context.Context, tenantID uuid.UUID) ([]handler.ConnectionRef, error) {
	conns, err := d.ListConnections(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	refs := make([]handler.ConnectionRef, len(conns))
	for i, c := range conns {
		refs[i] = handler.ConnectionRef{ID: c.ID, TenantID: c.TenantID, Provider: c.Provider, Name: c.Name}
	}
	return refs, nil
}

// connectionRefDirectory narrows connectionDirectory to the
// handler.ConnectionDirectory interface shape.
type connectionRefDirectory struct {
	*connectionDirectory
}

func (d connectionRefDirectory) ListConnections(ctx context.Context, tenantID uuid.UUID) ([]handler.ConnectionRef, error) {
	return d.connectionDirectory.ListConnectionRefs(ctx, tenantID)
}

// noopCloudAdapter satisfies handler.CloudAdapter without streaming any
// records. Real provider billing-API clients (Cost Explorer, Azure Cost
// Management, GCP Billing export) are a Non-goal of the distilled spec
// (§1/§6 "analytic content"); this is the seam a real integration would
// replace.
type noopCloudAdapter struct{}

func (noopCloudAdapter) StreamCostAndUsage(ctx context.Context, start, end time.Time, granularity string, yield func(handler.CostRecord) bool) error {
	return nil
}

func cloudAdapterFactory(handler.ConnectionRef) (handler.CloudAdapter, error) {
	return noopCloudAdapter{}, nil
}

// declinedBillingCollaborator reports every renewal charge as failed rather
// than silently succeeding. A real payment-processor client (Stripe,
// Braintree, ...) is the seam this type stands in for; wiring one is a
// Non-goal of the distilled spec's payment-processing surface (§1).
type declinedBillingCollaborator struct{}

func (declinedBillingCollaborator) ChargeRenewal(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	return false, nil
}
