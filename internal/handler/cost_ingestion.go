package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/tenant"
)

// CostIngestionLookbackDays is the window cost_ingestion pulls records over.
const CostIngestionLookbackDays = 7

// ConnectionRef is the minimal connection-row view a handler needs to build
// a CloudAdapter, independent of the zombiescan package's Connection type.
type ConnectionRef struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Provider string
	Name     string
}

// ConnectionDirectory lists a tenant's cloud connections.
type ConnectionDirectory interface {
	ListConnections(ctx context.Context, tenantID uuid.UUID) ([]ConnectionRef, error)
}

// CloudAdapterFactory builds the streaming collaborator for one connection.
type CloudAdapterFactory func(conn ConnectionRef) (CloudAdapter, error)

// ConnectionDetail reports per-connection ingestion outcome.
type ConnectionDetail struct {
	ConnectionID uuid.UUID `json:"connection_id"`
	RecordCount  int       `json:"record_count"`
	Error        string    `json:"error,omitempty"`
}

// CostIngestionResult is the result record persisted on success.
type CostIngestionResult struct {
	Status      string             `json:"status"`
	Connections []ConnectionDetail `json:"connections"`
}

// CostIngestionHandler implements the cost_ingestion job type: it streams
// cost-and-usage records from every connected cloud account and persists
// them idempotently. Per-connection failures are isolated and reported in
// the result rather than aborting the whole job (§4.4).
type CostIngestionHandler struct {
	Connections ConnectionDirectory
	AdapterFor  CloudAdapterFactory
}

func NewCostIngestionHandler(connections ConnectionDirectory, adapterFor CloudAdapterFactory) *CostIngestionHandler {
	return &CostIngestionHandler{Connections: connections, AdapterFor: adapterFor}
}

func (h *CostIngestionHandler) Execute(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error) {
	if job.TenantID == nil {
		return nil, fmt.Errorf("cost_ingestion: %w: missing tenant_id", ErrInvalidPayload)
	}
	tenantID := *job.TenantID

	conns, err := h.Connections.ListConnections(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("cost_ingestion: list connections: %w", err)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -CostIngestionLookbackDays)

	details := make([]ConnectionDetail, 0, len(conns))
	for _, conn := range conns {
		detail := h.ingestConnection(ctx, session, conn, start, end)
		details = append(details, detail)
	}

	return json.Marshal(CostIngestionResult{Status: "completed", Connections: details})
}

func (h *CostIngestionHandler) ingestConnection(ctx context.Context, session *tenant.Session, conn ConnectionRef, start, end time.Time) ConnectionDetail {
	detail := ConnectionDetail{ConnectionID: conn.ID}

	adapter, err := h.AdapterFor(conn)
	if err != nil {
		detail.Error = err.Error()
		return detail
	}

	if _, err := session.Exec(ctx, `
		INSERT INTO cloud_accounts (connection_id, tenant_id, last_synced_at)
		VALUES ($1, $2, now())
		ON CONFLICT (connection_id) DO UPDATE SET last_synced_at = now()`,
		conn.ID, conn.TenantID); err != nil {
		detail.Error = err.Error()
		return detail
	}

	count := 0
	streamErr := adapter.StreamCostAndUsage(ctx, start, end, "daily", func(rec CostRecord) bool {
		_, err := session.Exec(ctx, `
			INSERT INTO cost_records (connection_id, tenant_id, occurred_at, service, cost, usage_amount, usage_unit)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (connection_id, occurred_at, service) DO UPDATE
				SET cost = EXCLUDED.cost, usage_amount = EXCLUDED.usage_amount, usage_unit = EXCLUDED.usage_unit`,
			conn.ID, conn.TenantID, rec.Timestamp, rec.Service, rec.Cost, rec.Usage, rec.Unit)
		if err != nil {
			detail.Error = err.Error()
			return false
		}
		count++
		return true
	})
	if streamErr != nil && detail.Error == "" {
		detail.Error = streamErr.Error()
	}
	detail.RecordCount = count
	return detail
}
