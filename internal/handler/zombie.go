package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/tenant"
	"github.com/cloudledger/jobcore/internal/zombiescan"
	"github.com/cloudledger/jobcore/internal/zombiescan/zstypes"
)

// ZombieScanPayload is the expected payload shape for a zombie_scan job.
type ZombieScanPayload struct {
	Analyze bool `json:"analyze"`
}

// ZombieScanResult is the result record persisted on success.
type ZombieScanResult struct {
	Status       string            `json:"status"`
	ZombiesFound int               `json:"zombies_found"`
	TotalWaste   string            `json:"total_waste"`
	Results      zombiescan.Result `json:"results"`
}

// ZombieScanHandler implements the zombie_scan job type: it fans out
// provider plugins via the zombiescan orchestrator and checkpoints partial
// results into the job's payload.
type ZombieScanHandler struct {
	Orchestrator *zombiescan.Orchestrator
	Checkpoint   func(ctx context.Context, jobID string, categoryKey string, items []zstypes.Item) error
}

func NewZombieScanHandler(orch *zombiescan.Orchestrator, checkpoint func(ctx context.Context, jobID string, categoryKey string, items []zstypes.Item) error) *ZombieScanHandler {
	return &ZombieScanHandler{Orchestrator: orch, Checkpoint: checkpoint}
}

func (h *ZombieScanHandler) Execute(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error) {
	if job.TenantID == nil {
		return nil, fmt.Errorf("zombie_scan: %w: missing tenant_id", ErrInvalidPayload)
	}
	tenantID := *job.TenantID

	var payload ZombieScanPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return nil, fmt.Errorf("zombie_scan: %w: %v", ErrInvalidPayload, err)
		}
	}

	var checkpointFn zstypes.CheckpointFunc
	if h.Checkpoint != nil {
		jobID := job.ID.String()
		checkpointFn = func(categoryKey string, items []zstypes.Item) {
			_ = h.Checkpoint(ctx, jobID, categoryKey, items)
		}
	}

	result, err := h.Orchestrator.Scan(ctx, tenantID, payload.Analyze, checkpointFn)
	if err != nil {
		return nil, fmt.Errorf("zombie_scan: %w", err)
	}

	zombiesFound := 0
	for _, items := range result.Categories {
		zombiesFound += len(items)
	}

	out := ZombieScanResult{
		Status:       "completed",
		ZombiesFound: zombiesFound,
		TotalWaste:   result.TotalMonthlyWaste.String(),
		Results:      result,
	}
	if result.ScanTimeout {
		out.Status = "partial"
	}

	return json.Marshal(out)
}
