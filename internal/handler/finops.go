package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudledger/jobcore/internal/jobstore"
	"github.com/cloudledger/jobcore/internal/tenant"
)

// FinOpsLookbackDays is the window finops_analysis summarizes over.
const FinOpsLookbackDays = 30

// FinOpsHandler implements the finops_analysis job type: it builds a
// normalized cost summary from the cost_records table and delegates content
// generation to an external Analyzer (Non-goal per §1/§6).
type FinOpsHandler struct {
	Analyzer Analyzer
}

func NewFinOpsHandler(analyzer Analyzer) *FinOpsHandler {
	return &FinOpsHandler{Analyzer: analyzer}
}

func (h *FinOpsHandler) Execute(ctx context.Context, job jobstore.Job, session *tenant.Session) (json.RawMessage, error) {
	if job.TenantID == nil {
		return nil, fmt.Errorf("finops_analysis: %w: missing tenant_id", ErrInvalidPayload)
	}
	tenantID := *job.TenantID

	since := time.Now().UTC().AddDate(0, 0, -FinOpsLookbackDays)
	rows, err := session.Query(ctx, `
		SELECT service, SUM(cost) AS total
		FROM cost_records
		WHERE tenant_id = $1 AND occurred_at >= $2
		GROUP BY service`, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("finops_analysis: summarize costs: %w", err)
	}
	defer rows.Close()

	summary := CostSummary{TenantID: tenantID, PeriodDays: FinOpsLookbackDays, ByService: map[string]float64{}}
	for rows.Next() {
		var service string
		var total float64
		if err := rows.Scan(&service, &total); err != nil {
			return nil, fmt.Errorf("finops_analysis: scan row: %w", err)
		}
		summary.ByService[service] = total
		summary.TotalCost += total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finops_analysis: %w", err)
	}

	if h.Analyzer == nil {
		return json.Marshal(AnalysisResult{Headline: "analysis unavailable", Suggestions: nil})
	}

	analysis, err := h.Analyzer.Analyze(ctx, summary, tenantID)
	if err != nil {
		return nil, fmt.Errorf("finops_analysis: analyze: %w", err)
	}

	return json.Marshal(analysis)
}
