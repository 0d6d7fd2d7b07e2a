// Package zombiescan fans out provider-specific plugins under a global
// deadline, checkpoints partial results, and aggregates normalized waste
// metrics (SPEC_FULL.md §4.6). Grounded on
// original_source/app/services/zombies/orchestrator.py's ScanAll coroutine,
// re-expressed as goroutines joined over a buffered results channel per §9's
// "coroutines, wait_for, gather" redesign note.
package zombiescan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudledger/jobcore/internal/zombiescan/zstypes"
)

// OverallDeadline bounds the entire fan-out across all of a tenant's
// connections (§5, S5).
const OverallDeadline = 300 * time.Second

// DefaultPluginTimeout is used when the caller supplies zero.
const DefaultPluginTimeout = 30 * time.Second

// ConnectionLookup enumerates a tenant's cloud connections.
type ConnectionLookup interface {
	ListConnections(ctx context.Context, tenantID uuid.UUID) ([]Connection, error)
}

// TierLookup reports whether a tenant is below the growth tier, gating
// is_gpu/owner disclosure (§4.6 step 6).
type TierLookup interface {
	IsBelowGrowthTier(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

// EnqueueFunc schedules the follow-up zombie_analysis job (§4.6 step 9).
type EnqueueFunc func(ctx context.Context, tenantID uuid.UUID, dedupKey string) error

// Notifier dispatches a best-effort end-of-scan alert (§4.6 step 10).
type Notifier interface {
	SendAlert(ctx context.Context, title, message, severity string) (bool, error)
	Enabled() bool
}

// Orchestrator runs zombie-resource scans for a tenant across every
// connected cloud provider.
type Orchestrator struct {
	Connections    ConnectionLookup
	Tiers          TierLookup
	Enqueue        EnqueueFunc
	Notify         Notifier
	PluginTimeout  time.Duration
	ScanTimeouts   interface{ Inc() }
}

// NewOrchestrator builds an Orchestrator with the given collaborators.
// pluginTimeout of zero means DefaultPluginTimeout.
func NewOrchestrator(conns ConnectionLookup, tiers TierLookup, enqueue EnqueueFunc, notify Notifier, pluginTimeout time.Duration) *Orchestrator {
	if pluginTimeout <= 0 {
		pluginTimeout = DefaultPluginTimeout
	}
	return &Orchestrator{
		Connections:   conns,
		Tiers:         tiers,
		Enqueue:       enqueue,
		Notify:        notify,
		PluginTimeout: pluginTimeout,
	}
}

type pluginOutcome struct {
	categoryKey string
	items       []zstypes.Item
}

// Scan runs the full fan-out for one tenant and returns the aggregated
// Result. analyze, when true and no timeout occurred, schedules a
// zombie_analysis follow-up job. checkpoint, if non-nil, is invoked once per
// completed category before aggregation.
func (o *Orchestrator) Scan(ctx context.Context, tenantID uuid.UUID, analyze bool, checkpoint zstypes.CheckpointFunc) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, OverallDeadline)
	defer cancel()

	result := Result{
		ScannedAt:  time.Now().UTC(),
		Categories: make(map[string][]Item),
	}

	conns, err := o.Connections.ListConnections(ctx, tenantID)
	if err != nil {
		return result, err
	}
	result.ConnectionCount = len(conns)

	belowGrowth := false
	if o.Tiers != nil {
		belowGrowth, _ = o.Tiers.IsBelowGrowthTier(ctx, tenantID)
	}

	outcomes := make(chan pluginOutcome)
	var wg sync.WaitGroup

	for _, conn := range conns {
		detector, derr := NewDetector(conn)
		if derr != nil {
			continue
		}
		if result.Provider == "" {
			result.Provider = detector.ProviderName()
			result.Region = conn.Region
		}
		for _, plugin := range detector.Plugins() {
			wg.Add(1)
			go func(p zstypes.Plugin) {
				defer wg.Done()
				items := o.runPlugin(ctx, p)
				select {
				case outcomes <- pluginOutcome{categoryKey: p.CategoryKey(), items: items}:
				case <-ctx.Done():
				}
			}(plugin)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

collect:
	for {
		select {
		case oc := <-outcomes:
			canonical := oc.categoryKey
			if mapped, ok := zstypes.CanonicalCategory[oc.categoryKey]; ok {
				canonical = mapped
			}
			items := annotate(oc.items, belowGrowth)
			result.Categories[canonical] = append(result.Categories[canonical], items...)
			if checkpoint != nil {
				safeCheckpoint(checkpoint, canonical, result.Categories[canonical])
			}
		case <-done:
			break collect
		case <-ctx.Done():
			result.ScanTimeout = true
			result.PartialResults = true
			if o.ScanTimeouts != nil {
				o.ScanTimeouts.Inc()
			}
			break collect
		}
	}

	result.TotalMonthlyWaste = sumWaste(result.Categories)

	if analyze && !result.ScanTimeout && o.Enqueue != nil {
		bucket := result.ScannedAt.Format("2006-01-02-15")
		dedupKey := tenantID.String() + ":zombie_analysis:" + bucket
		_ = o.Enqueue(ctx, tenantID, dedupKey)
	}

	o.notifyEndOfScan(ctx, result)

	return result, nil
}

func (o *Orchestrator) runPlugin(ctx context.Context, p zstypes.Plugin) []zstypes.Item {
	pctx, cancel := context.WithTimeout(ctx, o.PluginTimeout)
	defer cancel()

	resultCh := make(chan []zstypes.Item, 1)
	go func() {
		items, err := p.Scan(pctx)
		if err != nil {
			resultCh <- nil
			return
		}
		resultCh <- items
	}()

	select {
	case items := <-resultCh:
		return items
	case <-pctx.Done():
		return nil
	}
}

// safeCheckpoint isolates a checkpoint callback panic/slowness from the
// fan-out; failures here are swallowed per §4.6 step 5.
func safeCheckpoint(fn zstypes.CheckpointFunc, categoryKey string, items []Item) {
	defer func() { _ = recover() }()
	fn(categoryKey, items)
}

func annotate(items []zstypes.Item, belowGrowth bool) []zstypes.Item {
	if !belowGrowth {
		return items
	}
	out := make([]zstypes.Item, len(items))
	for i, it := range items {
		masked := zstypes.TierGatedPlaceholder
		if it.IsGPU != nil {
			it.IsGPU = &masked
		}
		if it.Owner != nil {
			it.Owner = &masked
		}
		out[i] = it
	}
	return out
}

func sumWaste(categories map[string][]Item) decimal.Decimal {
	total := decimal.Zero
	for _, items := range categories {
		for _, it := range items {
			total = total.Add(it.MonthlyCost)
		}
	}
	return total.Round(2)
}

func (o *Orchestrator) notifyEndOfScan(ctx context.Context, result Result) {
	if o.Notify == nil || !o.Notify.Enabled() {
		return
	}
	defer func() { _ = recover() }()
	_, _ = o.Notify.SendAlert(ctx, "Zombie scan complete",
		result.Provider+" scan finished with waste "+result.TotalMonthlyWaste.String(),
		"info")
}
