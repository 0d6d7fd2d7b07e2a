package zombiescan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cloudledger/jobcore/internal/zombiescan/zstypes"
)

type fakeConnLookup struct {
	conns []Connection
	err   error
}

func (f fakeConnLookup) ListConnections(ctx context.Context, tenantID uuid.UUID) ([]Connection, error) {
	return f.conns, f.err
}

type fakeTierLookup struct{ below bool }

func (f fakeTierLookup) IsBelowGrowthTier(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	return f.below, nil
}

func TestScan_NoConnections_ReturnsEmptyResult(t *testing.T) {
	t.Parallel()

	o := NewOrchestrator(fakeConnLookup{}, fakeTierLookup{}, nil, nil, time.Second)
	result, err := o.Scan(context.Background(), uuid.New(), false, nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.ConnectionCount)
	require.True(t, result.TotalMonthlyWaste.IsZero())
	require.Empty(t, result.Categories)
}

func TestScan_ConnectionLookupError_Propagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	o := NewOrchestrator(fakeConnLookup{err: boom}, fakeTierLookup{}, nil, nil, time.Second)
	_, err := o.Scan(context.Background(), uuid.New(), false, nil)
	require.ErrorIs(t, err, boom)
}

func TestScan_UnsupportedProvider_SkippedWithoutError(t *testing.T) {
	t.Parallel()

	conns := []Connection{{ID: uuid.New(), Provider: "not_a_real_cloud"}}
	o := NewOrchestrator(fakeConnLookup{conns: conns}, fakeTierLookup{}, nil, nil, time.Second)
	result, err := o.Scan(context.Background(), uuid.New(), false, nil)
	require.NoError(t, err)
	require.Empty(t, result.Categories)
	require.False(t, result.ScanTimeout)
}

func TestScan_EnqueuesAnalysisFollowUpWithHourBucketedDedupKey(t *testing.T) {
	t.Parallel()

	var gotTenant uuid.UUID
	var gotKey string
	enqueue := func(ctx context.Context, tenantID uuid.UUID, dedupKey string) error {
		gotTenant = tenantID
		gotKey = dedupKey
		return nil
	}

	tenantID := uuid.New()
	o := NewOrchestrator(fakeConnLookup{}, fakeTierLookup{}, enqueue, nil, time.Second)
	result, err := o.Scan(context.Background(), tenantID, true, nil)
	require.NoError(t, err)
	require.Equal(t, tenantID, gotTenant)
	require.Contains(t, gotKey, tenantID.String()+":zombie_analysis:")
	require.Contains(t, gotKey, result.ScannedAt.Format("2006-01-02-15"))
}

func TestAnnotate_MasksGPUAndOwnerBelowGrowthTier(t *testing.T) {
	t.Parallel()

	gpu := "true"
	owner := "alice"
	items := []zstypes.Item{{IsGPU: &gpu, Owner: &owner}}

	masked := annotate(items, true)
	require.Equal(t, zstypes.TierGatedPlaceholder, *masked[0].IsGPU)
	require.Equal(t, zstypes.TierGatedPlaceholder, *masked[0].Owner)

	unmasked := annotate(items, false)
	require.Equal(t, gpu, *unmasked[0].IsGPU)
}

func TestSumWaste_SumsAcrossCategoriesAndRounds(t *testing.T) {
	t.Parallel()

	categories := map[string][]Item{
		"a": {{MonthlyCost: decimal.NewFromFloat(1.201)}},
		"b": {{MonthlyCost: decimal.NewFromFloat(2.303)}},
	}
	require.True(t, decimal.NewFromFloat(3.50).Equal(sumWaste(categories)))
}

type blockingPlugin struct{ unblock chan struct{} }

func (b blockingPlugin) CategoryKey() string { return "blocking" }

func (b blockingPlugin) Scan(ctx context.Context) ([]zstypes.Item, error) {
	<-ctx.Done()
	close(b.unblock)
	return nil, ctx.Err()
}

func TestRunPlugin_ReturnsNilOnPerPluginTimeout(t *testing.T) {
	t.Parallel()

	o := NewOrchestrator(fakeConnLookup{}, fakeTierLookup{}, nil, nil, 10*time.Millisecond)
	plugin := blockingPlugin{unblock: make(chan struct{})}

	items := o.runPlugin(context.Background(), plugin)
	require.Nil(t, items)

	select {
	case <-plugin.unblock:
	case <-time.After(time.Second):
		t.Fatal("plugin goroutine never observed context cancellation")
	}
}

func TestSafeCheckpoint_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		safeCheckpoint(func(categoryKey string, items []Item) { panic("boom") }, "cat", nil)
	})
}
