package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStubPlugins_ReturnNoFindingsWithoutError pins down the "deliberate
// stub" contract: these categories are registered but return nothing rather
// than fabricate data, and must never error out of ScanAll (§4.6 Plugin
// contract).
func TestStubPlugins_ReturnNoFindingsWithoutError(t *testing.T) {
	t.Parallel()

	creds := Credentials{Region: "us-east-1"}

	eip := &unusedElasticIPsPlugin{creds: creds}
	require.Equal(t, "orphaned_ips", eip.CategoryKey())
	items, err := eip.Scan(context.Background())
	require.NoError(t, err)
	require.Nil(t, items)

	snap := &oldSnapshotsPlugin{creds: creds}
	require.Equal(t, "old_snapshots", snap.CategoryKey())
	items, err = snap.Scan(context.Background())
	require.NoError(t, err)
	require.Nil(t, items)
}

func TestDetector_RegistersFourPluginsWithDistinctCategories(t *testing.T) {
	t.Parallel()

	d := NewDetector(Credentials{Region: "us-east-1"})
	require.Equal(t, "aws", d.ProviderName())

	plugins := d.Plugins()
	require.Len(t, plugins, 4)

	seen := map[string]bool{}
	for _, p := range plugins {
		key := p.CategoryKey()
		require.False(t, seen[key], "duplicate category key %q", key)
		seen[key] = true
	}
	require.True(t, seen["unattached_disks"])
	require.True(t, seen["idle_s3_buckets"])
	require.True(t, seen["orphaned_ips"])
	require.True(t, seen["old_snapshots"])
}
