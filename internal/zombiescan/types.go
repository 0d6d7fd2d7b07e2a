// Package zombiescan implements the multi-cloud zombie-scan orchestrator
// (component F) and its provider plugin registry (component G):
// SPEC_FULL.md §4.6.
//
// Grounded on original_source/app/services/zombies/base.py (ScanAll fan-out,
// per-plugin timeout, checkpoint callback) and factory.py (provider tagged
// dispatch), re-architected per §9 from an abstract-base-class detector
// hierarchy into a Detector interface with one concrete type per provider.
package zombiescan

import "github.com/cloudledger/jobcore/internal/zombiescan/zstypes"

// Re-exported so callers of this package don't need to import zstypes
// directly; the split exists purely to avoid an import cycle with the
// provider packages.
type (
	Item           = zstypes.Item
	Result         = zstypes.Result
	CheckpointFunc = zstypes.CheckpointFunc
	Plugin         = zstypes.Plugin
	Detector       = zstypes.Detector
	Connection     = zstypes.Connection
)

// TierGatedPlaceholder is substituted for is_gpu/owner fields on tenants
// below the growth tier.
const TierGatedPlaceholder = zstypes.TierGatedPlaceholder

// CanonicalCategory maps a provider-specific category key to the canonical
// key used in the aggregated result (§4.6 step 6).
var CanonicalCategory = zstypes.CanonicalCategory
