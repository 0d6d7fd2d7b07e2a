package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// TestBucketTruncation_BucketsWithinWindowCollide exercises the dedup-key
// bucketing formula directly: two invocations within the same truncation
// window must land on the identical bucket instant (so their deterministic
// dedup keys collide and only one job survives the cohort's ON CONFLICT DO
// NOTHING, §4.5.3), while an invocation across the window boundary must not.
func TestBucketTruncation_BucketsWithinWindowCollide(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cohort Cohort
		window time.Duration
	}{
		{CohortHighValue, 6 * time.Hour},
		{CohortActive, 3 * time.Hour},
		{CohortDormant, time.Hour},
	}

	base := time.Date(2026, 3, 5, 10, 15, 0, 0, time.UTC)

	for _, tc := range cases {
		tc := tc
		t.Run(string(tc.cohort), func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.window, bucketTruncation[tc.cohort])

			within := base.Add(tc.window / 2)
			require.Equal(t, base.Truncate(tc.window), within.Truncate(tc.window),
				"two instants inside the same %s window must collide on the same bucket", tc.window)

			across := base.Add(tc.window + time.Minute)
			require.NotEqual(t, base.Truncate(tc.window), across.Truncate(tc.window),
				"an instant past the %s window boundary must land on a different bucket", tc.window)
		})
	}
}

func TestBucketTruncation_HighValueCoarserThanDormant(t *testing.T) {
	t.Parallel()

	// The higher-value cohort fires (and thus dedups) on a coarser cadence
	// than the dormant cohort, per §4.5's cohort table.
	require.Greater(t, bucketTruncation[CohortHighValue], bucketTruncation[CohortActive])
	require.Greater(t, bucketTruncation[CohortActive], bucketTruncation[CohortDormant])
}

func TestIsRetryable_DeadlockAndSerializationFailure(t *testing.T) {
	t.Parallel()

	require.True(t, isRetryable(&pgconn.PgError{Code: "40P01"}))
	require.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
}

func TestIsRetryable_OtherErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	require.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, isRetryable(errors.New("connection reset")))
	require.False(t, isRetryable(nil))
}
