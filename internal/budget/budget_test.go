package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewClampsInvalidLimits(t *testing.T) {
	b := New(-1, 0)

	require.Equal(t, int64(0), b.MaxRate())
	require.Equal(t, 1, b.MaxConcurrent())
}

func TestTryAcquireRespectsCeiling(t *testing.T) {
	b := New(0, 2)

	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())
	require.False(t, b.TryAcquire())
	require.Equal(t, 2, b.Active())

	b.Release()
	require.True(t, b.TryAcquire())
}

func TestReleaseBelowZeroIsNoop(t *testing.T) {
	b := New(0, 1)

	b.Release()
	require.Zero(t, b.Active())
}

func TestPerTransferRateSplitsAcrossActive(t *testing.T) {
	b := New(1000, 4)

	// Nobody active yet: a lone transfer gets the whole budget.
	require.Equal(t, int64(1000), b.PerTransferRate())

	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())
	require.Equal(t, int64(500), b.PerTransferRate())
}

func TestPerTransferRateUnlimited(t *testing.T) {
	b := New(0, 4)

	require.True(t, b.TryAcquire())
	require.Equal(t, int64(0), b.PerTransferRate())
}

func TestPace(t *testing.T) {
	b := New(1000, 1)
	require.True(t, b.TryAcquire())

	// 500 bytes at 1000 B/s should take 500ms; instant arrival sleeps the rest.
	pause := b.Pace(500, 0)
	require.InDelta(t, float64(500*time.Millisecond), float64(pause), float64(5*time.Millisecond))

	// Already slower than the budget: no sleep.
	require.Zero(t, b.Pace(500, time.Second))

	// Unlimited budget never sleeps.
	unlimited := New(0, 1)
	require.Zero(t, unlimited.Pace(1<<20, 0))
}
