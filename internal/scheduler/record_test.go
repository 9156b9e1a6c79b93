package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		to      State
		allowed bool
	}{
		{name: "pending to active", from: StatePending, to: StateActive, allowed: true},
		{name: "pending to paused", from: StatePending, to: StatePaused, allowed: true},
		{name: "pending to cancelled", from: StatePending, to: StateCancelled, allowed: true},
		{name: "pending to completed", from: StatePending, to: StateCompleted, allowed: false},
		{name: "active to paused", from: StateActive, to: StatePaused, allowed: true},
		{name: "active to completed", from: StateActive, to: StateCompleted, allowed: true},
		{name: "active to cancelled", from: StateActive, to: StateCancelled, allowed: true},
		{name: "active to pending", from: StateActive, to: StatePending, allowed: false},
		{name: "paused to pending", from: StatePaused, to: StatePending, allowed: true},
		{name: "paused to active", from: StatePaused, to: StateActive, allowed: true},
		{name: "paused to cancelled", from: StatePaused, to: StateCancelled, allowed: true},
		{name: "paused to completed", from: StatePaused, to: StateCompleted, allowed: false},
		{name: "completed is terminal", from: StateCompleted, to: StateActive, allowed: false},
		{name: "cancelled is terminal", from: StateCancelled, to: StatePending, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecord(1, "http://example.com/f", "f", 10, PriorityNormal)
			rec.state = tt.from

			err := rec.transitionTo(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				require.Equal(t, tt.to, rec.state)

				return
			}

			var transitionErr *InvalidTransitionError
			require.ErrorAs(t, err, &transitionErr)
			require.Equal(t, tt.from, transitionErr.From)
			require.Equal(t, tt.to, transitionErr.To)
			require.Equal(t, tt.from, rec.state)
		})
	}
}

func TestStateTerminal(t *testing.T) {
	require.False(t, StatePending.Terminal())
	require.False(t, StateActive.Terminal())
	require.False(t, StatePaused.Terminal())
	require.True(t, StateCompleted.Terminal())
	require.True(t, StateCancelled.Terminal())
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in        string
		want      Priority
		expectErr bool
	}{
		{in: "low", want: PriorityLow},
		{in: "NORMAL", want: PriorityNormal},
		{in: "High", want: PriorityHigh},
		{in: "", want: PriorityNormal},
		{in: "urgent", expectErr: true},
	}

	for _, tt := range tests {
		t.Run("parse "+tt.in, func(t *testing.T) {
			got, err := ParsePriority(tt.in)
			if tt.expectErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRecordProgress(t *testing.T) {
	rec := newRecord(1, "http://example.com/f", "f", 200, PriorityNormal)

	require.Zero(t, rec.progress())

	rec.setDownloaded(50)
	require.InDelta(t, 25, rec.progress(), 0.001)

	// Overshoot clamps to the declared size.
	rec.setDownloaded(500)
	require.Equal(t, int64(200), rec.downloaded)
	require.InDelta(t, 100, rec.progress(), 0.001)

	// Negative counts clamp to zero.
	rec.setDownloaded(-5)
	require.Zero(t, rec.downloaded)
}

func TestRecordProgressUnknownSize(t *testing.T) {
	rec := newRecord(1, "http://example.com/f", "f", 0, PriorityNormal)
	rec.setDownloaded(1 << 20)

	require.Zero(t, rec.progress())
}

func TestInfoProgress(t *testing.T) {
	info := Info{Size: 400, Downloaded: 100}
	require.InDelta(t, 25, info.Progress(), 0.001)

	info = Info{Size: 0, Downloaded: 100}
	require.Zero(t, info.Progress())
}
