package scheduler

import (
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "queue full", err: &QueueFullError{Capacity: 100}, want: "100"},
		{name: "not found", err: &NotFoundError{ID: 42}, want: "42"},
		{name: "already paused", err: &AlreadyPausedError{ID: 7}, want: "paused"},
		{name: "already completed", err: &AlreadyCompletedError{ID: 7}, want: "completed"},
		{name: "still live", err: &StillLiveError{ID: 7, State: StateActive}, want: "active"},
		{name: "invalid transition", err: &InvalidTransitionError{From: StateCompleted, To: StateActive}, want: "completed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := tt.err.Error(); !strings.Contains(msg, tt.want) {
				t.Errorf("expected %q to contain %q", msg, tt.want)
			}
		})
	}
}
