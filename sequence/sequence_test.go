package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// immediate replaces real timers so progressions complete instantly.
func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestRunEmitsAllStepsInOrder(t *testing.T) {
	r := &Runner{after: immediate}

	var labels []string
	done := r.Run(context.Background(), AnalysisSteps, func(s Step) {
		labels = append(labels, s.Label)
	})

	require.True(t, done)
	require.Len(t, labels, len(AnalysisSteps))
	for i, step := range AnalysisSteps {
		require.Equal(t, step.Label, labels[i])
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &Runner{after: immediate}

	ctx, cancel := context.WithCancel(context.Background())
	var emitted int
	done := r.Run(ctx, AnalysisSteps, func(s Step) {
		emitted++
		if emitted == 2 {
			cancel()
		}
	})

	require.False(t, done)
	require.Equal(t, 2, emitted, "cancellation stops the progression between steps")
}

func TestRunEmptySteps(t *testing.T) {
	r := NewRunner()
	require.True(t, r.Run(context.Background(), nil, func(Step) {
		t.Fatal("no steps should emit")
	}))
}
