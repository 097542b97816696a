// Package sequence runs fixed, timed step progressions, such as the
// matching-analysis banner shown while a request is being placed. Steps are
// presentation only; no state synchronization happens here.
package sequence

import (
	"context"
	"time"
)

// Step is one stage of a progression: the label to show and how long to
// hold it before moving on.
type Step struct {
	Label string
	Delay time.Duration
}

// AnalysisSteps is the progression shown while the system matches a new
// request to a blood bank.
var AnalysisSteps = []Step{
	{Label: "Analyzing blood type compatibility", Delay: 800 * time.Millisecond},
	{Label: "Checking nearby blood bank inventory", Delay: 900 * time.Millisecond},
	{Label: "Ranking banks by distance and stock", Delay: 700 * time.Millisecond},
	{Label: "Match found, notifying blood bank", Delay: 600 * time.Millisecond},
}

// Runner plays step progressions against an emit callback.
type Runner struct {
	// after is swappable so tests run progressions without real delays.
	after func(time.Duration) <-chan time.Time
}

// NewRunner builds a runner using real timers.
func NewRunner() *Runner {
	return &Runner{after: time.After}
}

// Run emits each step in order, waiting out its delay before the next.
// Cancelling ctx stops the progression between steps; the current step's
// emit is never retracted. Returns true if every step ran.
func (r *Runner) Run(ctx context.Context, steps []Step, emit func(Step)) bool {
	for _, step := range steps {
		if ctx.Err() != nil {
			return false
		}
		emit(step)
		select {
		case <-ctx.Done():
			return false
		case <-r.after(step.Delay):
		}
	}
	return true
}
