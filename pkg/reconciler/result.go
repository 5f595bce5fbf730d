package reconciler

import (
	"fmt"
	"time"
)

// Result represents the outcome of reconciling one target.
type Result struct {
	Target   string
	Strategy Strategy
	Plan     *WritePlan

	// Metadata
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	DryRun    bool

	Stats Stats
}

// Stats counts what was written. Planned but unwritten records are not
// counted; see Plan for those.
type Stats struct {
	Inserted int
	Updated  int
	NotFound int
	Failed   int

	EventsConfirmed         int
	EventsRegistrationError int
	EventsFailed            int
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	if r.Plan == nil {
		return fmt.Sprintf("%s: no plan", r.Target)
	}
	if r.DryRun {
		return fmt.Sprintf("%s: dry run, %d to insert, %d to update, %d not found",
			r.Target, len(r.Plan.ToInsert), len(r.Plan.ToUpdate), len(r.Plan.NotFound))
	}
	s := fmt.Sprintf("%s: %d inserted, %d updated", r.Target, r.Stats.Inserted, r.Stats.Updated)
	if r.Strategy == StrategyFuzzy {
		s += fmt.Sprintf(", %d not found, %d events confirmed, %d events marked registration error",
			r.Stats.NotFound, r.Stats.EventsConfirmed, r.Stats.EventsRegistrationError)
	}
	if r.Stats.Failed > 0 {
		s += fmt.Sprintf(", %d failed", r.Stats.Failed)
	}
	return s
}

func newResult(target Target, dryRun bool) *Result {
	return &Result{
		Target:    target.Name,
		Strategy:  target.Strategy,
		StartTime: time.Now(),
		DryRun:    dryRun,
	}
}

func (r *Result) finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}
