package enrollsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentstation/enrollsync/pkg/reconciler"
	"github.com/agentstation/enrollsync/pkg/transcriber"
)

// StageOutcome is how one stage ended.
type StageOutcome struct {
	Name     string
	Err      error
	Fatal    bool
	Duration time.Duration
}

// Result represents the outcome of a run.
type Result struct {
	RunID  string
	DryRun bool

	Participants  int
	Stages        []StageOutcome
	Targets       []*reconciler.Result
	Transcription *transcriber.Result

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

func newResult(runID string, dryRun bool) *Result {
	return &Result{
		RunID:     runID,
		DryRun:    dryRun,
		StartTime: time.Now(),
	}
}

func (r *Result) finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// StageErrors returns the errors of failed stages in run order.
func (r *Result) StageErrors() []error {
	var errs []error
	for _, s := range r.Stages {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return errs
}

// Failed reports whether any stage failed.
func (r *Result) Failed() bool {
	return len(r.StageErrors()) > 0
}

// Target returns the result of one target.
func (r *Result) Target(name string) (*reconciler.Result, bool) {
	for _, t := range r.Targets {
		if t.Target == name {
			return t, true
		}
	}
	return nil, false
}

// Plans returns the write plans of every reconciled target.
func (r *Result) Plans() []*reconciler.WritePlan {
	plans := make([]*reconciler.WritePlan, 0, len(r.Targets))
	for _, t := range r.Targets {
		if t.Plan != nil {
			plans = append(plans, t.Plan)
		}
	}
	return plans
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	parts := []string{fmt.Sprintf("%d participants", r.Participants)}
	for _, t := range r.Targets {
		parts = append(parts, t.Summary())
	}
	if tr := r.Transcription; tr != nil {
		parts = append(parts, fmt.Sprintf("transcribe: %d of %d events transcribed, %d skipped, %d failed",
			tr.Transcribed, tr.Events, tr.Skipped, tr.Failed))
	}
	if n := len(r.StageErrors()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d stages failed", n))
	}
	return strings.Join(parts, "; ")
}
