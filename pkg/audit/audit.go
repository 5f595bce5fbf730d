// Package audit records every per-record decision a run makes: inserts,
// updates, participants missing from a registry, transcribed events and the
// status each event was settled to.
//
// Entries always go to the log. A SQLite ledger can be added to keep them
// queryable across runs.
package audit

import (
	"context"
	"time"

	"github.com/agentstation/enrollsync/pkg/logging"
)

// Action is the decision taken for one record.
type Action string

// Actions emitted by the engines.
const (
	ActionInsert            Action = "insert"
	ActionUpdate            Action = "update"
	ActionNotFound          Action = "not_found"
	ActionTranscribed       Action = "transcribed"
	ActionSkipped           Action = "skipped"
	ActionConfirmed         Action = "confirmed"
	ActionRegistrationError Action = "registration_error"
	ActionFailed            Action = "failed"
)

// Entry is one audited decision.
type Entry struct {
	RunID    string    `json:"run_id"`
	Stage    string    `json:"stage"`
	Target   string    `json:"target"`
	Key      string    `json:"key"`
	RecordID string    `json:"record_id,omitempty"`
	Action   Action    `json:"action"`
	Detail   string    `json:"detail,omitempty"`
	DryRun   bool      `json:"dry_run,omitempty"`
	At       time.Time `json:"at"`
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Emit fills in the run id and timestamp when missing and hands e to rec.
// A recorder failure is logged and never propagated: auditing must not
// change the outcome of a run.
func Emit(ctx context.Context, rec Recorder, e Entry) {
	if rec == nil {
		return
	}
	if e.RunID == "" {
		e.RunID = logging.RunID(ctx)
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := rec.Record(ctx, e); err != nil {
		logging.FromContext(ctx).Warn().
			Err(err).
			Str("action", string(e.Action)).
			Str("key", e.Key).
			Msg("Audit entry not recorded")
	}
}

// Multi fans an entry out to several recorders. Every recorder is tried;
// the first error is returned.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, e Entry) error {
	var first error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards entries.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Entry) error { return nil }

// Memory keeps entries in a slice. It is meant for tests and plan output.
type Memory struct {
	Entries []Entry
}

// Record implements Recorder.
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.Entries = append(m.Entries, e)
	return nil
}

// Count returns how many entries carry action.
func (m *Memory) Count(action Action) int {
	n := 0
	for _, e := range m.Entries {
		if e.Action == action {
			n++
		}
	}
	return n
}
