// Package transcriber copies untranscribed procedure events onto the primary
// participant records and advances each event once its record is written.
package transcriber

import (
	"context"
	"time"

	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/participants"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// Stage is the pipeline stage name of the transcriber.
const Stage = "transcribe"

// Transcription is the ledger change built for one event.
type Transcription struct {
	EventID       string             `json:"event_id" yaml:"event_id"`
	PensionNumber string             `json:"pension_number" yaml:"pension_number"`
	EventType     string             `json:"event_type" yaml:"event_type"`
	LedgerID      string             `json:"ledger_id,omitempty" yaml:"ledger_id,omitempty"`
	DiffFlag      string             `json:"diff_flag,omitempty" yaml:"diff_flag,omitempty"`
	Update        recordstore.Record `json:"-" yaml:"-"`
}

// Result is the outcome of one transcription pass.
type Result struct {
	Events      int
	Transcribed int
	Skipped     int
	Failed      int
	DiffPresent int
	DryRun      bool

	Transcriptions []Transcription

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Transcriber moves events from the queue onto the ledger.
type Transcriber struct {
	opts *options
}

// New creates a Transcriber.
func New(opts ...Option) (*Transcriber, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &Transcriber{opts: o}, nil
}

// Run transcribes every untranscribed event in queue order. Only a failed
// scan of either application is returned as an error; an event without a
// ledger record, or whose writes fail, is logged and left for the next run.
func (t *Transcriber) Run(ctx context.Context, ledger, events recordstore.App) (*Result, error) {
	ctx = logging.WithStage(ctx, Stage)
	logger := logging.FromContext(ctx)
	table := t.opts.table
	ef, lf := table.Events, table.Ledger

	result := &Result{StartTime: time.Now(), DryRun: t.opts.dryRun}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	queue, err := recordstore.ScanAll(ctx, events,
		recordstore.Filter{recordstore.In(ef.Status, table.Values.Untranscribed)},
		ef.QueueFields(), t.opts.pageSize)
	if err != nil {
		return result, err
	}
	result.Events = len(queue)
	if len(queue) == 0 {
		logger.Info().Msg("No untranscribed events")
		return result, nil
	}

	records, err := recordstore.ScanAll(ctx, ledger, nil, lf.TranscriptionFields(), t.opts.pageSize)
	if err != nil {
		return result, err
	}
	index := make(map[string]recordstore.Record, len(records))
	for _, r := range records {
		key := participants.StripHyphens(r.String(lf.PensionNumber))
		if _, seen := index[key]; key != "" && !seen {
			index[key] = r
		}
	}

	for _, event := range queue {
		t.transcribe(ctx, ledger, events, index, event, result)
	}

	logger.Info().
		Int("events", result.Events).
		Int("transcribed", result.Transcribed).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("diff_present", result.DiffPresent).
		Msg("Events transcribed")
	return result, nil
}

func (t *Transcriber) transcribe(ctx context.Context, ledger, events recordstore.App, index map[string]recordstore.Record, event recordstore.Record, result *Result) {
	table := t.opts.table
	ef, lf := table.Events, table.Ledger

	pension := event.String(ef.PensionNumber)
	eventID := event.String(ef.ID)
	logger := logging.FromContext(ctx).With().
		Str("event_id", eventID).
		Str("pension_number", pension).
		Logger()

	tr := Transcription{
		EventID:       eventID,
		PensionNumber: pension,
		EventType:     event.String(ef.Type),
	}

	current, ok := index[participants.StripHyphens(pension)]
	if !ok {
		result.Skipped++
		t.opts.metrics.Record(Stage, events.ID(), string(audit.ActionSkipped))
		t.emit(ctx, events.ID(), pension, eventID, audit.ActionSkipped, "no ledger record for pension number")
		logger.Info().Msg("No ledger record for event, left untranscribed")
		return
	}

	update, diff := Build(table, event, current)
	tr.LedgerID = current.String(lf.ID)
	tr.DiffFlag = diff
	tr.Update = update
	result.Transcriptions = append(result.Transcriptions, tr)
	if diff == table.Values.DiffPresent {
		result.DiffPresent++
	}

	if t.opts.dryRun {
		audit.Emit(ctx, t.opts.recorder, audit.Entry{
			Stage: Stage, Target: ledger.ID(), Key: pension, RecordID: tr.LedgerID,
			Action: audit.ActionTranscribed, Detail: tr.EventType, DryRun: true,
		})
		return
	}

	if err := ledger.UpdateOne(ctx, recordstore.Update{ID: tr.LedgerID, Record: update}); err != nil {
		result.Failed++
		t.opts.metrics.Record(Stage, ledger.ID(), string(audit.ActionFailed))
		t.emit(ctx, ledger.ID(), pension, tr.LedgerID, audit.ActionFailed, err.Error())
		logger.Warn().Err(err).Str("ledger_id", tr.LedgerID).Msg("Ledger update failed, event left untranscribed")
		return
	}

	// later events for the same participant build on this write
	current = current.Clone()
	current.Merge(update)
	index[participants.StripHyphens(pension)] = current

	status := recordstore.FromValues(map[string]string{ef.Status: table.Values.Transcribed})
	if err := events.UpdateOne(ctx, recordstore.Update{ID: eventID, Record: status}); err != nil {
		result.Failed++
		t.opts.metrics.Event(Stage, "failed")
		t.emit(ctx, events.ID(), pension, eventID, audit.ActionFailed, err.Error())
		logger.Error().Err(err).Msg("Ledger written but event status not advanced")
		return
	}

	result.Transcribed++
	t.opts.metrics.Record(Stage, ledger.ID(), string(audit.ActionTranscribed))
	t.opts.metrics.Event(Stage, table.Values.Transcribed)
	t.emit(ctx, ledger.ID(), pension, tr.LedgerID, audit.ActionTranscribed, tr.EventType)
	logger.Info().Str("diff_flag", diff).Msg("Event transcribed")
}

func (t *Transcriber) emit(ctx context.Context, target, key, id string, action audit.Action, detail string) {
	audit.Emit(ctx, t.opts.recorder, audit.Entry{
		Stage:    Stage,
		Target:   target,
		Key:      key,
		RecordID: id,
		Action:   action,
		Detail:   detail,
	})
}
