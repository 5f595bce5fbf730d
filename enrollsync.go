package enrollsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/feeds"
	"github.com/agentstation/enrollsync/pkg/fieldmap"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/metrics"
	"github.com/agentstation/enrollsync/pkg/participants"
	"github.com/agentstation/enrollsync/pkg/reconciler"
	"github.com/agentstation/enrollsync/pkg/recordstore"
	"github.com/agentstation/enrollsync/pkg/transcriber"
)

// Stage names.
const (
	StageLoadFeeds  = "load-feeds"
	StageJoin       = "join"
	StageTranscribe = transcriber.Stage
)

// Syncer runs reconciliation passes.
type Syncer interface {
	// Run executes every stage in order.
	Run(ctx context.Context) (*Result, error)

	// Plan executes every stage without writing.
	Plan(ctx context.Context) (*Result, error)

	// Transcribe executes only the transcribe stage.
	Transcribe(ctx context.Context) (*Result, error)

	// OnStageStarted registers a callback for when a stage starts
	OnStageStarted(StageStartedHook)

	// OnStageFinished registers a callback for when a stage finishes
	OnStageFinished(StageFinishedHook)
}

type config struct {
	benefits  feeds.Spec
	identity  feeds.Spec
	targets   []Target
	events    recordstore.App
	ledger    string
	table     *fieldmap.Table
	dryRun    bool
	pageSize  int
	chunkSize int
	recorder  audit.Recorder
	metrics   *metrics.Metrics
	runID     string
}

// syncer is the internal implementation of the Syncer interface
type syncer struct {
	*hooks
	config *config
}

// New creates a Syncer with the given options
func New(opts ...Option) (Syncer, error) {
	c := &config{
		pageSize:  constants.PageSize,
		chunkSize: constants.ChunkSize,
		recorder:  audit.LogRecorder{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("applying options: %w", err)
		}
	}
	if c.table == nil {
		table, err := fieldmap.Default()
		if err != nil {
			return nil, err
		}
		c.table = table
	}
	if c.ledger != "" {
		t, ok := c.target(c.ledger)
		if !ok || t.Strategy != reconciler.StrategyExact {
			return nil, errors.NewValidationError("ledger", c.ledger, "must name an exact target")
		}
	}
	return &syncer{hooks: newHooks(), config: c}, nil
}

func (c *config) target(name string) (Target, bool) {
	for _, t := range c.targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// ledgerTarget is the exact target events are transcribed onto.
func (c *config) ledgerTarget() (Target, bool) {
	if c.ledger != "" {
		return c.target(c.ledger)
	}
	for _, t := range c.targets {
		if t.Strategy == reconciler.StrategyExact {
			return t, true
		}
	}
	return Target{}, false
}

// Run executes every stage in order.
func (s *syncer) Run(ctx context.Context) (*Result, error) {
	return s.run(ctx, s.config.dryRun, false)
}

// Plan executes every stage without writing.
func (s *syncer) Plan(ctx context.Context) (*Result, error) {
	return s.run(ctx, true, false)
}

// Transcribe executes only the transcribe stage.
func (s *syncer) Transcribe(ctx context.Context) (*Result, error) {
	return s.run(ctx, s.config.dryRun, true)
}

func (s *syncer) run(ctx context.Context, dryRun, transcribeOnly bool) (*Result, error) {
	runID := s.config.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.FromContext(ctx)

	result := newResult(runID, dryRun)
	defer func() {
		result.finish()
		s.config.metrics.Finish(result.StartTime, result.EndTime)
	}()

	logger.Info().
		Bool("dry_run", dryRun).
		Int("targets", len(s.config.targets)).
		Msg("Run started")

	if transcribeOnly {
		s.transcribeStage(ctx, dryRun, result)
		logger.Info().Str("summary", result.Summary()).Msg("Run finished")
		return result, nil
	}

	records, err := s.loadAndJoin(ctx, result)
	if err != nil {
		logger.Error().Err(err).Msg("Run aborted")
		return result, err
	}
	result.Participants = len(records)

	for _, t := range s.config.targets {
		if t.Strategy == reconciler.StrategyExact {
			s.reconcileStage(ctx, t, records, dryRun, result)
		}
	}

	s.transcribeStage(ctx, dryRun, result)

	for _, t := range s.config.targets {
		if t.Strategy == reconciler.StrategyFuzzy {
			s.reconcileStage(ctx, t, records, dryRun, result)
		}
	}

	logger.Info().Str("summary", result.Summary()).Msg("Run finished")
	return result, nil
}

// loadAndJoin runs the two batch-fatal stages.
func (s *syncer) loadAndJoin(ctx context.Context, result *Result) ([]participants.Record, error) {
	table := s.config.table

	var benefits []feeds.BenefitsRow
	var identity []feeds.IdentityRow
	err := s.stage(ctx, StageLoadFeeds, result, func(ctx context.Context) error {
		bt, err := feeds.Load(ctx, s.config.benefits)
		if err != nil {
			return err
		}
		it, err := feeds.Load(ctx, s.config.identity)
		if err != nil {
			return err
		}
		if benefits, err = feeds.BenefitsRows(bt, table.Benefits); err != nil {
			return errors.Fatal(err)
		}
		if identity, err = feeds.IdentityRows(it, table.Identity); err != nil {
			return errors.Fatal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var records []participants.Record
	err = s.stage(ctx, StageJoin, result, func(ctx context.Context) error {
		var err error
		records, err = participants.Join(benefits, identity)
		if err != nil {
			return err
		}
		logging.FromContext(ctx).Info().
			Int("benefits_rows", len(benefits)).
			Int("identity_rows", len(identity)).
			Int("participants", len(records)).
			Msg("Feeds joined")
		return nil
	})
	return records, err
}

func (s *syncer) reconcileStage(ctx context.Context, t Target, records []participants.Record, dryRun bool, result *Result) {
	r, err := reconciler.New(
		reconciler.WithFieldMap(s.config.table),
		reconciler.WithPageSize(s.config.pageSize),
		reconciler.WithChunkSize(s.config.chunkSize),
		reconciler.WithDryRun(dryRun),
		reconciler.WithRecorder(s.config.recorder),
		reconciler.WithMetrics(s.config.metrics),
	)
	stage := reconciler.Stage(t.Name)
	_ = s.stage(ctx, stage, result, func(ctx context.Context) error {
		if err != nil {
			return err
		}
		target := reconciler.Target{Name: t.Name, App: t.App, Strategy: t.Strategy}
		if t.SettleEvents {
			target.Events = s.config.events
		}
		res, err := r.Reconcile(ctx, target, records)
		if res != nil {
			result.Targets = append(result.Targets, res)
		}
		return err
	})
}

func (s *syncer) transcribeStage(ctx context.Context, dryRun bool, result *Result) {
	if s.config.events == nil {
		logging.FromContext(ctx).Debug().Msg("No event queue configured, transcribe skipped")
		return
	}
	ledger, ok := s.config.ledgerTarget()
	_ = s.stage(ctx, StageTranscribe, result, func(ctx context.Context) error {
		if !ok {
			return errors.NewValidationError("ledger", nil, "transcribe needs an exact target")
		}
		tr, err := transcriber.New(
			transcriber.WithFieldMap(s.config.table),
			transcriber.WithPageSize(s.config.pageSize),
			transcriber.WithDryRun(dryRun),
			transcriber.WithRecorder(s.config.recorder),
			transcriber.WithMetrics(s.config.metrics),
		)
		if err != nil {
			return err
		}
		res, err := tr.Run(ctx, ledger.App, s.config.events)
		result.Transcription = res
		return err
	})
}

// stage runs fn as one named stage. A fatal error is returned so the run
// stops; any other error is recorded on the result and swallowed.
func (s *syncer) stage(ctx context.Context, name string, result *Result, fn func(context.Context) error) error {
	ctx = logging.WithStage(ctx, name)
	logger := logging.FromContext(ctx)

	s.started(name)
	started := time.Now()
	logger.Debug().Msg("Stage started")

	err := fn(ctx)
	outcome := StageOutcome{
		Name:     name,
		Err:      err,
		Fatal:    errors.IsBatchFatal(err),
		Duration: time.Since(started),
	}
	result.Stages = append(result.Stages, outcome)
	s.finished(outcome)

	if err == nil {
		logger.Info().Dur("duration", outcome.Duration).Msg("Stage completed")
		return nil
	}

	s.config.metrics.StageError(name)
	logger.Error().Err(err).Bool("fatal", outcome.Fatal).Msg("Stage failed")
	// full error chain for the diagnostic channel
	logger.Debug().Str("error_chain", fmt.Sprintf("%+v", err)).Msg("Stage error detail")

	if outcome.Fatal {
		return err
	}
	return nil
}
