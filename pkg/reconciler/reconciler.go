// Package reconciler matches joined participant records against the records
// of a remote application and writes the difference.
//
// An exact target is keyed by participant code: matches are updated and
// misses inserted, both through chunked batch writes. A fuzzy target is keyed
// by pension number, phonetic name and birth date: every match gets a
// single-record membership update, misses are only reported, and pending
// procedure events for the participant are then settled to complete or
// registration error.
package reconciler

import (
	"context"

	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/participants"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// Target is one remote application to reconcile.
type Target struct {
	Name     string
	App      recordstore.App
	Strategy Strategy

	// Events is the procedure event queue settled by fuzzy targets.
	// Nil skips event settlement.
	Events recordstore.App
}

// Reconciler reconciles participants against targets.
type Reconciler struct {
	opts *options
}

// New creates a new Reconciler with options.
func New(opts ...Option) (*Reconciler, error) {
	options, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &Reconciler{opts: options}, nil
}

// Plan scans the target once and partitions records against it without
// writing anything.
func (r *Reconciler) Plan(ctx context.Context, target Target, records []participants.Record) (*WritePlan, error) {
	if target.App == nil {
		return nil, errors.NewValidationError("app", target.Name, "target has no application")
	}

	table := r.opts.table
	logger := logging.FromContext(ctx)

	switch target.Strategy {
	case StrategyExact:
		remote, err := recordstore.ScanAll(ctx, target.App, nil, table.Ledger.IndexFields(), r.opts.pageSize)
		if err != nil {
			return nil, err
		}
		index := NewIndex(remote, table.Ledger.ID, ExactKey(table))
		logger.Info().
			Int("remote_records", len(remote)).
			Int("indexed_keys", len(index)).
			Msg("Built participant code index")
		return PlanExact(target.Name, records, index, table)

	case StrategyFuzzy:
		remote, err := recordstore.ScanAll(ctx, target.App, nil, table.Registry.IndexFields(), r.opts.pageSize)
		if err != nil {
			return nil, err
		}
		index := NewIndex(remote, table.Registry.ID, FuzzyKey(table))
		logger.Info().
			Int("remote_records", len(remote)).
			Int("indexed_keys", len(index)).
			Msg("Built fuzzy participant index")
		return PlanFuzzy(target.Name, records, index, table), nil

	default:
		return nil, errors.NewValidationError("strategy", string(target.Strategy), "must be exact or fuzzy")
	}
}

// Reconcile plans and applies writes for one target. The returned error is
// the stage failure: a failed scan or a rejected chunk. Record-level failures
// on fuzzy targets are counted in Stats and audited, not returned.
func (r *Reconciler) Reconcile(ctx context.Context, target Target, records []participants.Record) (*Result, error) {
	ctx = logging.WithTarget(ctx, target.Name)
	result := newResult(target, r.opts.dryRun)
	defer result.finish()

	plan, err := r.Plan(ctx, target, records)
	if err != nil {
		return result, err
	}
	result.Plan = plan

	logging.FromContext(ctx).Info().
		Str("strategy", target.Strategy.String()).
		Int("to_insert", len(plan.ToInsert)).
		Int("to_update", len(plan.ToUpdate)).
		Int("not_found", len(plan.NotFound)).
		Bool("dry_run", r.opts.dryRun).
		Msg("Planned writes")

	if r.opts.dryRun {
		r.auditPlan(ctx, plan)
		return result, nil
	}

	switch target.Strategy {
	case StrategyFuzzy:
		r.applyFuzzy(ctx, target, plan, result)
		return result, nil
	default:
		err = r.applyExact(ctx, target, plan, result)
		return result, err
	}
}
