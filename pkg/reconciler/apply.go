package reconciler

import (
	"context"

	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// Stage returns the pipeline stage name of a target.
func Stage(target string) string {
	return "reconcile:" + target
}

// applyExact writes inserts then updates in chunks. A rejected insert chunk
// ends the stage before any update is sent.
func (r *Reconciler) applyExact(ctx context.Context, target Target, plan *WritePlan, result *Result) error {
	logger := logging.FromContext(ctx)
	stage := Stage(target.Name)

	inserted, err := recordstore.CreateAll(ctx, target.App, plan.Records(), r.opts.chunkSize)
	result.Stats.Inserted = inserted
	r.opts.metrics.Records(stage, target.Name, string(audit.ActionInsert), inserted)
	for _, ins := range plan.ToInsert[:inserted] {
		r.emit(ctx, stage, target.Name, ins.Key, "", audit.ActionInsert, "")
	}
	if err != nil {
		r.chunkFailed(ctx, target.Name, "create", err, func(from, to int) {
			for _, ins := range plan.ToInsert[from:to] {
				r.emit(ctx, stage, target.Name, ins.Key, "", audit.ActionFailed, err.Error())
			}
		})
		result.Stats.Failed = len(plan.ToInsert) - inserted + len(plan.ToUpdate)
		if len(plan.ToUpdate) > 0 {
			logger.Warn().
				Int("skipped_updates", len(plan.ToUpdate)).
				Msg("Updates not sent after failed insert")
		}
		return err
	}

	updated, err := recordstore.UpdateAll(ctx, target.App, plan.Updates(), r.opts.chunkSize)
	result.Stats.Updated = updated
	r.opts.metrics.Records(stage, target.Name, string(audit.ActionUpdate), updated)
	for _, u := range plan.ToUpdate[:updated] {
		r.emit(ctx, stage, target.Name, u.Key, u.ID, audit.ActionUpdate, "")
	}
	if err != nil {
		r.chunkFailed(ctx, target.Name, "update", err, func(from, to int) {
			for _, u := range plan.ToUpdate[from:to] {
				r.emit(ctx, stage, target.Name, u.Key, u.ID, audit.ActionFailed, err.Error())
			}
		})
		result.Stats.Failed = len(plan.ToUpdate) - updated
		return err
	}

	logger.Info().
		Int("inserted", inserted).
		Int("updated", updated).
		Msg("Target reconciled")
	return nil
}

// chunkFailed logs a rejected chunk and audits the records it carried.
func (r *Reconciler) chunkFailed(ctx context.Context, target, op string, err error, each func(from, to int)) {
	r.opts.metrics.ChunkError(target, op)

	var chunk *errors.ChunkError
	if !errors.As(err, &chunk) {
		logging.FromContext(ctx).Error().Err(err).Str("operation", op).Msg("Batch write failed")
		return
	}
	logging.FromContext(ctx).Error().
		Err(chunk.Err).
		Str("operation", op).
		Int("offset", chunk.Offset).
		Int("size", chunk.Size).
		Msg("Batch write chunk rejected")
	each(chunk.Offset, chunk.Offset+chunk.Size)
}

// auditPlan records the planned decisions of a dry run.
func (r *Reconciler) auditPlan(ctx context.Context, plan *WritePlan) {
	for _, ins := range plan.ToInsert {
		r.emitDry(ctx, plan.Target, ins.Key, "", audit.ActionInsert)
	}
	for _, u := range plan.ToUpdate {
		r.emitDry(ctx, plan.Target, u.Key, u.ID, audit.ActionUpdate)
	}
	for _, m := range plan.NotFound {
		r.emitDry(ctx, plan.Target, m.Key, "", audit.ActionNotFound)
	}
}

func (r *Reconciler) emit(ctx context.Context, stage, target, key, id string, action audit.Action, detail string) {
	audit.Emit(ctx, r.opts.recorder, audit.Entry{
		Stage:    stage,
		Target:   target,
		Key:      key,
		RecordID: id,
		Action:   action,
		Detail:   detail,
	})
}

func (r *Reconciler) emitDry(ctx context.Context, target, key, id string, action audit.Action) {
	audit.Emit(ctx, r.opts.recorder, audit.Entry{
		Stage:    Stage(target),
		Target:   target,
		Key:      key,
		RecordID: id,
		Action:   action,
		DryRun:   true,
	})
}
