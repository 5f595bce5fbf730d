package reconciler

import (
	"context"

	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/participants"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// applyFuzzy walks matches and misses in feed order. Each match gets its own
// membership update; its pending events are confirmed on success and marked
// registration error on failure. A miss marks its pending events
// registration error as well.
func (r *Reconciler) applyFuzzy(ctx context.Context, target Target, plan *WritePlan, result *Result) {
	logger := logging.FromContext(ctx)
	stage := Stage(target.Name)
	values := r.opts.table.Values

	u, m := 0, 0
	for u < len(plan.ToUpdate) || m < len(plan.NotFound) {
		if m >= len(plan.NotFound) || (u < len(plan.ToUpdate) && plan.ToUpdate[u].Row < plan.NotFound[m].Row) {
			upd := plan.ToUpdate[u]
			u++

			pctx := logging.WithParticipant(ctx, upd.Key)
			err := target.App.UpdateOne(pctx, recordstore.Update{ID: upd.ID, Record: recordstore.FromValues(upd.Values)})
			status := values.Complete
			if err != nil {
				status = values.RegistrationError
				result.Stats.Failed++
				r.opts.metrics.Record(stage, target.Name, string(audit.ActionFailed))
				r.emit(pctx, stage, target.Name, upd.Key, upd.ID, audit.ActionFailed, err.Error())
				logging.FromContext(pctx).Warn().
					Err(err).
					Str("record_id", upd.ID).
					Str("pension_number", upd.PensionNumber).
					Msg("Registry update failed")
			} else {
				result.Stats.Updated++
				r.opts.metrics.Record(stage, target.Name, string(audit.ActionUpdate))
				r.emit(pctx, stage, target.Name, upd.Key, upd.ID, audit.ActionUpdate, "")
			}
			r.settleEvents(pctx, target, upd.PensionNumber, status, result)
			continue
		}

		miss := plan.NotFound[m]
		m++

		pctx := logging.WithParticipant(ctx, miss.Key)
		result.Stats.NotFound++
		r.opts.metrics.Record(stage, target.Name, string(audit.ActionNotFound))
		r.emit(pctx, stage, target.Name, miss.Key, "", audit.ActionNotFound, "no registry record matches pension number, kana name and birth date")
		logging.FromContext(pctx).Info().
			Str("employer", miss.Employer).
			Str("kana_name", miss.KanaName).
			Str("pension_number", miss.PensionNumber).
			Msg("Participant not found in registry")
		r.settleEvents(pctx, target, miss.PensionNumber, values.RegistrationError, result)
	}

	logger.Info().
		Int("updated", result.Stats.Updated).
		Int("not_found", result.Stats.NotFound).
		Int("failed", result.Stats.Failed).
		Int("events_confirmed", result.Stats.EventsConfirmed).
		Int("events_registration_error", result.Stats.EventsRegistrationError).
		Msg("Target reconciled")
}

// PendingFilter selects transcribed events of a pension number that are not
// complete yet. The queue stores pension numbers hyphenated; the plain form
// is matched too.
func (r *Reconciler) PendingFilter(pension string) recordstore.Filter {
	ev, values := r.opts.table.Events, r.opts.table.Values
	plain := participants.StripHyphens(pension)
	return recordstore.Filter{
		recordstore.In(ev.PensionNumber, participants.Hyphenate(plain), plain),
		recordstore.In(ev.Status, values.Transcribed),
		recordstore.NotIn(ev.Status2, values.Complete),
	}
}

// settleEvents sets the secondary status of every pending event of a
// participant. Failures are logged and audited; they never stop the stage.
func (r *Reconciler) settleEvents(ctx context.Context, target Target, pension, status string, result *Result) {
	if target.Events == nil {
		return
	}
	logger := logging.FromContext(ctx)
	if participants.StripHyphens(pension) == "" {
		logger.Debug().Msg("No pension number, pending events not settled")
		return
	}

	ev, values := r.opts.table.Events, r.opts.table.Values
	stage := Stage(target.Name)

	pending, err := recordstore.ScanAll(ctx, target.Events, r.PendingFilter(pension), ev.StatusFields(), r.opts.pageSize)
	if err != nil {
		result.Stats.EventsFailed++
		r.emit(ctx, stage, target.Events.ID(), pension, "", audit.ActionFailed, err.Error())
		logger.Error().Err(err).Str("pension_number", pension).Msg("Pending event query failed")
		return
	}

	action := audit.ActionConfirmed
	if status == values.RegistrationError {
		action = audit.ActionRegistrationError
	}

	for _, event := range pending {
		id := event.String(ev.ID)
		update := recordstore.Update{ID: id, Record: recordstore.FromValues(map[string]string{ev.Status2: status})}
		if err := target.Events.UpdateOne(ctx, update); err != nil {
			result.Stats.EventsFailed++
			r.opts.metrics.Event(stage, "failed")
			r.emit(ctx, stage, target.Events.ID(), pension, id, audit.ActionFailed, err.Error())
			logger.Error().Err(err).Str("event_id", id).Str("status", status).Msg("Event status update failed")
			continue
		}
		if action == audit.ActionConfirmed {
			result.Stats.EventsConfirmed++
		} else {
			result.Stats.EventsRegistrationError++
		}
		r.opts.metrics.Event(stage, status)
		r.emit(ctx, stage, target.Events.ID(), pension, id, action, "")
	}
}
