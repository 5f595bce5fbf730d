package reconciler_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/participants"
	"github.com/agentstation/enrollsync/pkg/reconciler"
	"github.com/agentstation/enrollsync/pkg/recordstore"
	"github.com/agentstation/enrollsync/pkg/recordstore/memory"
)

func registryRecord(pension, family, given, birth string) recordstore.Record {
	return recordstore.FromValues(map[string]string{
		"基礎年金番号":     pension,
		"セイ戸籍カナ":     family,
		"メイ戸籍カナ":     given,
		"生年月日":       birth,
		"_401k加入有無": "",
	})
}

func event(pension, status, status2 string) recordstore.Record {
	return recordstore.FromValues(map[string]string{
		"基礎年金番号":  pension,
		"Status":  status,
		"Status2": status2,
	})
}

func TestPendingFilter(t *testing.T) {
	r, _, _ := newReconciler(t)
	f := r.PendingFilter("1234567890")

	assert.True(t, f.Match(event("1234-567890", "転記済", "")))
	assert.True(t, f.Match(event("1234567890", "転記済", "登録エラー")))
	assert.False(t, f.Match(event("1234-567890", "転記済", "完了")))
	assert.False(t, f.Match(event("1234-567890", "未転記", "")))
	assert.False(t, f.Match(event("9999-567890", "転記済", "")))
}

func TestReconcileFuzzy(t *testing.T) {
	setup := func(t *testing.T) (*memory.App, *memory.App, []string, []string) {
		registry := memory.New("registry")
		regIDs := registry.Seed(
			registryRecord("1234-567890", "ヤマダ", "タロウ", "1990-01-15"),
			registryRecord("2222-333333", "スズキ", "ハナコ", "1985-07-01"),
		)
		events := memory.New("events")
		evIDs := events.Seed(
			event("1234-567890", "転記済", ""),
			event("1234-567890", "転記済", "完了"),
			event("1234-567890", "未転記", ""),
			event("5555-666666", "転記済", ""),
		)
		return registry, events, regIDs, evIDs
	}

	matched := participant("0001", "99999999", "1234567890")
	missing := participant("0002", "99999999", "5555666666")
	missing.Identity.KanaName = "ｻﾄｳ ｼﾞﾛｳ"

	t.Run("match updates membership and confirms pending events", func(t *testing.T) {
		r, rec, ctx := newReconciler(t)
		registry, events, regIDs, evIDs := setup(t)

		target := reconciler.Target{Name: "registry", App: registry, Strategy: reconciler.StrategyFuzzy, Events: events}
		result, err := r.Reconcile(ctx, target, []participants.Record{matched})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Stats.Updated)
		assert.Equal(t, 1, result.Stats.EventsConfirmed)

		stored, _ := registry.Get(regIDs[0])
		assert.Equal(t, "有", stored.String("_401k加入有無"))

		ev, _ := events.Get(evIDs[0])
		assert.Equal(t, "完了", ev.String("Status2"))
		untouched, _ := events.Get(evIDs[2])
		assert.Equal(t, "", untouched.String("Status2"))

		writes := registry.WriteCalls()
		require.Len(t, writes, 1)
		assert.Equal(t, "update_one", writes[0].Op)
		assert.Equal(t, 1, rec.Count(audit.ActionConfirmed))
	})

	t.Run("no match marks pending events registration error", func(t *testing.T) {
		r, rec, ctx := newReconciler(t)
		registry, events, _, evIDs := setup(t)

		target := reconciler.Target{Name: "registry", App: registry, Strategy: reconciler.StrategyFuzzy, Events: events}
		result, err := r.Reconcile(ctx, target, []participants.Record{missing})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Stats.NotFound)
		assert.Equal(t, 1, result.Stats.EventsRegistrationError)
		assert.Empty(t, registry.WriteCalls())

		ev, _ := events.Get(evIDs[3])
		assert.Equal(t, "登録エラー", ev.String("Status2"))
		assert.Equal(t, 1, rec.Count(audit.ActionNotFound))
		assert.Equal(t, 1, rec.Count(audit.ActionRegistrationError))
	})

	t.Run("miss is logged with the participant details", func(t *testing.T) {
		tl := logging.CaptureLoggingForTest(t)
		r, _, _ := newReconciler(t)
		registry, events, _, _ := setup(t)

		target := reconciler.Target{Name: "registry", App: registry, Strategy: reconciler.StrategyFuzzy, Events: events}
		_, err := r.Reconcile(context.Background(), target, []participants.Record{missing})
		require.NoError(t, err)

		entry := tl.AssertMessage(t, zerolog.InfoLevel, "Participant not found in registry")
		assert.Equal(t, "5555666666", entry.Str("pension_number"))
		assert.Equal(t, "ｻﾄｳ ｼﾞﾛｳ", entry.Str("kana_name"))
		assert.Equal(t, "テスト商事", entry.Str("employer"))
		assert.Equal(t, "0002", entry.Str("participant"))
		assert.Equal(t, "registry", entry.Str("target"))

		tl.AssertNotContains(t, "Registry update failed")
		assert.False(t, tl.ContainsAny("Event status update failed", "Pending event query failed"))
	})

	t.Run("failed update marks pending events registration error", func(t *testing.T) {
		r, rec, ctx := newReconciler(t)
		registry, events, _, evIDs := setup(t)
		registry.FailUpdateOne = func(recordstore.Update) error { return errors.NewAPIError("registry", 403, "denied") }

		target := reconciler.Target{Name: "registry", App: registry, Strategy: reconciler.StrategyFuzzy, Events: events}
		result, err := r.Reconcile(ctx, target, []participants.Record{matched})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Stats.Failed)
		assert.Equal(t, 0, result.Stats.Updated)

		ev, _ := events.Get(evIDs[0])
		assert.Equal(t, "登録エラー", ev.String("Status2"))
		assert.Equal(t, 1, rec.Count(audit.ActionFailed))
	})

	t.Run("feed order is kept across matches and misses", func(t *testing.T) {
		r, rec, ctx := newReconciler(t)
		registry, events, _, _ := setup(t)

		target := reconciler.Target{Name: "registry", App: registry, Strategy: reconciler.StrategyFuzzy, Events: events}
		_, err := r.Reconcile(ctx, target, []participants.Record{missing, matched})
		require.NoError(t, err)

		var keys []string
		for _, e := range rec.Entries {
			if e.Action == audit.ActionNotFound || e.Action == audit.ActionUpdate {
				keys = append(keys, e.Key)
			}
		}
		assert.Equal(t, []string{"0002", "0001"}, keys)
	})

	t.Run("event update failure is counted and the stage continues", func(t *testing.T) {
		r, _, ctx := newReconciler(t)
		registry, events, _, _ := setup(t)
		events.FailUpdateOne = func(recordstore.Update) error { return errors.ErrStoreUnavailable }

		target := reconciler.Target{Name: "registry", App: registry, Strategy: reconciler.StrategyFuzzy, Events: events}
		result, err := r.Reconcile(ctx, target, []participants.Record{matched, missing})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Stats.EventsFailed)
		assert.Equal(t, 1, result.Stats.Updated)
	})

	t.Run("without an event queue only the registry is written", func(t *testing.T) {
		r, _, ctx := newReconciler(t)
		registry, events, _, _ := setup(t)

		target := reconciler.Target{Name: "registry", App: registry, Strategy: reconciler.StrategyFuzzy}
		result, err := r.Reconcile(ctx, target, []participants.Record{matched})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Stats.Updated)
		assert.Empty(t, events.Calls())
	})
}
