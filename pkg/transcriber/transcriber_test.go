package transcriber_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/fieldmap"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/recordstore"
	"github.com/agentstation/enrollsync/pkg/recordstore/memory"
	"github.com/agentstation/enrollsync/pkg/transcriber"
)

func ledgerRecord(pension, current string, history ...recordstore.TableRow) recordstore.Record {
	r := recordstore.FromValues(map[string]string{
		"基礎年金番号":  pension,
		"現在の拠出額":  current,
		"差異フラグ":   "",
		"本人拠出額_閲覧用": "10000",
		"法人拠出額_閲覧用": "15000",
		"合計額_閲覧用":  "25000",
	})
	r["手続履歴"] = recordstore.Table(history)
	return r
}

func historyRow(at, kind string) recordstore.TableRow {
	return recordstore.TableRow{Value: recordstore.FromValues(map[string]string{"連絡日時": at, "手続内容": kind})}
}

func queueEvent(pension, kind, total string) recordstore.Record {
	return recordstore.FromValues(map[string]string{
		"基礎年金番号":   pension,
		"_401k種別":  kind,
		"作成日時":     "2026-04-01T09:00:00Z",
		"会社レコード番号": "C-77",
		"本人拠出額_転記":  "12000",
		"法人拠出額_転記":  "18000",
		"合計額_転記":    total,
		"プランの種類":   "A",
		"Status":     "未転記",
		"Status2":    "",
	})
}

func newTranscriber(t *testing.T, opts ...transcriber.Option) (*transcriber.Transcriber, *audit.Memory, context.Context) {
	t.Helper()
	rec := &audit.Memory{}
	tr, err := transcriber.New(append([]transcriber.Option{transcriber.WithRecorder(rec)}, opts...)...)
	require.NoError(t, err)
	return tr, rec, logging.WithLogger(context.Background(), logging.NewNopLogger())
}

func TestAmountsEqual(t *testing.T) {
	assert.True(t, transcriber.AmountsEqual("25000", "25000"))
	assert.True(t, transcriber.AmountsEqual("25,000", " 25000 "))
	assert.True(t, transcriber.AmountsEqual("025000", "25000"))
	assert.False(t, transcriber.AmountsEqual("30000", "25000"))
	assert.True(t, transcriber.AmountsEqual("", ""))
	assert.False(t, transcriber.AmountsEqual("", "0"))
	assert.True(t, transcriber.AmountsEqual("n/a", "n/a"))
}

func TestBuild(t *testing.T) {
	table := fieldmap.MustDefault()
	ledger := ledgerRecord("1234567890", "25000", historyRow("2025-01-01T00:00:00Z", "加入"))

	t.Run("unequal total sets the flag and leaves display fields", func(t *testing.T) {
		update, diff := transcriber.Build(table, queueEvent("1234-567890", "掛金変更", "30000"), ledger)
		assert.Equal(t, "有", diff)
		assert.Equal(t, "有", update.String("差異フラグ"))
		assert.NotContains(t, update, "合計額_閲覧用")
		assert.NotContains(t, update, "本人拠出額_閲覧用")
		assert.Equal(t, "30000", update.String("合計額"))
		assert.Equal(t, "A", update.String("プランの種類"))
		assert.Equal(t, "2026-04-01T09:00:00Z", update.String("連絡日時_掛金"))
		assert.Equal(t, "C-77", update.String("会社レコード番号"))

		rows := update.Table("手続履歴")
		require.Len(t, rows, 2)
		assert.Equal(t, "加入", rows[0].Value.String("手続内容"))
		assert.Equal(t, "掛金変更", rows[1].Value.String("手続内容"))
		assert.Equal(t, "2026-04-01T09:00:00Z", rows[1].Value.String("連絡日時"))
	})

	t.Run("equal total clears the flag and mirrors display fields", func(t *testing.T) {
		update, diff := transcriber.Build(table, queueEvent("1234567890", "加入", "25000"), ledger)
		assert.Equal(t, "無", diff)
		assert.Equal(t, "12000", update.String("本人拠出額_閲覧用"))
		assert.Equal(t, "18000", update.String("法人拠出額_閲覧用"))
		assert.Equal(t, "25000", update.String("合計額_閲覧用"))
	})

	t.Run("other event types only append history", func(t *testing.T) {
		update, diff := transcriber.Build(table, queueEvent("1234567890", "住所変更", "30000"), ledger)
		assert.Empty(t, diff)
		assert.Len(t, update, 2)
		assert.Len(t, update.Table("手続履歴"), 2)
	})
}

func TestRun(t *testing.T) {
	t.Run("contribution change with a differing total", func(t *testing.T) {
		tr, rec, ctx := newTranscriber(t)
		ledger := memory.New("ledger")
		ledgerIDs := ledger.Seed(ledgerRecord("1234567890", "25000"))
		events := memory.New("events")
		eventIDs := events.Seed(queueEvent("1234-567890", "掛金変更", "30000"))

		result, err := tr.Run(ctx, ledger, events)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Transcribed)
		assert.Equal(t, 1, result.DiffPresent)

		stored, _ := ledger.Get(ledgerIDs[0])
		assert.Equal(t, "有", stored.String("差異フラグ"))
		assert.Equal(t, "25000", stored.String("合計額_閲覧用"))
		assert.Len(t, stored.Table("手続履歴"), 1)

		ev, _ := events.Get(eventIDs[0])
		assert.Equal(t, "転記済", ev.String("Status"))
		assert.Equal(t, 1, rec.Count(audit.ActionTranscribed))
	})

	t.Run("ledger update failure leaves the event untranscribed and continues", func(t *testing.T) {
		tr, rec, ctx := newTranscriber(t)
		ledger := memory.New("ledger")
		ledger.Seed(ledgerRecord("1111111111", "1"), ledgerRecord("2222222222", "2"))
		ledger.FailUpdateOne = func(u recordstore.Update) error {
			if u.ID == "1" {
				return errors.NewAPIError("ledger", 520, "unavailable")
			}
			return nil
		}
		events := memory.New("events")
		eventIDs := events.Seed(
			queueEvent("1111-111111", "加入", "1"),
			queueEvent("2222-222222", "加入", "2"),
		)

		result, err := tr.Run(ctx, ledger, events)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, 1, result.Transcribed)

		first, _ := events.Get(eventIDs[0])
		assert.Equal(t, "未転記", first.String("Status"))
		second, _ := events.Get(eventIDs[1])
		assert.Equal(t, "転記済", second.String("Status"))
		assert.Equal(t, 1, rec.Count(audit.ActionFailed))
	})

	t.Run("event without a ledger record is skipped", func(t *testing.T) {
		tr, rec, ctx := newTranscriber(t)
		ledger := memory.New("ledger")
		events := memory.New("events")
		eventIDs := events.Seed(queueEvent("9999-999999", "加入", "1"))

		result, err := tr.Run(ctx, ledger, events)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Skipped)
		assert.Empty(t, ledger.WriteCalls())
		assert.Empty(t, events.WriteCalls())

		ev, _ := events.Get(eventIDs[0])
		assert.Equal(t, "未転記", ev.String("Status"))
		assert.Equal(t, 1, rec.Count(audit.ActionSkipped))
	})

	t.Run("two events for one participant both land in history", func(t *testing.T) {
		tr, _, ctx := newTranscriber(t)
		ledger := memory.New("ledger")
		ids := ledger.Seed(ledgerRecord("1234567890", "25000"))
		events := memory.New("events")
		first := queueEvent("1234-567890", "加入", "25000")
		second := queueEvent("1234-567890", "住所変更", "")
		events.Seed(first, second)

		result, err := tr.Run(ctx, ledger, events)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Transcribed)

		stored, _ := ledger.Get(ids[0])
		rows := stored.Table("手続履歴")
		require.Len(t, rows, 2)
		assert.Equal(t, "加入", rows[0].Value.String("手続内容"))
		assert.Equal(t, "住所変更", rows[1].Value.String("手続内容"))
	})

	t.Run("already transcribed events are not read", func(t *testing.T) {
		tr, _, ctx := newTranscriber(t)
		ledger := memory.New("ledger")
		ledger.Seed(ledgerRecord("1234567890", "25000"))
		events := memory.New("events")
		done := queueEvent("1234-567890", "加入", "25000")
		done.Set("Status", "転記済")
		events.Seed(done)

		result, err := tr.Run(ctx, ledger, events)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Events)
		assert.Empty(t, ledger.Calls())
	})

	t.Run("dry run builds without writing", func(t *testing.T) {
		tr, rec, ctx := newTranscriber(t, transcriber.WithDryRun(true))
		ledger := memory.New("ledger")
		ledger.Seed(ledgerRecord("1234567890", "25000"))
		events := memory.New("events")
		events.Seed(queueEvent("1234-567890", "掛金変更", "30000"))

		result, err := tr.Run(ctx, ledger, events)
		require.NoError(t, err)
		require.Len(t, result.Transcriptions, 1)
		assert.Equal(t, "有", result.Transcriptions[0].DiffFlag)
		assert.Equal(t, "1", result.Transcriptions[0].LedgerID)
		assert.Empty(t, ledger.WriteCalls())
		assert.Empty(t, events.WriteCalls())
		require.Len(t, rec.Entries, 1)
		assert.True(t, rec.Entries[0].DryRun)
	})

	t.Run("queue scan failure fails the stage", func(t *testing.T) {
		tr, _, ctx := newTranscriber(t)
		events := memory.New("events")
		events.FailQuery = func(recordstore.Filter, int) error { return errors.ErrStoreUnavailable }

		_, err := tr.Run(ctx, memory.New("ledger"), events)
		assert.True(t, errors.IsStoreUnavailable(err))
	})
}
