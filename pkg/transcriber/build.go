package transcriber

import (
	"strconv"
	"strings"

	"github.com/agentstation/enrollsync/pkg/fieldmap"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// Build derives the ledger update for one event. The ledger history keeps
// every existing row in order and gains one row for the event. Enrollment
// and contribution-change events also carry amounts, plan type and the
// contribution contact time, and set the diff flag. The returned diff flag is
// empty for other event types.
func Build(table *fieldmap.Table, event, ledger recordstore.Record) (recordstore.Record, string) {
	lf, ef, values := table.Ledger, table.Events, table.Values

	history := ledger.Table(lf.History)
	history = append(history, recordstore.TableRow{
		Value: recordstore.FromValues(map[string]string{
			lf.HistoryTimestamp: event.String(ef.CreatedAt),
			lf.HistoryType:      event.String(ef.Type),
		}),
	})

	update := recordstore.Record{
		lf.CompanyRecordNo: recordstore.Text(event.String(ef.CompanyRecordNo)),
		lf.History:         recordstore.Table(history),
	}

	if !values.IsContributionEvent(event.String(ef.Type)) {
		return update, ""
	}

	personal := event.String(ef.PersonalAmount)
	corporate := event.String(ef.CorporateAmount)
	total := event.String(ef.TotalAmount)

	update.Set(lf.PersonalAmount, personal)
	update.Set(lf.CorporateAmount, corporate)
	update.Set(lf.TotalAmount, total)
	update.Set(lf.PlanType, event.String(ef.PlanType))
	update.Set(lf.ContributionContactAt, event.String(ef.CreatedAt))

	if AmountsEqual(ledger.String(lf.CurrentContribution), total) {
		update.Set(lf.DiffFlag, values.DiffAbsent)
		update.Set(lf.PersonalDisplay, personal)
		update.Set(lf.CorporateDisplay, corporate)
		update.Set(lf.TotalDisplay, total)
		return update, values.DiffAbsent
	}
	update.Set(lf.DiffFlag, values.DiffPresent)
	return update, values.DiffPresent
}

// AmountsEqual compares two monetary values. Spaces and thousands separators
// are ignored; values that do not parse as integers are compared as text.
func AmountsEqual(a, b string) bool {
	a, b = cleanAmount(a), cleanAmount(b)
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return x == y
	}
	return a == b
}

var amountNoise = strings.NewReplacer(",", "", " ", "", "　", "", "，", "")

func cleanAmount(s string) string {
	return amountNoise.Replace(strings.TrimSpace(s))
}
