package reconciler

import (
	"github.com/agentstation/enrollsync/pkg/fieldmap"
	"github.com/agentstation/enrollsync/pkg/participants"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// Insert is one planned record creation.
type Insert struct {
	Row    int               `json:"row" yaml:"row"`
	Key    string            `json:"key" yaml:"key"`
	Values map[string]string `json:"values" yaml:"values"`
}

// Update is one planned change to an existing record.
type Update struct {
	Row           int               `json:"row" yaml:"row"`
	Key           string            `json:"key" yaml:"key"`
	ID            string            `json:"id" yaml:"id"`
	PensionNumber string            `json:"pension_number,omitempty" yaml:"pension_number,omitempty"`
	Values        map[string]string `json:"values" yaml:"values"`
}

// Miss is a participant the fuzzy join found no record for.
type Miss struct {
	Row           int    `json:"row" yaml:"row"`
	Key           string `json:"key" yaml:"key"`
	PensionNumber string `json:"pension_number" yaml:"pension_number"`
	Employer      string `json:"employer,omitempty" yaml:"employer,omitempty"`
	KanaName      string `json:"kana_name,omitempty" yaml:"kana_name,omitempty"`
}

// WritePlan is the immutable outcome of partitioning participants against a
// target index. Row is the 1-indexed position of the participant in the
// benefits feed.
type WritePlan struct {
	Target   string   `json:"target" yaml:"target"`
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	ToInsert []Insert `json:"to_insert" yaml:"to_insert"`
	ToUpdate []Update `json:"to_update" yaml:"to_update"`
	NotFound []Miss   `json:"not_found,omitempty" yaml:"not_found,omitempty"`
}

// Records returns the planned inserts as store records.
func (p *WritePlan) Records() []recordstore.Record {
	out := make([]recordstore.Record, len(p.ToInsert))
	for i, ins := range p.ToInsert {
		out[i] = recordstore.FromValues(ins.Values)
	}
	return out
}

// Updates returns the planned updates as store updates.
func (p *WritePlan) Updates() []recordstore.Update {
	out := make([]recordstore.Update, len(p.ToUpdate))
	for i, u := range p.ToUpdate {
		out[i] = recordstore.Update{ID: u.ID, Record: recordstore.FromValues(u.Values)}
	}
	return out
}

// Index maps a join key to the ids of the remote records carrying it, in
// scan order.
type Index map[string][]string

// NewIndex keys records with key. Records with a blank key or id are left out.
func NewIndex(records []recordstore.Record, idField string, key func(recordstore.Record) string) Index {
	idx := make(Index, len(records))
	for _, r := range records {
		k, id := key(r), r.String(idField)
		if k == "" || id == "" {
			continue
		}
		idx[k] = append(idx[k], id)
	}
	return idx
}

// ExactKey reads the participant code of a ledger record.
func ExactKey(table *fieldmap.Table) func(recordstore.Record) string {
	return func(r recordstore.Record) string {
		return r.String(table.Ledger.ParticipantCode)
	}
}

// FuzzyKey builds the registry match key: pension number, the two kana name
// parts joined by the configured separator, and birth date.
func FuzzyKey(table *fieldmap.Table) func(recordstore.Record) string {
	reg := table.Registry
	return func(r recordstore.Record) string {
		if r.String(reg.PensionNumber) == "" {
			return ""
		}
		name := r.String(reg.FamilyKana) + table.Values.NameSeparator + r.String(reg.GivenKana)
		return participants.FuzzyKey(r.String(reg.PensionNumber), name, r.String(reg.BirthDate))
	}
}

// PlanExact partitions participants by participant code. A participant whose
// code is indexed updates every record carrying it; any other participant is
// inserted.
func PlanExact(target string, records []participants.Record, index Index, table *fieldmap.Table) (*WritePlan, error) {
	plan := &WritePlan{
		Target:   target,
		Strategy: StrategyExact,
		ToInsert: []Insert{},
		ToUpdate: []Update{},
	}
	for i, rec := range records {
		values, err := rec.Values(table.Ledger.Payload, table.Values)
		if err != nil {
			return nil, err
		}
		ids := index[rec.Code()]
		if len(ids) == 0 {
			plan.ToInsert = append(plan.ToInsert, Insert{Row: i + 1, Key: rec.Code(), Values: values})
			continue
		}
		for _, id := range ids {
			plan.ToUpdate = append(plan.ToUpdate, Update{
				Row:           i + 1,
				Key:           rec.Code(),
				ID:            id,
				PensionNumber: rec.PensionNumber(),
				Values:        values,
			})
		}
	}
	return plan, nil
}

// PlanFuzzy partitions participants by fuzzy key. The first indexed record
// receives the membership flag; participants without a match are listed in
// NotFound and never written.
func PlanFuzzy(target string, records []participants.Record, index Index, table *fieldmap.Table) *WritePlan {
	plan := &WritePlan{
		Target:   target,
		Strategy: StrategyFuzzy,
		ToInsert: []Insert{},
		ToUpdate: []Update{},
		NotFound: []Miss{},
	}
	for i, rec := range records {
		ids := index[rec.FuzzyKey()]
		if len(ids) == 0 {
			plan.NotFound = append(plan.NotFound, Miss{
				Row:           i + 1,
				Key:           rec.Code(),
				PensionNumber: rec.PensionNumber(),
				Employer:      rec.Benefits.EmployerName,
				KanaName:      rec.Identity.KanaName,
			})
			continue
		}
		plan.ToUpdate = append(plan.ToUpdate, Update{
			Row:           i + 1,
			Key:           rec.Code(),
			ID:            ids[0],
			PensionNumber: rec.PensionNumber(),
			Values: map[string]string{
				table.Registry.Membership: table.Values.Membership(rec.MembershipActive),
			},
		})
	}
	return plan
}
