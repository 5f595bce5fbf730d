// Package memory provides an in-process recordstore.App. It backs dry runs
// and the engine tests, and records every call so tests can assert on the
// exact write sequence.
package memory

import (
	"context"
	"slices"
	"strconv"
	"sync"

	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// IDField is the field code the store assigns record ids to.
const IDField = recordstore.IDField

// Call is one recorded invocation.
type Call struct {
	Op   string // "query", "create", "update" or "update_one"
	Size int
	IDs  []string
}

// App is an in-memory remote application.
type App struct {
	mu      sync.Mutex
	id      string
	nextID  int
	order   []string
	records map[string]recordstore.Record
	calls   []Call

	// FailCreate, FailUpdate and FailUpdateOne, when set, are consulted
	// before each write; a non-nil result fails the call without applying it.
	FailCreate    func(call int, records []recordstore.Record) error
	FailUpdate    func(call int, updates []recordstore.Update) error
	FailUpdateOne func(update recordstore.Update) error
	FailQuery     func(filter recordstore.Filter, offset int) error
}

// New creates an empty application.
func New(id string) *App {
	return &App{
		id:      id,
		nextID:  1,
		records: make(map[string]recordstore.Record),
	}
}

// ID implements recordstore.App.
func (a *App) ID() string { return a.id }

// Seed stores records directly, assigning ids, and returns the ids in order.
// Seeding is not recorded as a call.
func (a *App) Seed(records ...recordstore.Record) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, a.insert(r))
	}
	return ids
}

// Get returns a copy of a stored record.
func (a *App) Get(id string) (recordstore.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.records[id]
	return r.Clone(), ok
}

// All returns copies of every stored record in id order.
func (a *App) All() []recordstore.Record {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]recordstore.Record, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.records[id].Clone())
	}
	return out
}

// Calls returns the recorded calls.
func (a *App) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}

// WriteCalls returns the recorded create, update and update_one calls.
func (a *App) WriteCalls() []Call {
	var out []Call
	for _, c := range a.Calls() {
		if c.Op != "query" {
			out = append(out, c)
		}
	}
	return out
}

// Query implements recordstore.App. Records are returned in id order.
func (a *App) Query(_ context.Context, filter recordstore.Filter, fields []string, offset, limit int) ([]recordstore.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, Call{Op: "query", Size: limit})
	if a.FailQuery != nil {
		if err := a.FailQuery(filter, offset); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > constants.PageSize {
		return nil, errors.NewAPIError(a.id, 400, "limit out of range")
	}

	var matched []recordstore.Record
	for _, id := range a.order {
		r := a.records[id]
		if filter.Match(r) {
			matched = append(matched, project(r, fields))
		}
	}

	if offset >= len(matched) {
		return []recordstore.Record{}, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}

// Create implements recordstore.App.
func (a *App) Create(_ context.Context, records []recordstore.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	call := a.countCalls("create")
	a.calls = append(a.calls, Call{Op: "create", Size: len(records)})
	last := len(a.calls) - 1

	if len(records) > constants.ChunkSize {
		return errors.NewAPIError(a.id, 400, "too many records")
	}
	if a.FailCreate != nil {
		if err := a.FailCreate(call, records); err != nil {
			return err
		}
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, a.insert(r))
	}
	a.calls[last].IDs = ids
	return nil
}

// Update implements recordstore.App.
func (a *App) Update(_ context.Context, updates []recordstore.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	call := a.countCalls("update")
	ids := updateIDs(updates)
	a.calls = append(a.calls, Call{Op: "update", Size: len(updates), IDs: ids})

	if len(updates) > constants.ChunkSize {
		return errors.NewAPIError(a.id, 400, "too many records")
	}
	if a.FailUpdate != nil {
		if err := a.FailUpdate(call, updates); err != nil {
			return err
		}
	}
	for _, u := range updates {
		if _, ok := a.records[u.ID]; !ok {
			return errors.NewAPIError(a.id, 404, "record "+u.ID+" not found")
		}
	}
	for _, u := range updates {
		a.apply(u)
	}
	return nil
}

// UpdateOne implements recordstore.App.
func (a *App) UpdateOne(_ context.Context, u recordstore.Update) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, Call{Op: "update_one", Size: 1, IDs: []string{u.ID}})
	if a.FailUpdateOne != nil {
		if err := a.FailUpdateOne(u); err != nil {
			return err
		}
	}
	if _, ok := a.records[u.ID]; !ok {
		return errors.NewAPIError(a.id, 404, "record "+u.ID+" not found")
	}
	a.apply(u)
	return nil
}

func (a *App) insert(r recordstore.Record) string {
	id := strconv.Itoa(a.nextID)
	a.nextID++

	stored := r.Clone()
	if stored == nil {
		stored = recordstore.Record{}
	}
	stored[IDField] = recordstore.Text(id)
	a.records[id] = withRowIDs(stored)
	a.order = append(a.order, id)
	return id
}

func (a *App) apply(u recordstore.Update) {
	stored := a.records[u.ID].Clone()
	stored.Merge(u.Record)
	stored[IDField] = recordstore.Text(u.ID)
	a.records[u.ID] = withRowIDs(stored)
}

func (a *App) countCalls(op string) int {
	n := 0
	for _, c := range a.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// withRowIDs assigns ids to new subtable rows, as the remote store does.
func withRowIDs(r recordstore.Record) recordstore.Record {
	for code, f := range r {
		rows := r.Table(code)
		if rows == nil || !isTable(f) {
			continue
		}
		changed := false
		for i := range rows {
			if rows[i].ID == "" {
				rows[i].ID = code + "-" + strconv.Itoa(i+1)
				changed = true
			}
		}
		if changed {
			r[code] = recordstore.Table(rows)
		}
	}
	return r
}

func isTable(f recordstore.Field) bool {
	return len(f.Value) > 0 && f.Value[0] == '['
}

func project(r recordstore.Record, fields []string) recordstore.Record {
	if len(fields) == 0 {
		return r.Clone()
	}
	out := make(recordstore.Record, len(fields))
	for _, code := range fields {
		if f, ok := r[code]; ok {
			out[code] = f
		}
	}
	return out
}

func updateIDs(updates []recordstore.Update) []string {
	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		ids = append(ids, u.ID)
	}
	return ids
}

var _ recordstore.App = (*App)(nil)
