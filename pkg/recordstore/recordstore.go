// Package recordstore defines the remote record store the reconciliation
// engines write to, plus the paging and chunking loops shared by every
// implementation.
//
// An App is bound to one remote application and one credential. Every call
// is blocking and issued strictly in sequence by its callers.
package recordstore

import (
	"context"
	"slices"

	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
)

// App is one remote application.
type App interface {
	// ID identifies the application in logs and errors.
	ID() string

	// Query returns at most limit records matching filter in ascending id
	// order, skipping offset records. Only the named fields are returned;
	// nil fields means all.
	Query(ctx context.Context, filter Filter, fields []string, offset, limit int) ([]Record, error)

	// Create inserts a batch of at most constants.ChunkSize records.
	Create(ctx context.Context, records []Record) error

	// Update changes a batch of at most constants.ChunkSize records.
	Update(ctx context.Context, updates []Update) error

	// UpdateOne changes a single record.
	UpdateOne(ctx context.Context, update Update) error
}

// IDField is the field code of the record id the store assigns.
const IDField = "$id"

// ScanAll pages through every record matching filter. Each page asks for
// records past the last id seen, so the scan is not bound by the store's
// offset ceiling. Paging stops at the first page shorter than pageSize.
func ScanAll(ctx context.Context, app App, filter Filter, fields []string, pageSize int) ([]Record, error) {
	if pageSize <= 0 {
		pageSize = constants.PageSize
	}
	if fields != nil && !slices.Contains(fields, IDField) {
		fields = append(slices.Clone(fields), IDField)
	}

	logger := logging.FromContext(ctx)

	var all []Record
	last := ""
	for {
		pageFilter := filter
		if last != "" {
			pageFilter = append(slices.Clone(filter), Gt(IDField, last))
		}

		page, err := app.Query(ctx, pageFilter, fields, 0, pageSize)
		if err != nil {
			return nil, errors.WrapResource("scan", "app", app.ID(), err)
		}
		all = append(all, page...)

		logger.Debug().
			Str("app", app.ID()).
			Str("after_id", last).
			Int("page", len(page)).
			Msg("Scanned page")

		if len(page) < pageSize {
			return all, nil
		}
		next := page[len(page)-1].String(IDField)
		if next == "" || next == last {
			return nil, errors.NewResourceError("scan", "app", app.ID(),
				errors.NewValidationError(IDField, next, "page did not advance the record id"))
		}
		last = next
	}
}

// Chunks splits items into consecutive slices of at most size elements.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = constants.ChunkSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// CreateAll inserts records in chunks, in order. The first failed chunk stops
// the loop and is returned as a *errors.ChunkError; chunks already written
// stay written. It returns the number of records created.
func CreateAll(ctx context.Context, app App, records []Record, size int) (int, error) {
	done := 0
	for _, chunk := range Chunks(records, size) {
		if err := app.Create(ctx, chunk); err != nil {
			return done, errors.NewChunkError("create", app.ID(), done, len(chunk), err)
		}
		done += len(chunk)
	}
	return done, nil
}

// UpdateAll updates records in chunks, in order, with the same failure rule as
// CreateAll. It returns the number of records updated.
func UpdateAll(ctx context.Context, app App, updates []Update, size int) (int, error) {
	done := 0
	for _, chunk := range Chunks(updates, size) {
		if err := app.Update(ctx, chunk); err != nil {
			return done, errors.NewChunkError("update", app.ID(), done, len(chunk), err)
		}
		done += len(chunk)
	}
	return done, nil
}
