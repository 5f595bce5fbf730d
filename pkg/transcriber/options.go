package transcriber

import (
	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/fieldmap"
	"github.com/agentstation/enrollsync/pkg/metrics"
)

type options struct {
	table    *fieldmap.Table
	pageSize int
	dryRun   bool
	recorder audit.Recorder
	metrics  *metrics.Metrics
}

// Option is a function that configures a Transcriber.
type Option func(*options) error

func defaultOptions() *options {
	return &options{
		table:    fieldmap.MustDefault(),
		pageSize: constants.PageSize,
		recorder: audit.LogRecorder{},
	}
}

// WithFieldMap sets the field-mapping table.
func WithFieldMap(table *fieldmap.Table) Option {
	return func(o *options) error {
		if table == nil {
			return errors.NewValidationError("table", nil, "cannot be nil")
		}
		o.table = table
		return nil
	}
}

// WithPageSize sets the number of records requested per query page.
func WithPageSize(n int) Option {
	return func(o *options) error {
		if n <= 0 || n > constants.PageSize {
			return errors.NewValidationError("page_size", n, "must be between 1 and 500")
		}
		o.pageSize = n
		return nil
	}
}

// WithDryRun builds transcriptions without writing them.
func WithDryRun(enabled bool) Option {
	return func(o *options) error {
		o.dryRun = enabled
		return nil
	}
}

// WithRecorder sets where audit entries go. Nil disables auditing.
func WithRecorder(rec audit.Recorder) Option {
	return func(o *options) error {
		if rec == nil {
			rec = audit.Nop{}
		}
		o.recorder = rec
		return nil
	}
}

// WithMetrics sets the run counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}
