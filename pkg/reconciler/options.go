package reconciler

import (
	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/fieldmap"
	"github.com/agentstation/enrollsync/pkg/metrics"
)

// Options configures a reconciler.
type options struct {
	table     *fieldmap.Table
	pageSize  int
	chunkSize int
	dryRun    bool
	recorder  audit.Recorder
	metrics   *metrics.Metrics
}

func defaultOptions() *options {
	return &options{
		table:     fieldmap.MustDefault(),
		pageSize:  constants.PageSize,
		chunkSize: constants.ChunkSize,
		recorder:  audit.LogRecorder{},
	}
}

// Option is a function that configures a Reconciler.
type Option func(*options) error

func (options *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	return options, nil
}

// newOptions returns reconciler options with default values.
func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

// WithFieldMap sets the field-mapping table.
func WithFieldMap(table *fieldmap.Table) Option {
	return func(o *options) error {
		if table == nil {
			return &errors.ValidationError{
				Field:   "table",
				Message: "cannot be nil",
			}
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

// WithChunkSize sets the batch write size.
func WithChunkSize(n int) Option {
	return func(o *options) error {
		if n <= 0 || n > constants.ChunkSize {
			return errors.NewValidationError("chunk_size", n, "must be between 1 and 100")
		}
		o.chunkSize = n
		return nil
	}
}

// WithDryRun plans writes without issuing them.
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
