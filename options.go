package enrollsync

import (
	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/feeds"
	"github.com/agentstation/enrollsync/pkg/fieldmap"
	"github.com/agentstation/enrollsync/pkg/metrics"
	"github.com/agentstation/enrollsync/pkg/reconciler"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// Option is a function that configures a Syncer
type Option func(*config) error

// Target is one remote application reconciled against the participants.
type Target struct {
	Name     string
	App      recordstore.App
	Strategy reconciler.Strategy

	// SettleEvents lets a fuzzy target advance pending events in the
	// event queue.
	SettleEvents bool
}

// WithBenefitsFeed sets where the benefits export is read from
func WithBenefitsFeed(spec feeds.Spec) Option {
	return func(c *config) error {
		if spec.Source == nil {
			return errors.NewValidationError("benefits", nil, "feed source is required")
		}
		c.benefits = spec
		return nil
	}
}

// WithIdentityFeed sets where the identity export is read from
func WithIdentityFeed(spec feeds.Spec) Option {
	return func(c *config) error {
		if spec.Source == nil {
			return errors.NewValidationError("identity", nil, "feed source is required")
		}
		c.identity = spec
		return nil
	}
}

// WithTarget adds a target. Targets of the same strategy run in the order
// they were added.
func WithTarget(t Target) Option {
	return func(c *config) error {
		if t.Name == "" || t.App == nil {
			return errors.NewValidationError("target", t.Name, "name and application are required")
		}
		if _, err := reconciler.ParseStrategy(string(t.Strategy)); err != nil {
			return err
		}
		for _, existing := range c.targets {
			if existing.Name == t.Name {
				return errors.NewValidationError("target", t.Name, "duplicate target name")
			}
		}
		c.targets = append(c.targets, t)
		return nil
	}
}

// WithEvents sets the procedure event queue. Without it the transcribe
// stage is skipped.
func WithEvents(app recordstore.App) Option {
	return func(c *config) error {
		c.events = app
		return nil
	}
}

// WithLedger names the exact target events are transcribed onto. It defaults
// to the first exact target.
func WithLedger(name string) Option {
	return func(c *config) error {
		c.ledger = name
		return nil
	}
}

// WithFieldMap sets the field-mapping table
func WithFieldMap(table *fieldmap.Table) Option {
	return func(c *config) error {
		if table == nil {
			return errors.NewValidationError("table", nil, "cannot be nil")
		}
		c.table = table
		return nil
	}
}

// WithDryRun plans every write without issuing it
func WithDryRun(enabled bool) Option {
	return func(c *config) error {
		c.dryRun = enabled
		return nil
	}
}

// WithPageSize sets the query page size
func WithPageSize(n int) Option {
	return func(c *config) error {
		if n <= 0 || n > constants.PageSize {
			return errors.NewValidationError("page_size", n, "must be between 1 and 500")
		}
		c.pageSize = n
		return nil
	}
}

// WithChunkSize sets the batch write size
func WithChunkSize(n int) Option {
	return func(c *config) error {
		if n <= 0 || n > constants.ChunkSize {
			return errors.NewValidationError("chunk_size", n, "must be between 1 and 100")
		}
		c.chunkSize = n
		return nil
	}
}

// WithRecorder sets where audit entries go
func WithRecorder(rec audit.Recorder) Option {
	return func(c *config) error {
		c.recorder = rec
		return nil
	}
}

// WithMetrics sets the run counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) error {
		c.metrics = m
		return nil
	}
}

// WithRunID fixes the run id instead of generating one
func WithRunID(id string) Option {
	return func(c *config) error {
		c.runID = id
		return nil
	}
}
