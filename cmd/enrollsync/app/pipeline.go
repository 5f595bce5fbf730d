package app

import (
	"context"

	"github.com/agentstation/enrollsync"
	runconfig "github.com/agentstation/enrollsync/internal/config"
	"github.com/agentstation/enrollsync/internal/s3feed"
	"github.com/agentstation/enrollsync/pkg/audit"
	"github.com/agentstation/enrollsync/pkg/feeds"
	"github.com/agentstation/enrollsync/pkg/fieldmap"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/metrics"
	"github.com/agentstation/enrollsync/pkg/reconciler"
)

// pipeline is one configured run and the resources it holds open.
type pipeline struct {
	syncer      enrollsync.Syncer
	metrics     *metrics.Metrics
	metricsFile string
	ledger      *audit.SQLiteRecorder
}

// newPipeline builds a Syncer from the run configuration.
func (a *App) newPipeline(ctx context.Context, run *runconfig.Run) (p *pipeline, err error) {
	if err := run.CheckCredentials(); err != nil {
		return nil, err
	}

	table, err := loadFieldMap(run.MappingFile)
	if err != nil {
		return nil, err
	}
	benefits, err := feedSpec(ctx, run, run.Feeds.Benefits)
	if err != nil {
		return nil, err
	}
	identity, err := feedSpec(ctx, run, run.Feeds.Identity)
	if err != nil {
		return nil, err
	}

	var ledger *audit.SQLiteRecorder
	var recorder audit.Recorder = audit.LogRecorder{}
	if run.AuditDB != "" {
		if ledger, err = audit.OpenSQLite(run.AuditDB); err != nil {
			return nil, err
		}
		recorder = audit.Multi{audit.LogRecorder{}, ledger}
		defer func() {
			if err != nil {
				_ = ledger.Close()
			}
		}()
	}
	p = &pipeline{metrics: metrics.New(), metricsFile: run.MetricsFile, ledger: ledger}

	opts := []enrollsync.Option{
		enrollsync.WithBenefitsFeed(benefits),
		enrollsync.WithIdentityFeed(identity),
		enrollsync.WithFieldMap(table),
		enrollsync.WithDryRun(run.DryRun),
		enrollsync.WithPageSize(run.PageSize),
		enrollsync.WithChunkSize(run.ChunkSize),
		enrollsync.WithRecorder(recorder),
		enrollsync.WithMetrics(p.metrics),
	}
	for _, t := range run.Targets {
		store, err := a.stores(run, t.App)
		if err != nil {
			return nil, err
		}
		strategy, err := reconciler.ParseStrategy(t.Join)
		if err != nil {
			return nil, err
		}
		opts = append(opts, enrollsync.WithTarget(enrollsync.Target{
			Name:         t.Name,
			App:          store,
			Strategy:     strategy,
			SettleEvents: t.SettleEvents,
		}))
	}
	if run.Events != nil {
		store, err := a.stores(run, *run.Events)
		if err != nil {
			return nil, err
		}
		opts = append(opts, enrollsync.WithEvents(store))
	}

	p.syncer, err = enrollsync.New(opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// close writes the metrics textfile and closes the audit ledger. Failures
// are logged; the run outcome is already decided.
func (p *pipeline) close(ctx context.Context) {
	logger := logging.FromContext(ctx)
	if p.metricsFile != "" {
		if err := p.metrics.WriteTextfile(p.metricsFile); err != nil {
			logger.Warn().Err(err).Str("path", p.metricsFile).Msg("Metrics not written")
		}
	}
	if p.ledger != nil {
		if err := p.ledger.Close(); err != nil {
			logger.Warn().Err(err).Msg("Audit ledger not closed cleanly")
		}
	}
}

func loadFieldMap(path string) (*fieldmap.Table, error) {
	if path == "" {
		return fieldmap.Default()
	}
	return fieldmap.Load(path)
}

// feedSpec picks the bucket or directory source for a feed location.
func feedSpec(ctx context.Context, run *runconfig.Run, feed runconfig.Feed) (feeds.Spec, error) {
	spec := feeds.Spec{Extension: feed.Extension, Encoding: feed.Encoding}
	if !s3feed.IsLocation(feed.Location) {
		spec.Source = feeds.Dir(feed.Location)
		return spec, nil
	}

	src, err := s3feed.New(ctx, feed.Location, s3feed.Config{
		Region:          run.S3.Region,
		Endpoint:        run.S3.Endpoint,
		AccessKeyID:     run.S3.AccessKeyID,
		SecretAccessKey: run.S3.SecretAccessKey,
		SessionToken:    run.S3.SessionToken,
		PathStyle:       run.S3.PathStyle,
	})
	if err != nil {
		return feeds.Spec{}, err
	}
	spec.Source = src
	return spec, nil
}
