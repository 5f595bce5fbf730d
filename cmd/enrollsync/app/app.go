// Package app provides the application context and dependency management
// for the enrollsync CLI. It centralizes configuration, logging and the
// construction of the reconciliation pipeline from the run configuration.
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	runconfig "github.com/agentstation/enrollsync/internal/config"
	"github.com/agentstation/enrollsync/internal/kintone"
	"github.com/agentstation/enrollsync/internal/transport"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// StoreFactory opens one configured remote application.
type StoreFactory func(run *runconfig.Run, app runconfig.App) (recordstore.App, error)

// App represents the enrollsync application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	// Configuration
	config *Config

	// Logger
	logger *zerolog.Logger

	// Remote application constructor, kintone unless replaced
	stores StoreFactory

	// Run configuration (lazy-loaded, singleton)
	mu  sync.RWMutex
	run *runconfig.Run
}

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
		stores:  KintoneStore,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config, nil)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// RunConfig returns the run configuration, loading it on first use.
func (a *App) RunConfig() (*runconfig.Run, error) {
	a.mu.RLock()
	if a.run != nil {
		run := a.run
		a.mu.RUnlock()
		return run, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if a.run != nil {
		return a.run, nil
	}

	run, err := a.config.LoadRun()
	if err != nil {
		return nil, err
	}
	a.run = run
	return run, nil
}

// Shutdown flushes and closes the rotated log files.
func (a *App) Shutdown(_ context.Context) error {
	return logging.Close()
}

// KintoneStore is the StoreFactory for the remote record store.
func KintoneStore(run *runconfig.Run, app runconfig.App) (recordstore.App, error) {
	credential, err := app.Credential()
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Timeout: run.HTTPTimeout}
	return kintone.New(run.BaseURL, app.AppID, credential, transport.WithHTTPClient(hc)), nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithRunConfig sets the run configuration instead of reading the file.
func WithRunConfig(run *runconfig.Run) Option {
	return func(a *App) error {
		if err := run.Validate(); err != nil {
			return err
		}
		a.run = run
		return nil
	}
}

// WithStoreFactory replaces how remote applications are opened (useful for testing).
func WithStoreFactory(f StoreFactory) Option {
	return func(a *App) error {
		if f == nil {
			return errors.NewValidationError("stores", nil, "cannot be nil")
		}
		a.stores = f
		return nil
	}
}
