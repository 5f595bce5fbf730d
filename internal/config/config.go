// Package config describes one reconciliation run: where the feeds live,
// which remote applications are reconciled and how, and where audit, metrics
// and log output go.
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/agentstation/enrollsync/pkg/constants"
	"github.com/agentstation/enrollsync/pkg/errors"
)

// EnvPrefix prefixes environment overrides, e.g. ENROLLSYNC_BASE_URL.
const EnvPrefix = "ENROLLSYNC"

// Run is the complete run configuration.
type Run struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gte=0"`
	PageSize    int           `mapstructure:"page_size" validate:"min=1,max=500"`
	ChunkSize   int           `mapstructure:"chunk_size" validate:"min=1,max=100"`
	DryRun      bool          `mapstructure:"dry_run"`

	AuditDB     string `mapstructure:"audit_db"`
	MetricsFile string `mapstructure:"metrics_file"`
	MappingFile string `mapstructure:"mapping_file"`

	Feeds   Feeds    `mapstructure:"feeds"`
	Targets []Target `mapstructure:"targets" validate:"required,min=1,dive"`
	Events  *App     `mapstructure:"events" validate:"omitempty"`
	S3      S3       `mapstructure:"s3"`
	Log     Log      `mapstructure:"log"`
}

// Feeds locates the two flat-file exports.
type Feeds struct {
	Benefits Feed `mapstructure:"benefits"`
	Identity Feed `mapstructure:"identity"`
}

// Feed is a directory or s3:// prefix holding one export file.
type Feed struct {
	Location  string `mapstructure:"location" validate:"required"`
	Extension string `mapstructure:"extension"`
	Encoding  string `mapstructure:"encoding"`
}

// App is one remote application and its credential.
type App struct {
	AppID         string `mapstructure:"app_id" validate:"required,numeric"`
	Token         string `mapstructure:"credential"`
	CredentialEnv string `mapstructure:"credential_env"`
}

// Target is one application reconciled against the participants.
type Target struct {
	Name string `mapstructure:"name" validate:"required"`
	App  `mapstructure:",squash"`
	Join string `mapstructure:"join" validate:"required,oneof=exact fuzzy"`

	// SettleEvents lets a fuzzy target advance pending events in the
	// event queue.
	SettleEvents bool `mapstructure:"settle_events"`
}

// S3 configures bucket feed locations.
type S3 struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	PathStyle       bool   `mapstructure:"path_style"`
}

// Log names the rotated channel files.
type Log struct {
	OperationalFile string `mapstructure:"operational_file"`
	DiagnosticFile  string `mapstructure:"diagnostic_file"`
	MaxSizeMB       int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups      int    `mapstructure:"max_backups" validate:"gte=0"`
}

// SetDefaults registers default values and environment binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_timeout", constants.DefaultHTTPTimeout)
	v.SetDefault("page_size", constants.PageSize)
	v.SetDefault("chunk_size", constants.ChunkSize)
	v.SetDefault("dry_run", false)
	v.SetDefault("feeds.benefits.extension", constants.DefaultFeedExtension)
	v.SetDefault("feeds.benefits.encoding", constants.DefaultFeedEncoding)
	v.SetDefault("feeds.identity.extension", constants.DefaultFeedExtension)
	v.SetDefault("feeds.identity.encoding", constants.DefaultFeedEncoding)
	v.SetDefault("log.max_size_mb", constants.LogRotationSizeMB)
	v.SetDefault("log.max_backups", constants.LogRotationBackups)

	// keys without a default are only unmarshalled from the environment
	// when bound
	for _, key := range []string{
		"base_url", "audit_db", "metrics_file", "mapping_file",
		"s3.region", "s3.endpoint", "s3.access_key_id", "s3.secret_access_key", "s3.session_token", "s3.path_style",
		"log.operational_file", "log.diagnostic_file",
	} {
		_ = v.BindEnv(key)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load decodes and validates the run configuration held by v.
func Load(v *viper.Viper) (*Run, error) {
	SetDefaults(v)

	cfg := &Run{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.NewConfigError("config", "cannot decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structure, target names and the event queue requirement.
func (r *Run) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.NewConfigError("config", fe.Namespace()+" failed "+fe.Tag(),
				errors.NewValidationError(fe.Namespace(), fe.Value(), "failed "+fe.Tag()))
		}
		return errors.NewConfigError("config", "invalid configuration", err)
	}

	seen := make(map[string]bool, len(r.Targets))
	for _, t := range r.Targets {
		if seen[t.Name] {
			return errors.NewConfigError("targets", "duplicate target name "+t.Name,
				errors.NewValidationError("targets.name", t.Name, "must be unique"))
		}
		seen[t.Name] = true

		if t.SettleEvents && r.Events == nil {
			return errors.NewConfigError("targets", "target "+t.Name+" settles events but no events application is configured",
				errors.NewValidationError("events", nil, "required when settle_events is set"))
		}
	}
	return nil
}

// CheckCredentials resolves every credential the run needs.
func (r *Run) CheckCredentials() error {
	for _, t := range r.Targets {
		if _, err := t.Credential(); err != nil {
			return err
		}
	}
	if r.Events != nil {
		if _, err := r.Events.Credential(); err != nil {
			return err
		}
	}
	return nil
}

// Target returns the target with the given name.
func (r *Run) Target(name string) (Target, bool) {
	for _, t := range r.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}
