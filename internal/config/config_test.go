package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/enrollsync/pkg/errors"
)

const sampleConfig = `
base_url: https://example.cybozu.com
http_timeout: 45s
feeds:
  benefits:
    location: /data/benefits
  identity:
    location: s3://exports/identity
    encoding: UTF-8
targets:
  - name: ledger
    app_id: "3759"
    credential_env: LEDGER_TOKEN
    join: exact
  - name: registry
    app_id: "3744"
    credential: inline-token
    join: fuzzy
    settle_events: true
events:
  app_id: "3777"
  credential_env: EVENTS_TOKEN
audit_db: /var/lib/enrollsync/audit.db
log:
  operational_file: /var/log/enrollsync/operational.log
`

func load(t *testing.T, content string) (*Run, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enrollsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return Load(v)
}

func TestLoad(t *testing.T) {
	cfg, err := load(t, sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, "https://example.cybozu.com", cfg.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 500, cfg.PageSize)
	assert.Equal(t, 100, cfg.ChunkSize)

	assert.Equal(t, ".txt", cfg.Feeds.Benefits.Extension)
	assert.Equal(t, "Shift_JIS", cfg.Feeds.Benefits.Encoding)
	assert.Equal(t, "UTF-8", cfg.Feeds.Identity.Encoding)

	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, "3759", cfg.Targets[0].AppID)
	assert.Equal(t, "LEDGER_TOKEN", cfg.Targets[0].CredentialEnv)
	assert.Equal(t, "fuzzy", cfg.Targets[1].Join)
	assert.True(t, cfg.Targets[1].SettleEvents)
	require.NotNil(t, cfg.Events)
	assert.Equal(t, "3777", cfg.Events.AppID)

	assert.Equal(t, "/var/log/enrollsync/operational.log", cfg.Log.OperationalFile)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)

	target, ok := cfg.Target("registry")
	assert.True(t, ok)
	assert.Equal(t, "3744", target.AppID)
	_, ok = cfg.Target("missing")
	assert.False(t, ok)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ENROLLSYNC_PAGE_SIZE", "200")
	t.Setenv("ENROLLSYNC_DRY_RUN", "true")
	t.Setenv("ENROLLSYNC_BASE_URL", "https://staging.cybozu.com")
	t.Setenv("ENROLLSYNC_AUDIT_DB", "/tmp/audit.db")

	cfg, err := load(t, sampleConfig)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.PageSize)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "https://staging.cybozu.com", cfg.BaseURL)
	assert.Equal(t, "/tmp/audit.db", cfg.AuditDB)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "no targets",
			content: `
base_url: https://example.cybozu.com
feeds: {benefits: {location: a}, identity: {location: b}}
`,
		},
		{
			name: "unknown join",
			content: `
base_url: https://example.cybozu.com
feeds: {benefits: {location: a}, identity: {location: b}}
targets: [{name: t, app_id: "1", credential: x, join: nearest}]
`,
		},
		{
			name: "non numeric app id",
			content: `
base_url: https://example.cybozu.com
feeds: {benefits: {location: a}, identity: {location: b}}
targets: [{name: t, app_id: abc, credential: x, join: exact}]
`,
		},
		{
			name: "duplicate target",
			content: `
base_url: https://example.cybozu.com
feeds: {benefits: {location: a}, identity: {location: b}}
targets:
  - {name: t, app_id: "1", credential: x, join: exact}
  - {name: t, app_id: "2", credential: x, join: exact}
`,
		},
		{
			name: "settle events without queue",
			content: `
base_url: https://example.cybozu.com
feeds: {benefits: {location: a}, identity: {location: b}}
targets: [{name: t, app_id: "1", credential: x, join: fuzzy, settle_events: true}]
`,
		},
		{
			name: "missing feed location",
			content: `
base_url: https://example.cybozu.com
feeds: {benefits: {location: a}}
targets: [{name: t, app_id: "1", credential: x, join: exact}]
`,
		},
		{
			name: "page size above protocol limit",
			content: `
base_url: https://example.cybozu.com
page_size: 501
feeds: {benefits: {location: a}, identity: {location: b}}
targets: [{name: t, app_id: "1", credential: x, join: exact}]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.content)
			require.Error(t, err)
			var cfgErr *errors.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestCredential(t *testing.T) {
	t.Run("inline", func(t *testing.T) {
		token, err := App{AppID: "1", Token: "abc", CredentialEnv: "IGNORED"}.Credential()
		require.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("ENROLLSYNC_TEST_TOKEN", "from-env")
		app := App{AppID: "1", CredentialEnv: "ENROLLSYNC_TEST_TOKEN"}
		token, err := app.Credential()
		require.NoError(t, err)
		assert.Equal(t, "from-env", token)
		assert.True(t, app.CredentialConfigured())
	})

	t.Run("unset variable", func(t *testing.T) {
		_, err := App{AppID: "1", CredentialEnv: "ENROLLSYNC_TEST_UNSET"}.Credential()
		assert.ErrorIs(t, err, errors.ErrCredentialRequired)
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := App{AppID: "1"}.Credential()
		assert.ErrorIs(t, err, errors.ErrCredentialRequired)
	})
}

func TestCheckCredentials(t *testing.T) {
	cfg, err := load(t, sampleConfig)
	require.NoError(t, err)

	assert.ErrorIs(t, cfg.CheckCredentials(), errors.ErrCredentialRequired)

	t.Setenv("LEDGER_TOKEN", "l")
	t.Setenv("EVENTS_TOKEN", "e")
	assert.NoError(t, cfg.CheckCredentials())
}
