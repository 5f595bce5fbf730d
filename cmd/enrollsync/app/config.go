package app

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	runconfig "github.com/agentstation/enrollsync/internal/config"
	"github.com/agentstation/enrollsync/pkg/errors"
)

// ConfigName is the base name of the run configuration file.
const ConfigName = "enrollsync"

// Config holds the command-line settings. The run itself is described by
// the configuration file, loaded by LoadRun.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool

	// Config file
	ConfigFile string

	// Plan output format (yaml or json)
	Format string

	// Logging configuration
	LogLevel    string // --log-level
	EnvLogLevel string // LOG_LEVEL
	LogFormat   string
	LogOutput   string
}

// LoadConfig loads the command-line settings from the environment after
// reading .env files. Flags are applied later by UpdateFromFlags.
func LoadConfig() (*Config, error) {
	// Load .env files first so credential variables are visible to viper
	loadEnvFiles()

	return &Config{
		Format:      getEnvOrDefault("ENROLLSYNC_FORMAT", formatYAML),
		EnvLogLevel: os.Getenv("LOG_LEVEL"),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput:   getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, logLevel, configFile string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if configFile != "" {
		c.ConfigFile = configFile
	}
}

// LoadRun reads the run configuration in order of precedence:
// 1. Environment variables (ENROLLSYNC_ prefix)
// 2. Config file (--config, or enrollsync.yaml in . or $HOME)
// 3. Defaults
func (c *Config) LoadRun() (*runconfig.Run, error) {
	v := viper.New()
	if c.ConfigFile != "" {
		v.SetConfigFile(c.ConfigFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.NewConfigError("config", "cannot read "+c.describeFile(v), err)
		}
		// without a file only environment overrides remain, which
		// validation reports
	}

	return runconfig.Load(v)
}

func (c *Config) describeFile(v *viper.Viper) string {
	if used := v.ConfigFileUsed(); used != "" {
		return used
	}
	if c.ConfigFile != "" {
		return c.ConfigFile
	}
	return ConfigName + ".yaml"
}

// loadEnvFiles loads environment variables from .env files.
func loadEnvFiles() {
	// godotenv never overrides a variable that is already set, so
	// .env.local is read first to win over .env
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, envFile := range envFiles {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
