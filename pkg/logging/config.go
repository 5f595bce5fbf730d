package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/agentstation/enrollsync/pkg/constants"
)

// Config holds logger configuration options
type Config struct {
	// Level is the minimum log level for the primary output
	Level string

	// Format is the output format (json, console, pretty, auto)
	Format string

	// Output is where to write logs (stderr, stdout, discard, or file path)
	Output string

	// TimeFormat for timestamps (kitchen, rfc3339, unix, etc.)
	TimeFormat string

	// NoColor disables color output in console mode
	NoColor bool

	// AddCaller includes file:line in log output
	AddCaller bool

	// OperationalFile receives info and above as JSON lines. Empty disables it.
	OperationalFile string

	// DiagnosticFile receives debug and above, including full error payloads.
	// Empty disables it.
	DiagnosticFile string

	// MaxSizeMB is the rotation threshold for the channel files
	MaxSizeMB int

	// MaxBackups is the number of rotated channel files to keep
	MaxBackups int

	// Fields are default fields to include in all logs
	Fields map[string]any
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "auto", // auto-detect based on terminal
		Output:     "stderr",
		TimeFormat: "kitchen",
		NoColor:    os.Getenv("NO_COLOR") != "",
		AddCaller:  false,
		MaxSizeMB:  constants.LogRotationSizeMB,
		MaxBackups: constants.LogRotationBackups,
		Fields:     make(map[string]any),
	}
}

// channel files opened by NewLoggerFromConfig, closed by Close
var (
	filesMu   sync.Mutex
	openFiles []io.Closer
)

// NewLoggerFromConfig creates a new logger from configuration
func NewLoggerFromConfig(cfg *Config) zerolog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := parseLevel(cfg.Level)

	// The diagnostic channel wants debug events even when the primary
	// output is quieter, so the logger itself runs at the lowest level
	// any sink needs and each sink filters for itself.
	loggerLevel := level
	if cfg.DiagnosticFile != "" && loggerLevel > zerolog.DebugLevel {
		loggerLevel = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(loggerLevel)

	writer := buildWriter(cfg, level)

	logger := zerolog.New(writer).
		Level(loggerLevel).
		With().
		Timestamp().
		Logger()

	// Add caller if requested or in debug mode
	if cfg.AddCaller || level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}

	if len(cfg.Fields) > 0 {
		ctx := logger.With()
		for k, v := range cfg.Fields {
			ctx = addField(ctx, k, v)
		}
		logger = ctx.Logger()
	}

	return logger
}

// Configure updates the default logger with the given configuration
func Configure(cfg *Config) {
	logger := NewLoggerFromConfig(cfg)
	SetDefault(logger)
}

// ConfigureFromEnv configures the logger from environment variables
func ConfigureFromEnv() {
	cfg := &Config{
		Level:           getEnvOrDefault("LOG_LEVEL", "info"),
		Format:          getEnvOrDefault("LOG_FORMAT", "auto"),
		Output:          getEnvOrDefault("LOG_OUTPUT", "stderr"),
		TimeFormat:      getEnvOrDefault("LOG_TIME_FORMAT", "kitchen"),
		NoColor:         os.Getenv("NO_COLOR") != "",
		AddCaller:       os.Getenv("LOG_CALLER") == "true",
		OperationalFile: os.Getenv("LOG_OPERATIONAL_FILE"),
		DiagnosticFile:  os.Getenv("LOG_DIAGNOSTIC_FILE"),
		MaxSizeMB:       constants.LogRotationSizeMB,
		MaxBackups:      constants.LogRotationBackups,
		Fields:          parseFields(os.Getenv("LOG_FIELDS")),
	}
	Configure(cfg)
}

// Close flushes and closes the operational and diagnostic channel files.
func Close() error {
	filesMu.Lock()
	defer filesMu.Unlock()

	var firstErr error
	for _, c := range openFiles {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	openFiles = nil
	return firstErr
}

// buildWriter combines the primary output with the optional channel files.
func buildWriter(cfg *Config, level zerolog.Level) io.Writer {
	primary := getWriter(cfg)
	if cfg.OperationalFile == "" && cfg.DiagnosticFile == "" {
		return primary
	}

	writers := []io.Writer{LevelFilter(primary, level)}
	if cfg.OperationalFile != "" {
		writers = append(writers, LevelFilter(openChannelFile(cfg, cfg.OperationalFile), zerolog.InfoLevel))
	}
	if cfg.DiagnosticFile != "" {
		writers = append(writers, LevelFilter(openChannelFile(cfg, cfg.DiagnosticFile), zerolog.DebugLevel))
	}
	return zerolog.MultiLevelWriter(writers...)
}

func openChannelFile(cfg *Config, path string) io.Writer {
	size := cfg.MaxSizeMB
	if size <= 0 {
		size = constants.LogRotationSizeMB
	}
	backups := cfg.MaxBackups
	if backups <= 0 {
		backups = constants.LogRotationBackups
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    size,
		MaxBackups: backups,
		MaxAge:     constants.LogRotationAgeDays,
	}

	filesMu.Lock()
	openFiles = append(openFiles, file)
	filesMu.Unlock()

	return file
}

// levelFilter drops events below min before they reach w.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

// LevelFilter wraps w so that it only receives events at or above min.
func LevelFilter(w io.Writer, min zerolog.Level) zerolog.LevelWriter {
	return &levelFilter{w: w, min: min}
}

func (f *levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *levelFilter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}

// getWriter creates the appropriate writer based on configuration
func getWriter(cfg *Config) io.Writer {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	case "discard", "none":
		output = io.Discard
	default:
		// Treat as file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.FilePermissions)
		if err != nil {
			// Fall back to stderr
			output = os.Stderr
		} else {
			output = file
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "auto" || format == "" {
		format = "json"
		if f, ok := output.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "console"
		}
	}

	switch format {
	case "console", "pretty":
		return zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: parseTimeFormat(cfg.TimeFormat),
			NoColor:    cfg.NoColor,
		}
	default:
		return output
	}
}

// parseLevel parses a log level string
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "none", "off":
		return zerolog.Disabled
	default:
		if l, err := zerolog.ParseLevel(level); err == nil && level != "" {
			return l
		}
		return zerolog.InfoLevel
	}
}

// parseTimeFormat parses time format configuration
func parseTimeFormat(format string) string {
	switch strings.ToLower(format) {
	case "kitchen":
		return time.Kitchen
	case "rfc3339":
		return time.RFC3339
	case "rfc3339nano":
		return time.RFC3339Nano
	case "unix", "epoch":
		return "" // Empty string means Unix timestamp
	case "log":
		return constants.TimeFormatLog
	default:
		if strings.Contains(format, "2006") || strings.Contains(format, "15:04") {
			return format
		}
		return time.Kitchen
	}
}

// parseFields parses comma-separated key=value pairs
func parseFields(fields string) map[string]any {
	result := make(map[string]any)
	if fields == "" {
		return result
	}

	for _, field := range strings.Split(fields, ",") {
		parts := strings.SplitN(field, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// addField adds a field to the context based on its type
func addField(ctx zerolog.Context, key string, value any) zerolog.Context {
	switch v := value.(type) {
	case string:
		return ctx.Str(key, v)
	case int:
		return ctx.Int(key, v)
	case int64:
		return ctx.Int64(key, v)
	case float64:
		return ctx.Float64(key, v)
	case bool:
		return ctx.Bool(key, v)
	case time.Time:
		return ctx.Time(key, v)
	case error:
		return ctx.Err(v)
	default:
		return ctx.Interface(key, v)
	}
}

// getEnvOrDefault returns an environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
