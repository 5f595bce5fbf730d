// Package constants provides shared constants used throughout the enrollsync codebase.
// This includes protocol limits, timeouts, file permissions, and the sentinel
// values that the flat-file exports use.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for a single remote store request
	DefaultHTTPTimeout = 30 * time.Second

	// ShutdownTimeout is the grace period for flushing logs and metrics on exit
	ShutdownTimeout = 5 * time.Second
)

// Remote store protocol limits
const (
	// PageSize is the number of records requested per paged query
	PageSize = 500

	// ChunkSize is the protocol ceiling for batch create and batch update calls
	ChunkSize = 100
)

// Feed constants
const (
	// ActiveSentinel marks an eligibility-loss date that has not happened yet.
	// It is compared as an opaque string and never parsed as a date.
	ActiveSentinel = "99999999"

	// DefaultFeedExtension is the file extension the feed locator searches for
	DefaultFeedExtension = ".txt"

	// DefaultFeedEncoding is the character set of both flat-file exports
	DefaultFeedEncoding = "Shift_JIS"
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureFilePermissions is for sensitive files like audit ledgers (rw-------)
	SecureFilePermissions = 0600
)

// Logging constants
const (
	// LogRotationSizeMB is the maximum size of a log file before rotation
	LogRotationSizeMB = 10

	// LogRotationAgeDays is the maximum age of rotated log files
	LogRotationAgeDays = 30

	// LogRotationBackups is the maximum number of old log files to retain
	LogRotationBackups = 5
)

// Format constants
const (
	// TimeFormatLog is the format used in log files
	TimeFormatLog = "2006-01-02 15:04:05.000"
)
