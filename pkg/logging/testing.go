package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// TestLogger captures JSON log lines at every level so tests can assert on
// what a stage reported.
type TestLogger struct {
	*zerolog.Logger
	Buffer *bytes.Buffer
}

// Entry is one decoded log line.
type Entry map[string]any

// Str returns a string field of the entry, or "".
func (e Entry) Str(key string) string {
	s, _ := e[key].(string)
	return s
}

// NewTestLogger creates a logger writing to an in-memory buffer. The global
// level is lowered to trace until the test ends.
func NewTestLogger(t testing.TB) *TestLogger {
	t.Helper()

	previous := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(previous) })

	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	return &TestLogger{Logger: &logger, Buffer: buf}
}

// Context returns ctx carrying the captured logger.
func (tl *TestLogger) Context(ctx context.Context) context.Context {
	return WithLogger(ctx, tl.Logger)
}

// Output returns everything logged so far.
func (tl *TestLogger) Output() string {
	return tl.Buffer.String()
}

// Lines returns the captured output split into lines.
func (tl *TestLogger) Lines() []string {
	output := strings.TrimSpace(tl.Output())
	if output == "" {
		return []string{}
	}
	return strings.Split(output, "\n")
}

// Entries decodes every captured line. A line that is not JSON fails the test.
func (tl *TestLogger) Entries(t testing.TB) []Entry {
	t.Helper()
	lines := tl.Lines()
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("log line is not JSON: %v\n%s", err, line)
		}
		entries = append(entries, e)
	}
	return entries
}

// Find returns the first entry logged with message.
func (tl *TestLogger) Find(t testing.TB, message string) (Entry, bool) {
	t.Helper()
	for _, e := range tl.Entries(t) {
		if e.Str(zerolog.MessageFieldName) == message {
			return e, true
		}
	}
	return nil, false
}

// Contains reports whether substr appears anywhere in the output.
func (tl *TestLogger) Contains(substr string) bool {
	return strings.Contains(tl.Output(), substr)
}

// ContainsAll reports whether every substring appears in the output.
func (tl *TestLogger) ContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !tl.Contains(s) {
			return false
		}
	}
	return true
}

// ContainsAny reports whether at least one substring appears in the output.
func (tl *TestLogger) ContainsAny(substrs ...string) bool {
	for _, s := range substrs {
		if tl.Contains(s) {
			return true
		}
	}
	return false
}

// Count returns the number of captured lines.
func (tl *TestLogger) Count() int {
	return len(tl.Lines())
}

// Clear drops the captured output.
func (tl *TestLogger) Clear() {
	tl.Buffer.Reset()
}

// AssertContains fails the test when substr was not logged.
func (tl *TestLogger) AssertContains(t testing.TB, substr string) {
	t.Helper()
	if !tl.Contains(substr) {
		t.Errorf("log output does not contain %q\noutput:\n%s", substr, tl.Output())
	}
}

// AssertNotContains fails the test when substr was logged.
func (tl *TestLogger) AssertNotContains(t testing.TB, substr string) {
	t.Helper()
	if tl.Contains(substr) {
		t.Errorf("log output should not contain %q\noutput:\n%s", substr, tl.Output())
	}
}

// AssertCount fails the test unless exactly expected lines were logged.
func (tl *TestLogger) AssertCount(t testing.TB, expected int) {
	t.Helper()
	if n := tl.Count(); n != expected {
		t.Errorf("expected %d log lines, got %d\noutput:\n%s", expected, n, tl.Output())
	}
}

// AssertMessage fails the test unless message was logged at level, and
// returns the first such entry.
func (tl *TestLogger) AssertMessage(t testing.TB, level zerolog.Level, message string) Entry {
	t.Helper()
	for _, e := range tl.Entries(t) {
		if e.Str(zerolog.MessageFieldName) == message && e.Str(zerolog.LevelFieldName) == level.String() {
			return e
		}
	}
	t.Errorf("no %s entry %q\noutput:\n%s", level, message, tl.Output())
	return Entry{}
}

// NewNopLogger returns a logger that drops everything, for tests that only
// need a logger in the context.
func NewNopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// DisableLoggingForTest silences the default logger until the test ends.
func DisableLoggingForTest(t testing.TB) {
	t.Helper()
	swapDefault(t, zerolog.Nop())
}

// CaptureLoggingForTest routes the default logger into a TestLogger until
// the test ends. Code that logs without a logger in its context, such as
// the stage engines called with context.Background, ends up here.
func CaptureLoggingForTest(t testing.TB) *TestLogger {
	t.Helper()
	tl := NewTestLogger(t)
	swapDefault(t, *tl.Logger)
	return tl
}

func swapDefault(t testing.TB, logger zerolog.Logger) {
	original := *Default()
	SetDefault(logger)
	t.Cleanup(func() { SetDefault(original) })
}
