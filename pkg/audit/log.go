package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/enrollsync/pkg/logging"
)

// LogRecorder writes entries to the context logger. Failures and
// registration errors are logged at warn, everything else at info, so they
// land in the operational channel.
type LogRecorder struct{}

// Record implements Recorder.
func (LogRecorder) Record(ctx context.Context, e Entry) error {
	logger := logging.FromContext(ctx)

	level := zerolog.InfoLevel
	switch e.Action {
	case ActionFailed, ActionRegistrationError:
		level = zerolog.WarnLevel
	}

	event := logger.WithLevel(level).
		Str("audit", string(e.Action)).
		Str("stage", e.Stage).
		Str("target", e.Target).
		Str("key", e.Key)
	if e.RecordID != "" {
		event = event.Str("record_id", e.RecordID)
	}
	if e.Detail != "" {
		event = event.Str("detail", e.Detail)
	}
	if e.DryRun {
		event = event.Bool("dry_run", true)
	}
	event.Msg("Record decision")
	return nil
}
