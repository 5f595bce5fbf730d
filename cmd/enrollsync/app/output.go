package app

import (
	"encoding/json"
	"io"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/enrollsync"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/reconciler"
	"github.com/agentstation/enrollsync/pkg/transcriber"
)

// Plan output formats.
const (
	formatYAML = "yaml"
	formatJSON = "json"
)

// planReport is what the plan command prints.
type planReport struct {
	RunID          string                      `json:"run_id" yaml:"run_id"`
	Participants   int                         `json:"participants" yaml:"participants"`
	Targets        []*reconciler.WritePlan     `json:"targets" yaml:"targets"`
	Transcriptions []transcriber.Transcription `json:"transcriptions,omitempty" yaml:"transcriptions,omitempty"`
	Failed         []string                    `json:"failed_stages,omitempty" yaml:"failed_stages,omitempty"`
}

func checkFormat(format string) error {
	switch format {
	case formatYAML, formatJSON:
		return nil
	default:
		return errors.NewValidationError("format", format, "must be yaml or json")
	}
}

func newPlanReport(result *enrollsync.Result) planReport {
	report := planReport{
		RunID:        result.RunID,
		Participants: result.Participants,
		Targets:      result.Plans(),
	}
	if result.Transcription != nil {
		report.Transcriptions = result.Transcription.Transcriptions
	}
	for _, err := range result.StageErrors() {
		report.Failed = append(report.Failed, err.Error())
	}
	return report
}

// writePlan prints the plans of a dry run in the requested format.
func writePlan(w io.Writer, format string, result *enrollsync.Result) error {
	report := newPlanReport(result)

	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return errors.WrapIO("write", "plan", err)
		}
		return nil
	case formatYAML:
		data, err := yaml.Marshal(report)
		if err != nil {
			return errors.WrapParse("yaml", "plan", err)
		}
		if _, err := w.Write(data); err != nil {
			return errors.WrapIO("write", "plan", err)
		}
		return nil
	default:
		return checkFormat(format)
	}
}
