package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/enrollsync"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
)

// mode selects which Syncer entry point a command runs.
type mode int

const (
	modeRun mode = iota
	modePlan
	modeTranscribe
)

// NewRunCommand creates the run command.
func (a *App) NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "run",
		GroupID: "core",
		Short:   "Run every reconciliation stage",
		Long: `Run loads and joins both exports, reconciles every exact target, transcribes
pending events onto the ledger, then reconciles every fuzzy target.

A missing export or a join failure stops the run. Any other stage failure is
reported and the remaining stages still run; the command then exits with
status 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd, modeRun)
		},
	}
}

// NewPlanCommand creates the plan command.
func (a *App) NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plan",
		GroupID: "core",
		Short:   "Show the writes a run would make",
		Long: `Plan reads both exports and every remote application, computes the inserts,
updates and not-found participants per target and the events that would be
transcribed, and prints them without writing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(a.config.Format); err != nil {
				return err
			}
			return a.execute(cmd, modePlan)
		},
	}
	cmd.Flags().StringVarP(&a.config.Format, "format", "o", a.config.Format, "output format: yaml, json")
	return cmd
}

// NewTranscribeCommand creates the transcribe command.
func (a *App) NewTranscribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "transcribe",
		GroupID: "core",
		Short:   "Transcribe pending procedure events onto the ledger",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.execute(cmd, modeTranscribe)
		},
	}
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("enrollsync %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}

// execute builds the pipeline from the run configuration and runs it.
func (a *App) execute(cmd *cobra.Command, m mode) error {
	run, err := a.RunConfig()
	if err != nil {
		return err
	}

	// The run configuration names the rotated channel files
	logger := NewLogger(a.config, &run.Log)
	a.logger = &logger
	logging.SetDefault(logger)

	// A signal before the run starts aborts it. Once started the run is
	// not cancelled; each remote call is bounded by the HTTP timeout.
	if err := cmd.Context().Err(); err != nil {
		return err
	}
	ctx := logging.WithLogger(context.WithoutCancel(cmd.Context()), a.logger)

	p, err := a.newPipeline(ctx, run)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	var result *enrollsync.Result
	switch m {
	case modePlan:
		result, err = p.syncer.Plan(ctx)
	case modeTranscribe:
		result, err = p.syncer.Transcribe(ctx)
	default:
		result, err = p.syncer.Run(ctx)
	}

	if result != nil {
		out := cmd.OutOrStdout()
		if m == modePlan && err == nil {
			if werr := writePlan(out, a.config.Format, result); werr != nil {
				return werr
			}
		} else {
			fmt.Fprintln(out, result.Summary())
		}
	}
	if err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("run %s: %w", result.RunID, errors.Join(result.StageErrors()...))
	}
	return nil
}
