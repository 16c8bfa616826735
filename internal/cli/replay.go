package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Run      string
}

// ReplayReport summarizes a journal verification.
type ReplayReport struct {
	RunID      string  `json:"run_id"`
	Steps      int     `json:"steps"`
	FinalCid   pih.Cid `json:"final_cid"`
	Diverged   bool    `json:"diverged"`
	DivergedAt int     `json:"diverged_at,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

func (r ReplayReport) String() string {
	var b strings.Builder
	if r.Diverged {
		fmt.Fprintf(&b, "replay of %s DIVERGED at step %d\n", r.RunID, r.DivergedAt)
		fmt.Fprintf(&b, "  %s\n", r.Reason)
	} else {
		fmt.Fprintf(&b, "replay of %s verified\n", r.RunID)
	}
	fmt.Fprintf(&b, "  steps %d\n", r.Steps)
	fmt.Fprintf(&b, "  final %s", r.FinalCid)
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-derive a run from its journal and verify every step",
		Long: `Reapply a recorded run's change log to its input snapshot and check
that each step and the final graph reproduce the journaled cids.

A divergence means the journal, snapshots, or engine no longer agree.

Example:
  graft replay --db ./graft.db --run <run-id>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run id to replay")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	s, err := store.Open(opts.Database)
	if err != nil {
		if outErr := formatter.Error(ErrCodeStoreFailed, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "opening store", err)
	}
	defer s.Close()

	result, _, err := s.Replay(cmd.Context(), opts.Run)
	if err != nil {
		if outErr := formatter.Error(ErrCodeStoreFailed, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "replaying run", err)
	}

	report := ReplayReport{
		RunID:      result.RunID,
		Steps:      result.Steps,
		FinalCid:   result.FinalCid,
		Diverged:   result.Diverged,
		DivergedAt: result.DivergedAt,
		Reason:     result.Reason,
	}

	if result.Diverged {
		if outErr := formatter.Error(ErrCodeReplayDiverged, report.String(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "replay diverged")
	}

	return formatter.Success(report)
}
