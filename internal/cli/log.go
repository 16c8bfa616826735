package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	Run      string
}

// RunListing enumerates stored runs.
type RunListing struct {
	Count int        `json:"count"`
	Runs  []RunEntry `json:"runs"`
}

// RunEntry is one row of a run listing.
type RunEntry struct {
	ID        string  `json:"id"`
	Strategy  string  `json:"strategy"`
	InputCid  pih.Cid `json:"input_cid"`
	ResultCid pih.Cid `json:"result_cid"`
	Steps     int     `json:"steps"`
	Failed    bool    `json:"failed"`
}

func (l RunListing) String() string {
	if l.Count == 0 {
		return "no runs recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d runs:\n", l.Count)
	for _, r := range l.Runs {
		status := "ok"
		if r.Failed {
			status = "failed"
		}
		fmt.Fprintf(&b, "  %s  %-6s  steps=%d  %s\n", r.ID, status, r.Steps, r.Strategy)
	}
	return strings.TrimRight(b.String(), "\n")
}

// JournalView renders one run's application journal.
type JournalView struct {
	RunID      string        `json:"run_id"`
	Strategy   string        `json:"strategy"`
	InputCid   pih.Cid       `json:"input_cid"`
	ResultCid  pih.Cid       `json:"result_cid"`
	Failed     bool          `json:"failed"`
	FailedPath string        `json:"failed_path,omitempty"`
	Entries    []JournalStep `json:"entries"`
}

// JournalStep is one journal entry.
type JournalStep struct {
	Seq       int      `json:"seq"`
	Rule      string   `json:"rule"`
	MatchSig  string   `json:"match_signature"`
	Cost      *int64   `json:"cost,omitempty"`
	ResultCid pih.Cid  `json:"result_cid"`
	Changes   []string `json:"changes"`
}

func (v JournalView) String() string {
	var b strings.Builder
	status := "ok"
	if v.Failed {
		status = "failed"
		if v.FailedPath != "" {
			status += " at " + v.FailedPath
		}
	}
	fmt.Fprintf(&b, "run %s (%s): %s\n", v.RunID, v.Strategy, status)
	fmt.Fprintf(&b, "  input  %s\n", v.InputCid)
	fmt.Fprintf(&b, "  result %s\n", v.ResultCid)
	for _, e := range v.Entries {
		fmt.Fprintf(&b, "  [%d] %s (%s) -> %s\n", e.Seq, e.Rule, e.MatchSig, e.ResultCid)
		for _, c := range e.Changes {
			fmt.Fprintf(&b, "      %s\n", c)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect recorded runs and their journals",
		Long: `List recorded runs, or print one run's application journal.

Example:
  graft log --db ./graft.db
  graft log --db ./graft.db --run <run-id>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&opts.Run, "run", "", "print the journal for this run id")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
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

	ctx := cmd.Context()

	if opts.Run == "" {
		runs, err := s.ListRuns(ctx)
		if err != nil {
			if outErr := formatter.Error(ErrCodeStoreFailed, err.Error(), nil); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitCommandError, "listing runs", err)
		}
		listing := RunListing{Count: len(runs)}
		for _, r := range runs {
			listing.Runs = append(listing.Runs, RunEntry{
				ID:        r.ID,
				Strategy:  r.Strategy,
				InputCid:  r.InputCid,
				ResultCid: r.ResultCid,
				Steps:     r.Steps,
				Failed:    r.Failed,
			})
		}
		return formatter.Success(listing)
	}

	run, err := s.GetRun(ctx, opts.Run)
	if err != nil {
		if outErr := formatter.Error(ErrCodeNotFound, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "reading run", err)
	}
	journal, err := s.ReadJournal(ctx, opts.Run)
	if err != nil {
		if outErr := formatter.Error(ErrCodeStoreFailed, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "reading journal", err)
	}

	view := JournalView{
		RunID:      run.ID,
		Strategy:   run.Strategy,
		InputCid:   run.InputCid,
		ResultCid:  run.ResultCid,
		Failed:     run.Failed,
		FailedPath: run.FailedPath,
	}
	for _, entry := range journal {
		app := entry.Application
		view.Entries = append(view.Entries, JournalStep{
			Seq:       entry.Seq,
			Rule:      app.RuleID,
			MatchSig:  app.MatchSignature,
			Cost:      app.Cost,
			ResultCid: app.ResultCid,
			Changes:   describeChanges(app.Changes),
		})
	}

	return formatter.Success(view)
}
