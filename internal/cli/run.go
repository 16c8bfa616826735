package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/store"
	"github.com/graftlabs/graft/internal/strategy"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Strategy string
	Database string
	Builtin  bool
	MaxSteps int64

	// Tokens allows overriding the run token generator (for testing).
	// If nil, defaults to UUIDv7 tokens.
	Tokens strategy.TokenGenerator
}

// RunSummary reports one strategy execution.
type RunSummary struct {
	RunID        string           `json:"run_id"`
	Strategy     string           `json:"strategy"`
	InputCid     pih.Cid          `json:"input_cid"`
	ResultCid    pih.Cid          `json:"result_cid"`
	Steps        int64            `json:"steps"`
	Applications int              `json:"applications"`
	Failed       bool             `json:"failed"`
	FailedPath   []string         `json:"failed_path,omitempty"`
	RuleStats    map[string]int64 `json:"rule_stats,omitempty"`
}

func (s RunSummary) String() string {
	var b strings.Builder
	status := "ok"
	if s.Failed {
		status = "failed at " + strings.Join(s.FailedPath, " > ")
	}
	fmt.Fprintf(&b, "run %s: %s\n", s.RunID, status)
	fmt.Fprintf(&b, "  strategy     %s\n", s.Strategy)
	fmt.Fprintf(&b, "  input        %s\n", s.InputCid)
	fmt.Fprintf(&b, "  result       %s\n", s.ResultCid)
	fmt.Fprintf(&b, "  steps        %d\n", s.Steps)
	fmt.Fprintf(&b, "  applications %d\n", s.Applications)
	ids := make([]string, 0, len(s.RuleStats))
	for id := range s.RuleStats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "  %-24s x%d\n", id, s.RuleStats[id])
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <specs-dir> <graph-file>",
		Short: "Run a strategy against a graph",
		Long: `Execute a compiled strategy against a graph document.

The specs directory must define the strategy (picked by --strategy, or
the sole strategy when only one is defined). With --db the input and
result snapshots, the run record, and the full application journal are
persisted.

Example:
  graft run ./specs ./program.yaml --strategy optimize --db ./graft.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStrategy(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "strategy name (defaults to the only one defined)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "persist snapshots and the journal to this SQLite database")
	cmd.Flags().BoolVar(&opts.Builtin, "builtin", false, "include the builtin optimization rules")
	cmd.Flags().Int64Var(&opts.MaxSteps, "max-steps", strategy.DefaultMaxSteps, "strategy step budget")

	return cmd
}

func runStrategy(opts *RunOptions, specsDir, graphPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, loadErrors := LoadDocs(specsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return outputLoadError(formatter, loadErrors[0])
	}

	strat, name, err := pickStrategy(result.Strategies, opts.Strategy)
	if err != nil {
		if outErr := formatter.Error(ErrCodeUnknownStrategy, err.Error(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitCommandError, err.Error())
	}

	inst, err := LoadGraphFile(graphPath)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	g, err := pih.FromInstance(inst)
	if err != nil {
		if outErr := formatter.Error(ErrCodeCompileFailed, fmt.Sprintf("invalid graph: %v", err), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitCommandError, "invalid graph")
	}

	ruleSet := result.Rules
	if opts.Builtin {
		ruleSet = mergeBuiltin(ruleSet)
	}

	queries := result.Queries
	engineOpts := []strategy.EngineOption{strategy.WithMaxSteps(opts.MaxSteps)}
	if opts.Tokens != nil {
		engineOpts = append(engineOpts, strategy.WithTokenGenerator(opts.Tokens))
	}
	engine := strategy.New(ruleSet, queries, engineOpts...)

	slog.Info("running strategy", "name", name, "graph", string(inst.Cid), "rules", len(ruleSet))

	run, err := engine.Run(cmd.Context(), g, strat)
	if err != nil {
		if outErr := formatter.Error(ErrCodeStrategyFailed, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "strategy execution", err)
	}

	if opts.Database != "" {
		if err := persistRun(cmd.Context(), opts.Database, inst, strat, run); err != nil {
			if outErr := formatter.Error(ErrCodeStoreFailed, err.Error(), nil); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitCommandError, "persisting run", err)
		}
		formatter.VerboseLog("Persisted run %s to %s", run.RunID, opts.Database)
	}

	summary := RunSummary{
		RunID:        run.RunID,
		Strategy:     strat.String(),
		InputCid:     inst.Cid,
		ResultCid:    run.ResultCid,
		Steps:        run.Steps,
		Applications: len(run.Applications),
		Failed:       run.Failed,
		FailedPath:   run.FailedPath,
		RuleStats:    make(map[string]int64),
	}
	for id, stats := range run.Stats {
		if stats.Applications > 0 {
			summary.RuleStats[id] = stats.Applications
		}
	}

	if err := formatter.Success(summary); err != nil {
		return err
	}
	if run.Failed {
		return NewExitError(ExitFailure, "strategy failed")
	}
	return nil
}

// pickStrategy selects the named strategy, or the only one when the
// name is empty.
func pickStrategy(strategies map[string]strategy.Strategy, name string) (strategy.Strategy, string, error) {
	if name != "" {
		s, ok := strategies[name]
		if !ok {
			return nil, "", fmt.Errorf("unknown strategy %q (have %v)", name, sortedKeys(strategies))
		}
		return s, name, nil
	}
	if len(strategies) != 1 {
		return nil, "", fmt.Errorf("specs define %d strategies, pick one with --strategy", len(strategies))
	}
	for n, s := range strategies {
		return s, n, nil
	}
	return nil, "", fmt.Errorf("no strategy defined")
}

// persistRun stores the input and result snapshots, the run record, and
// the application journal.
func persistRun(ctx context.Context, dbPath string, input *pih.GraphInstance, strat strategy.Strategy, run *strategy.Run) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.PutGraph(ctx, input); err != nil {
		return err
	}
	if run.Result != nil {
		if err := s.PutGraph(ctx, run.Result.Snapshot()); err != nil {
			return err
		}
	}

	return s.WriteRunWithJournal(ctx, store.RunRecord{
		ID:         run.RunID,
		Strategy:   strat.String(),
		InputCid:   input.Cid,
		ResultCid:  run.ResultCid,
		Failed:     run.Failed,
		FailedPath: strings.Join(run.FailedPath, " > "),
		Steps:      int(run.Steps),
	}, run.Applications)
}
