package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/graftlabs/graft/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Database string // optional db path to persist compiled docs
}

// CompilationSummary reports what a specs directory compiled to.
type CompilationSummary struct {
	Files      int      `json:"files"`
	Rules      []string `json:"rules"`
	Queries    []string `json:"queries"`
	Strategies []string `json:"strategies"`
	Graphs     []string `json:"graphs"`
}

func (s CompilationSummary) String() string {
	return fmt.Sprintf("compiled %d file(s): %d rule(s), %d query(ies), %d strategy(ies), %d graph(s)",
		s.Files, len(s.Rules), len(s.Queries), len(s.Strategies), len(s.Graphs))
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE rule, query, strategy, and graph documents",
		Long: `Compile the CUE documents of a specs directory.

Rules are validated as well-formed DPO spans, graphs are content
addressed, and with --db the compiled rules and graphs are persisted.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "persist compiled rules and graphs to this SQLite database")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, loadErrors := LoadDocs(specsDir, LoadModeCollectAll)
	if result == nil && len(loadErrors) > 0 {
		return outputLoadError(formatter, loadErrors[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, specsDir)

	if len(loadErrors) > 0 {
		details := make([]string, len(loadErrors))
		for i, err := range loadErrors {
			details[i] = err.Error()
		}
		if err := formatter.Error(ErrCodeCompileFailed, fmt.Sprintf("%d document(s) failed to compile", len(loadErrors)), details); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "compilation failed")
	}

	if opts.Database != "" {
		if err := persistDocs(cmd.Context(), opts.Database, result); err != nil {
			if outErr := formatter.Error(ErrCodeStoreFailed, err.Error(), nil); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitCommandError, "persisting compiled documents", err)
		}
		formatter.VerboseLog("Persisted %d rule(s) and %d graph(s) to %s", len(result.Rules), len(result.Graphs), opts.Database)
	}

	return formatter.Success(summarize(result))
}

func persistDocs(ctx context.Context, dbPath string, result *LoadResult) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, id := range sortedKeys(result.Rules) {
		if err := s.PutRule(ctx, result.Rules[id]); err != nil {
			return err
		}
	}
	for _, g := range result.Graphs {
		if err := s.PutGraph(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

func summarize(result *LoadResult) CompilationSummary {
	summary := CompilationSummary{
		Files:   result.FileCount,
		Rules:   sortedKeys(result.Rules),
		Queries: sortedKeys(result.Queries),
	}
	for name := range result.Strategies {
		summary.Strategies = append(summary.Strategies, name)
	}
	sort.Strings(summary.Strategies)
	for _, g := range result.Graphs {
		summary.Graphs = append(summary.Graphs, string(g.Cid))
	}
	sort.Strings(summary.Graphs)
	return summary
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// outputLoadError reports a load failure and converts it to a command
// error exit.
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if outErr := formatter.Error(loadErr.Code, loadErr.Message, nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitCommandError, loadErr.Message)
	}
	if outErr := formatter.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
		return outErr
	}
	return NewExitError(ExitCommandError, err.Error())
}
