package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graftlabs/graft/internal/analyze"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// RuleReport is the analysis surface of one compiled rule.
type RuleReport struct {
	ID           string `json:"id"`
	Linear       bool   `json:"linear"`
	Idempotent   bool   `json:"idempotent"`
	Invertible   bool   `json:"invertible"`
	ParallelSafe bool   `json:"parallel_safe"`
	Complexity   int64  `json:"complexity"`
	Nacs         int    `json:"nacs"`
}

// ValidationReport aggregates per-rule analyses.
type ValidationReport struct {
	Rules []RuleReport `json:"rules"`
}

func (r ValidationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rule(s) valid\n", len(r.Rules))
	for _, rr := range r.Rules {
		fmt.Fprintf(&b, "  %-24s linear=%-5v idempotent=%-5v invertible=%-5v parallel_safe=%-5v complexity=%d nacs=%d\n",
			rr.ID, rr.Linear, rr.Idempotent, rr.Invertible, rr.ParallelSafe, rr.Complexity, rr.Nacs)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate rule documents and report their static analysis",
		Long: `Compile a specs directory and run static analysis on every rule:
linearity, idempotence, invertibility, parallel safety, and a
complexity estimate.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, specsDir string, cmd *cobra.Command) error {
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
	if len(loadErrors) > 0 {
		details := make([]string, len(loadErrors))
		for i, err := range loadErrors {
			details[i] = err.Error()
		}
		if err := formatter.Error(ErrCodeCompileFailed, fmt.Sprintf("%d document(s) failed to compile", len(loadErrors)), details); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	report := ValidationReport{}
	for _, id := range sortedKeys(result.Rules) {
		r := result.Rules[id]
		analysis, err := analyze.Analyze(r)
		if err != nil {
			if outErr := formatter.Error(ErrCodeCompileFailed, fmt.Sprintf("analyzing rule %s: %v", id, err), nil); outErr != nil {
				return outErr
			}
			return NewExitError(ExitFailure, "validation failed")
		}
		report.Rules = append(report.Rules, RuleReport{
			ID:           id,
			Linear:       analysis.IsLinear,
			Idempotent:   analysis.IsIdempotent,
			Invertible:   analysis.HasInverse,
			ParallelSafe: analysis.ParallelSafe,
			Complexity:   analysis.Complexity,
			Nacs:         len(r.Nacs),
		})
	}

	return formatter.Success(report)
}
