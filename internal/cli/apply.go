package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/match"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
	"github.com/graftlabs/graft/internal/rules"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Rule    string
	Builtin bool
}

// ApplyReport describes one committed rewrite.
type ApplyReport struct {
	Rule           string   `json:"rule"`
	MatchSignature string   `json:"match_signature"`
	InputCid       pih.Cid  `json:"input_cid"`
	ResultCid      pih.Cid  `json:"result_cid"`
	Changes        []string `json:"changes"`
	Nodes          int      `json:"nodes"`
	Edges          int      `json:"edges"`
}

func (r ApplyReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "applied %s\n", r.Rule)
	fmt.Fprintf(&b, "  input  %s\n", r.InputCid)
	fmt.Fprintf(&b, "  result %s (%d node(s), %d edge(s))\n", r.ResultCid, r.Nodes, r.Edges)
	for _, c := range r.Changes {
		fmt.Fprintf(&b, "  %s\n", c)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <specs-dir> <graph-file>",
		Short: "Apply one rule at its first match",
		Long: `Apply a single rule once against a graph document and print the
resulting change log. The graph document may be a CUE graph or a YAML
fixture. With --builtin the stock optimization rules are available in
addition to the compiled ones.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Rule, "rule", "", "rule id to apply (required)")
	cmd.Flags().BoolVar(&opts.Builtin, "builtin", false, "include the builtin optimization rules")
	_ = cmd.MarkFlagRequired("rule")

	return cmd
}

func runApply(opts *ApplyOptions, specsDir, graphPath string, cmd *cobra.Command) error {
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

	ruleSet := result.Rules
	if opts.Builtin {
		ruleSet = mergeBuiltin(ruleSet)
	}
	r, ok := ruleSet[opts.Rule]
	if !ok {
		if err := formatter.Error(ErrCodeUnknownRule, fmt.Sprintf("unknown rule %q", opts.Rule), sortedKeys(ruleSet)); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, "unknown rule")
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

	cond := r.Condition()
	matches, err := match.New().FindMatchesScoped(r.L, g, r.Nacs, cond.Injective, cond.AttrsGuard, nil)
	if err != nil {
		if outErr := formatter.Error(ErrCodeGeneric, fmt.Sprintf("matching: %v", err), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "matching failed")
	}
	if matches.Empty() {
		if outErr := formatter.Error(ErrCodeNoMatch, fmt.Sprintf("rule %q has no match in %s", opts.Rule, graphPath), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "no match")
	}

	out, app, err := apply.New().Apply(g, r, matches.Matches[0])
	if err != nil {
		if outErr := formatter.Error(ErrCodeGeneric, fmt.Sprintf("applying: %v", err), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "application failed")
	}

	return formatter.Success(ApplyReport{
		Rule:           app.RuleID,
		MatchSignature: app.MatchSignature,
		InputCid:       inst.Cid,
		ResultCid:      app.ResultCid,
		Changes:        describeChanges(app.Changes),
		Nodes:          out.NodeCount(),
		Edges:          out.EdgeCount(),
	})
}

// mergeBuiltin overlays compiled rules on the stock set: a compiled
// rule with a builtin's id wins.
func mergeBuiltin(compiled rule.RuleSet) rule.RuleSet {
	merged := make(rule.RuleSet, len(compiled))
	for id, r := range rules.Builtin() {
		merged[id] = r
	}
	for id, r := range compiled {
		merged[id] = r
	}
	return merged
}

// describeChanges renders a change log for display.
func describeChanges(changes []apply.GraphChange) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		switch {
		case c.Node != nil:
			out = append(out, fmt.Sprintf("%s %s", c.Op, c.Node.Cid))
		case c.Edge != nil:
			out = append(out, fmt.Sprintf("%s %s", c.Op, c.Edge.Cid))
		case c.Incidence != nil:
			out = append(out, fmt.Sprintf("%s %s->%s %s[%d]", c.Op, c.Incidence.Edge, c.Incidence.Node, c.Incidence.Role, c.Incidence.Idx))
		default:
			out = append(out, string(c.Op))
		}
	}
	return out
}
