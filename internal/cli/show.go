package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	Graph    string
	Kind     string
}

// GraphListing enumerates stored snapshots.
type GraphListing struct {
	Count  int       `json:"count"`
	Graphs []pih.Cid `json:"graphs"`
}

func (l GraphListing) String() string {
	if l.Count == 0 {
		return "no graphs stored"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d graphs:\n", l.Count)
	for _, cid := range l.Graphs {
		fmt.Fprintf(&b, "  %s\n", cid)
	}
	return strings.TrimRight(b.String(), "\n")
}

// GraphDetail renders one stored snapshot.
type GraphDetail struct {
	Cid        pih.Cid  `json:"cid"`
	Kind       string   `json:"kind"`
	Nodes      int      `json:"nodes"`
	Edges      int      `json:"edges"`
	Incidences int      `json:"incidences"`
	Detail     []string `json:"detail"`
}

func (d GraphDetail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph %s (%s)\n", d.Cid, d.Kind)
	fmt.Fprintf(&b, "  %d nodes, %d edges, %d incidences\n", d.Nodes, d.Edges, d.Incidences)
	for _, line := range d.Detail {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Inspect stored graph snapshots",
		Long: `List graph snapshots in the database, or print one in full.

Example:
  graft show --db ./graft.db
  graft show --db ./graft.db --graph <cid>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&opts.Graph, "graph", "", "print the snapshot with this cid")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter listings by graph kind")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
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

	if opts.Graph == "" {
		cids, err := s.ListGraphs(ctx, pih.GraphKind(opts.Kind))
		if err != nil {
			if outErr := formatter.Error(ErrCodeStoreFailed, err.Error(), nil); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitCommandError, "listing graphs", err)
		}
		return formatter.Success(GraphListing{Count: len(cids), Graphs: cids})
	}

	inst, err := s.GetGraph(ctx, pih.Cid(opts.Graph))
	if err != nil {
		if outErr := formatter.Error(ErrCodeNotFound, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "reading graph", err)
	}

	return formatter.Success(describeGraph(inst))
}

func describeGraph(inst *pih.GraphInstance) GraphDetail {
	d := GraphDetail{
		Cid:        inst.Cid,
		Kind:       string(inst.Kind),
		Nodes:      len(inst.Core.Nodes),
		Edges:      len(inst.Core.Edges),
		Incidences: len(inst.Core.Incidences),
	}

	nodes := make([]pih.Node, len(inst.Core.Nodes))
	copy(nodes, inst.Core.Nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Cid < nodes[j].Cid })
	for _, n := range nodes {
		line := fmt.Sprintf("node %s type=%s", n.Cid, n.Type)
		if len(n.Labels) > 0 {
			line += " labels=" + strings.Join(n.Labels, ",")
		}
		d.Detail = append(d.Detail, line)
	}

	edges := make([]pih.Edge, len(inst.Core.Edges))
	copy(edges, inst.Core.Edges)
	sort.Slice(edges, func(i, j int) bool { return edges[i].Cid < edges[j].Cid })
	for _, e := range edges {
		line := fmt.Sprintf("edge %s type=%s", e.Cid, e.Type)
		if e.Label != "" {
			line += " label=" + e.Label
		}
		d.Detail = append(d.Detail, line)
	}

	return d
}
