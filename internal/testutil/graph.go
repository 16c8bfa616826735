package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graftlabs/graft/internal/pih"
)

// GraphBuilder assembles graph instances for tests.
//
// Test graphs use readable literal CIDs ("n:add", "e:mul") rather than
// content hashes so failures are legible. Tests that exercise content
// addressing compute real CIDs via pih.NodeCID / pih.EdgeCID directly.
type GraphBuilder struct {
	kind       pih.GraphKind
	nodes      []pih.Node
	edges      []pih.Edge
	incidences []pih.Incidence
	attrs      pih.Attrs
}

// NewGraphBuilder creates a builder for a graph of the given kind.
func NewGraphBuilder(kind pih.GraphKind) *GraphBuilder {
	return &GraphBuilder{kind: kind}
}

// Node adds a node with the given CID and type.
func (b *GraphBuilder) Node(cid, typ string) *GraphBuilder {
	return b.NodeWith(cid, typ, nil, nil)
}

// NodeWith adds a node with labels and attrs.
func (b *GraphBuilder) NodeWith(cid, typ string, labels []string, attrs pih.Attrs) *GraphBuilder {
	b.nodes = append(b.nodes, pih.Node{
		Cid:    pih.Cid(cid),
		Type:   typ,
		Labels: labels,
		Attrs:  attrs,
	})
	return b
}

// Edge adds a hyperedge with the given CID and type.
func (b *GraphBuilder) Edge(cid, typ string) *GraphBuilder {
	return b.EdgeWith(cid, typ, "", nil)
}

// EdgeWith adds a hyperedge with label and attrs.
func (b *GraphBuilder) EdgeWith(cid, typ, label string, attrs pih.Attrs) *GraphBuilder {
	b.edges = append(b.edges, pih.Edge{
		Cid:   pih.Cid(cid),
		Type:  typ,
		Label: label,
		Attrs: attrs,
	})
	return b
}

// EdgeSrcTgt adds a binary edge with endpoint references.
func (b *GraphBuilder) EdgeSrcTgt(cid, typ, src, tgt string) *GraphBuilder {
	b.edges = append(b.edges, pih.Edge{
		Cid:  pih.Cid(cid),
		Type: typ,
		Src:  src,
		Tgt:  tgt,
	})
	return b
}

// In adds a DataIn incidence at the given positional index.
func (b *GraphBuilder) In(edge, node string, idx int) *GraphBuilder {
	return b.Incidence(edge, node, pih.RoleDataIn, idx, nil)
}

// Out adds a DataOut incidence at the given positional index.
func (b *GraphBuilder) Out(edge, node string, idx int) *GraphBuilder {
	return b.Incidence(edge, node, pih.RoleDataOut, idx, nil)
}

// Incidence adds an incidence with an explicit role, index, and attrs.
func (b *GraphBuilder) Incidence(edge, node string, role pih.Role, idx int, attrs pih.Attrs) *GraphBuilder {
	b.incidences = append(b.incidences, pih.Incidence{
		Edge:  pih.Cid(edge),
		Node:  pih.Cid(node),
		Role:  role,
		Idx:   idx,
		Attrs: attrs,
	})
	return b
}

// Attrs sets graph-level attrs.
func (b *GraphBuilder) Attrs(attrs pih.Attrs) *GraphBuilder {
	b.attrs = attrs
	return b
}

// Instance returns the assembled GraphInstance with the given CID.
func (b *GraphBuilder) Instance(cid string) *pih.GraphInstance {
	return &pih.GraphInstance{
		Core: pih.GraphCore{
			Nodes:      b.nodes,
			Edges:      b.edges,
			Incidences: b.incidences,
			Attrs:      b.attrs,
		},
		Kind: b.kind,
		Cid:  pih.Cid(cid),
	}
}

// Graph validates and returns the assembled working graph, failing the
// test on any model violation.
func (b *GraphBuilder) Graph(t *testing.T, cid string) *pih.Graph {
	t.Helper()
	g, err := pih.FromInstance(b.Instance(cid))
	require.NoError(t, err)
	return g
}
