package rules

import (
	"fmt"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// graphDef assembles the small pattern graphs of the builtin catalog.
type graphDef struct {
	kind       pih.GraphKind
	nodes      []pih.Node
	edges      []pih.Edge
	incidences []pih.Incidence
}

func pattern() *graphDef { return &graphDef{kind: pih.KindPattern} }
func nacGraph() *graphDef {
	return &graphDef{kind: pih.KindNAC}
}

func (d *graphDef) val(cid string, attrs pih.Attrs) *graphDef {
	d.nodes = append(d.nodes, pih.Node{Cid: pih.Cid(cid), Type: "val", Attrs: attrs})
	return d
}

func (d *graphDef) obj(cid string, attrs pih.Attrs) *graphDef {
	d.nodes = append(d.nodes, pih.Node{Cid: pih.Cid(cid), Type: "obj", Attrs: attrs})
	return d
}

func (d *graphDef) event(cid, opcode string, attrs pih.Attrs) *graphDef {
	if attrs == nil {
		attrs = pih.Attrs{}
	}
	if _, ok := attrs["opcode"]; !ok {
		attrs["opcode"] = pih.String(opcode)
	}
	d.edges = append(d.edges, pih.Edge{Cid: pih.Cid(cid), Type: "event", Label: opcode, Attrs: attrs})
	return d
}

// anyEvent adds an event edge with no opcode guard; it embeds onto any
// operation.
func (d *graphDef) anyEvent(cid string) *graphDef {
	d.edges = append(d.edges, pih.Edge{Cid: pih.Cid(cid), Type: "event"})
	return d
}

func (d *graphDef) inc(edge, node string, role pih.Role, idx int) *graphDef {
	d.incidences = append(d.incidences, pih.Incidence{
		Edge: pih.Cid(edge), Node: pih.Cid(node), Role: role, Idx: idx,
	})
	return d
}

func (d *graphDef) instance(cid string) *pih.GraphInstance {
	return &pih.GraphInstance{
		Core: pih.GraphCore{Nodes: d.nodes, Edges: d.edges, Incidences: d.incidences},
		Kind: d.kind,
		Cid:  pih.Cid(cid),
	}
}

// mustRule builds and validates a catalog rule; the catalog is static,
// so a failure here is a programming error.
func mustRule(id string, l, r *pih.GraphInstance, nacs []rule.SchemaNac) *rule.RuleDPO {
	out, err := rule.FromLR(id, l, r, nacs, nil)
	if err != nil {
		panic(fmt.Sprintf("builtin rule %s: %v", id, err))
	}
	return out
}
