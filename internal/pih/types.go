package pih

import (
	"fmt"
	"regexp"
	"strings"
)

// Cid is a content-derived identifier. Two elements are the same element
// iff their CIDs are equal; all cross-references between elements use CIDs.
type Cid string

func (c Cid) String() string { return string(c) }

// IsZero reports whether the CID is unset.
func (c Cid) IsZero() bool { return c == "" }

// idPattern constrains human-assigned element ids used in rule and pattern
// documents before content addressing derives the final CID.
var idPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-:.]{0,127}$`)

// ValidateID checks a human-assigned identifier against the allowed pattern.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid id %q: must match %s", id, idPattern.String())
	}
	return nil
}

// Role tags an incidence with the part a node plays for a hyperedge.
type Role string

const (
	RoleDataIn  Role = "DataIn"
	RoleDataOut Role = "DataOut"
	RoleCtrlIn  Role = "CtrlIn"
	RoleCtrlOut Role = "CtrlOut"
	RoleObj     Role = "Obj"
)

// ValidRoles defines the allowed incidence roles.
var ValidRoles = map[Role]bool{
	RoleDataIn:  true,
	RoleDataOut: true,
	RoleCtrlIn:  true,
	RoleCtrlOut: true,
	RoleObj:     true,
}

// PortDirection defines the direction of a node port.
type PortDirection string

const (
	PortIn            PortDirection = "in"
	PortOut           PortDirection = "out"
	PortBidirectional PortDirection = "bidirectional"
)

// Port is a named connection point on a node. Edge endpoints may address a
// specific port via the "#node.port" path syntax.
type Port struct {
	Name      string        `json:"name"`
	Direction PortDirection `json:"direction"`
	Type      string        `json:"type,omitempty"`
	Attrs     Attrs         `json:"attrs,omitempty"`
}

// Node is a typed value or object node in the hypergraph.
//
// Ownership: a node belongs to exactly one graph; rules own their own
// L/K/R node sets disjoint from any target graph.
type Node struct {
	Cid          Cid      `json:"cid"`
	Labels       []string `json:"labels,omitempty"`
	Type         string   `json:"type"`
	Ports        []Port   `json:"ports,omitempty"`
	Attrs        Attrs    `json:"attrs,omitempty"`
	ComponentRef string   `json:"component_ref,omitempty"`
}

// HasLabel reports whether the node carries the given label.
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Edge is a typed hyperedge. Src and Tgt reference a node CID or a
// "#node.port" path. In the PIH variant the full fan-in/fan-out of an
// event edge is carried by Incidences; Src/Tgt cover the plain binary case.
type Edge struct {
	Cid   Cid    `json:"cid"`
	Label string `json:"label,omitempty"`
	Type  string `json:"type"`
	Src   string `json:"src,omitempty"`
	Tgt   string `json:"tgt,omitempty"`
	Attrs Attrs  `json:"attrs,omitempty"`
}

// Incidence connects a hyperedge to a node under a role with an optional
// positional index.
//
// Invariant: (edge, node, role, idx) is unique within a graph; an edge's
// positional DataIn/DataOut indices must be contiguous from 0.
type Incidence struct {
	Edge  Cid   `json:"edge"`
	Node  Cid   `json:"node"`
	Role  Role  `json:"role"`
	Idx   int   `json:"idx"`
	Attrs Attrs `json:"attrs,omitempty"`
}

// Key returns the uniqueness key of the incidence within its graph.
func (inc Incidence) Key() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d", inc.Edge, inc.Node, inc.Role, inc.Idx)
}

// Boundary exposes ports of internal nodes as the graph's interface.
type Boundary struct {
	Expose      []string `json:"expose,omitempty"` // "#nodeCID.portName"
	Constraints Attrs    `json:"constraints,omitempty"`
}

// GraphCore is the raw element content of a graph: nodes, hyperedges,
// incidences, an optional boundary, and graph-level attrs.
type GraphCore struct {
	Nodes      []Node      `json:"nodes"`
	Edges      []Edge      `json:"edges"`
	Incidences []Incidence `json:"incidences,omitempty"`
	Boundary   *Boundary   `json:"boundary,omitempty"`
	Attrs      Attrs       `json:"attrs,omitempty"`
}

// GraphKind tags how a graph instance is interpreted by the matcher.
// NAC graphs are never themselves rewritten.
type GraphKind string

const (
	KindGraph   GraphKind = "Graph"
	KindRule    GraphKind = "Rule"
	KindPattern GraphKind = "Pattern"
	KindNAC     GraphKind = "NAC"
	KindAC      GraphKind = "AC"
)

// ValidGraphKinds defines the allowed graph kinds.
var ValidGraphKinds = map[GraphKind]bool{
	KindGraph:   true,
	KindRule:    true,
	KindPattern: true,
	KindNAC:     true,
	KindAC:      true,
}

// Typing maps element CIDs to type names for typed-graph checking.
type Typing struct {
	NodeTypes map[string]string `json:"node_types,omitempty"`
	EdgeTypes map[string]string `json:"edge_types,omitempty"`
}

// GraphInstance is a graph with an interpretation tag and a content CID
// over its core.
type GraphInstance struct {
	Core   GraphCore `json:"core"`
	Kind   GraphKind `json:"kind"`
	Cid    Cid       `json:"cid"`
	Typing *Typing   `json:"typing,omitempty"`
}

// EndpointRef is a parsed edge endpoint: a node CID plus an optional port.
type EndpointRef struct {
	Node Cid
	Port string
}

// ParseEndpoint parses an edge endpoint reference. Plain strings are node
// CIDs; "#node.port" paths select a specific port.
func ParseEndpoint(ref string) (EndpointRef, error) {
	if ref == "" {
		return EndpointRef{}, fmt.Errorf("empty endpoint reference")
	}
	if !strings.HasPrefix(ref, "#") {
		return EndpointRef{Node: Cid(ref)}, nil
	}

	body := ref[1:]
	dot := strings.LastIndex(body, ".")
	if dot <= 0 || dot == len(body)-1 {
		return EndpointRef{}, fmt.Errorf("malformed port path %q: want #node.port", ref)
	}
	return EndpointRef{Node: Cid(body[:dot]), Port: body[dot+1:]}, nil
}
