package rule

import (
	"github.com/graftlabs/graft/internal/pih"
)

// Morphisms is a structure-preserving mapping between graph elements:
// node, edge, and port maps keyed by source-element CID.
type Morphisms struct {
	NodeMap map[pih.Cid]pih.Cid `json:"node_map"`
	EdgeMap map[pih.Cid]pih.Cid `json:"edge_map,omitempty"`
	PortMap map[string]string   `json:"port_map,omitempty"`
}

// NewMorphisms returns an empty morphism set.
func NewMorphisms() Morphisms {
	return Morphisms{
		NodeMap: make(map[pih.Cid]pih.Cid),
		EdgeMap: make(map[pih.Cid]pih.Cid),
	}
}

// SchemaNac is a Negative Application Condition: a side-pattern that, if it
// extends the current match into the target, forbids rule application.
//
// MorphismFromL glues NAC elements onto L elements; the NAC's remaining
// elements are the forbidden extension the matcher searches for.
type SchemaNac struct {
	ID          string             `json:"id"`
	Graph       *pih.GraphInstance `json:"graph"` // kind must be NAC
	MorphismsL  Morphisms          `json:"morphism_from_l"`
	Description string             `json:"description,omitempty"`
}

// DanglingMode governs edges incident on deleted nodes that are not
// themselves scheduled for deletion.
type DanglingMode string

const (
	// DanglingForbid rejects the application (classical gluing condition).
	DanglingForbid DanglingMode = "forbid"

	// DanglingAllowWithCleanup deletes the dangling edges too and records
	// them as additional EdgeRemoved changes.
	DanglingAllowWithCleanup DanglingMode = "allow-with-cleanup"
)

// ApplicationCondition carries per-rule matching and deletion policy.
type ApplicationCondition struct {
	Injective  bool         `json:"injective"`
	Dangling   DanglingMode `json:"dangling"`
	AttrsGuard pih.Attrs    `json:"attrs_guard,omitempty"`
}

// DefaultApplicationCondition returns the defaults: injective matching and
// the dangling condition enforced.
func DefaultApplicationCondition() ApplicationCondition {
	return ApplicationCondition{
		Injective: true,
		Dangling:  DanglingForbid,
	}
}

// Effects is optional metadata applied to preserved K-image nodes after a
// successful application: a cost annotation and label rewrites.
type Effects struct {
	Cost         *int64   `json:"cost,omitempty"`
	LabelsAdd    []string `json:"labels_add,omitempty"`
	LabelsRemove []string `json:"labels_remove,omitempty"`
}

// RuleDPO is a double-pushout rewrite rule.
//
// Invariant: ML and MR are total injective maps from K into L and R; every
// element of K has an image in both (the gluing interface). Validate
// enforces this at load time.
type RuleDPO struct {
	ID      string                `json:"id"`
	L       *pih.GraphInstance    `json:"l"`
	K       *pih.GraphInstance    `json:"k"`
	R       *pih.GraphInstance    `json:"r"`
	ML      Morphisms             `json:"m_l"` // K -> L
	MR      Morphisms             `json:"m_r"` // K -> R
	Nacs    []SchemaNac           `json:"nacs,omitempty"`
	AppCond *ApplicationCondition `json:"app_cond,omitempty"`
	Effects *Effects              `json:"effects,omitempty"`
}

// Condition returns the rule's application condition, defaulted when the
// document omitted it.
func (r *RuleDPO) Condition() ApplicationCondition {
	if r.AppCond == nil {
		return DefaultApplicationCondition()
	}
	cond := *r.AppCond
	if cond.Dangling == "" {
		cond.Dangling = DanglingForbid
	}
	return cond
}

// CostObjective selects the optimization direction for query cost.
type CostObjective string

const (
	ObjectiveMin CostObjective = "min"
	ObjectiveMax CostObjective = "max"
)

// QueryCost orders query matches by a cost expression.
type QueryCost struct {
	Objective CostObjective `json:"objective"`
	Expr      string        `json:"expr"`
}

// QueryLimits bounds a query search.
type QueryLimits struct {
	MaxSteps  int   `json:"max_steps,omitempty"`
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

// Query is a standalone pattern search, also usable as a strategy guard
// predicate (existence of at least one match under the same NAC rules).
type Query struct {
	ID      string             `json:"id"`
	Pattern *pih.GraphInstance `json:"pattern"`
	Nacs    []SchemaNac        `json:"nacs,omitempty"`
	Cost    *QueryCost         `json:"cost,omitempty"`
	Limits  *QueryLimits       `json:"limits,omitempty"`
}

// RuleSet maps rule ids to rules for strategy execution.
// Lookup is by the rule's declared ID.
type RuleSet map[string]*RuleDPO

// QuerySet maps query ids to queries for strategy guards.
type QuerySet map[string]*Query
