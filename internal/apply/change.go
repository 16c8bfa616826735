package apply

import (
	"github.com/graftlabs/graft/internal/pih"
)

// ChangeOp names one kind of graph mutation.
type ChangeOp string

const (
	ChangeNodeAdded        ChangeOp = "NodeAdded"
	ChangeNodeRemoved      ChangeOp = "NodeRemoved"
	ChangeNodeModified     ChangeOp = "NodeModified"
	ChangeEdgeAdded        ChangeOp = "EdgeAdded"
	ChangeEdgeRemoved      ChangeOp = "EdgeRemoved"
	ChangeEdgeModified     ChangeOp = "EdgeModified"
	ChangeIncidenceAdded   ChangeOp = "IncidenceAdded"
	ChangeIncidenceRemoved ChangeOp = "IncidenceRemoved"
)

// GraphChange is one entry of the ordered change log. Exactly one of
// Node, Edge, or Incidence is set, matching the operation kind. For
// NodeModified and EdgeModified, Before and After carry the attribute
// state around the mutation; Node/Edge carry the post-mutation element.
type GraphChange struct {
	Op        ChangeOp       `json:"op"`
	Node      *pih.Node      `json:"node,omitempty"`
	Edge      *pih.Edge      `json:"edge,omitempty"`
	Incidence *pih.Incidence `json:"incidence,omitempty"`
	Before    pih.Attrs      `json:"before,omitempty"`
	After     pih.Attrs      `json:"after,omitempty"`
}

// RuleApplication is the record of one committed rewrite.
type RuleApplication struct {
	RuleID string `json:"rule_id"`

	// MatchSignature is the content hash of the match bindings; together
	// with RuleID it makes the application uniquely replayable.
	MatchSignature string `json:"match_signature"`

	// Changes is the ordered mutation log: removals in ascending CID
	// order, then preserved-element modifications, then additions.
	Changes []GraphChange `json:"changes"`

	// Derived maps rule-side element CIDs of fresh R elements to the
	// derived CIDs they were created under.
	Derived map[pih.Cid]pih.Cid `json:"derived,omitempty"`

	// Cost is the rule's declared cost effect, when present.
	Cost *int64 `json:"cost,omitempty"`

	// ResultCid is the content CID of the rewritten graph snapshot.
	ResultCid pih.Cid `json:"result_cid"`
}
