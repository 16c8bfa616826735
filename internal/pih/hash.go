package pih

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainNode    = "graft/node/v1"
	DomainEdge    = "graft/edge/v1"
	DomainGraph   = "graft/graph/v1"
	DomainDerived = "graft/derived/v1"
	DomainMatch   = "graft/match/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash exposes domain-separated hashing over pre-canonicalized bytes for
// sibling packages that derive their own identities (match signatures).
func Hash(domain string, canonical []byte) string {
	return hashWithDomain(domain, canonical)
}

// NodeCID computes the content-addressed CID for a node authored under the
// given human id. The id participates in the hash so that two nodes with
// identical content remain distinct elements; the node's own Cid field is
// excluded.
func NodeCID(id string, n Node) (Cid, error) {
	labels := make(Array, len(n.Labels))
	for i, l := range n.Labels {
		labels[i] = String(l)
	}

	obj := Object{
		"id":     String(id),
		"type":   String(n.Type),
		"labels": labels,
	}
	if n.Attrs != nil {
		obj["attrs"] = n.Attrs
	}
	if n.ComponentRef != "" {
		obj["component_ref"] = String(n.ComponentRef)
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("NodeCID: %w", err)
	}
	return Cid(hashWithDomain(DomainNode, canonical)), nil
}

// EdgeCID computes the content-addressed CID for an edge authored under the
// given human id.
func EdgeCID(id string, e Edge) (Cid, error) {
	obj := Object{
		"id":   String(id),
		"type": String(e.Type),
	}
	if e.Label != "" {
		obj["label"] = String(e.Label)
	}
	if e.Src != "" {
		obj["src"] = String(e.Src)
	}
	if e.Tgt != "" {
		obj["tgt"] = String(e.Tgt)
	}
	if e.Attrs != nil {
		obj["attrs"] = e.Attrs
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EdgeCID: %w", err)
	}
	return Cid(hashWithDomain(DomainEdge, canonical)), nil
}

// DerivedCID computes a deterministic CID for an element created during
// rule application (the R\K additions). Hashing the rule id, the match
// signature, and the rule-local element id makes re-running a strategy on
// the same snapshot yield byte-identical graphs.
func DerivedCID(ruleID, matchSignature, elementID string) Cid {
	obj := Object{
		"rule":    String(ruleID),
		"match":   String(matchSignature),
		"element": String(elementID),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		// Object of three strings cannot fail canonical marshaling.
		panic(fmt.Sprintf("DerivedCID: %v", err))
	}
	return Cid(hashWithDomain(DomainDerived, canonical))
}
