package store

import (
	"encoding/json"
	"fmt"

	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// marshalGraph serializes a graph instance to JSON TEXT for storage.
// Attribute objects marshal with RFC 8785 key ordering, so equal
// snapshots produce byte-equal rows.
func marshalGraph(g *pih.GraphInstance) (string, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("marshal graph: %w", err)
	}
	return string(data), nil
}

// unmarshalGraph parses a stored graph row back into an instance.
// Attribute values round-trip through pih.Object's UnmarshalJSON, which
// handles large integers via json.Number to avoid float64 precision
// loss.
func unmarshalGraph(data string) (*pih.GraphInstance, error) {
	var g pih.GraphInstance
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	return &g, nil
}

// marshalRule serializes a compiled rule to JSON TEXT.
func marshalRule(r *rule.RuleDPO) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal rule: %w", err)
	}
	return string(data), nil
}

// unmarshalRule parses a stored rule row.
func unmarshalRule(data string) (*rule.RuleDPO, error) {
	var r rule.RuleDPO
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal rule: %w", err)
	}
	return &r, nil
}

// marshalChanges serializes an application's ordered change log.
func marshalChanges(changes []apply.GraphChange) (string, error) {
	data, err := json.Marshal(changes)
	if err != nil {
		return "", fmt.Errorf("marshal changes: %w", err)
	}
	return string(data), nil
}

// unmarshalChanges parses a stored change log.
func unmarshalChanges(data string) ([]apply.GraphChange, error) {
	if data == "" || data == "null" {
		return nil, nil
	}
	var changes []apply.GraphChange
	if err := json.Unmarshal([]byte(data), &changes); err != nil {
		return nil, fmt.Errorf("unmarshal changes: %w", err)
	}
	return changes, nil
}
