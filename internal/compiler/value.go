package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/graftlabs/graft/internal/pih"
)

// valueFromCUE converts a concrete CUE value to an attribute value.
// Floats are forbidden; attrs carry only null, string, int, bool,
// array, and object.
func valueFromCUE(field string, v cue.Value) (pih.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return pih.Null{}, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return pih.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return pih.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return pih.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := pih.Array{}
		for iter.Next() {
			elem, err := valueFromCUE(field, iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := pih.Object{}
		for iter.Next() {
			elem, err := valueFromCUE(field+"."+iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float attribute values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported attribute kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// attrsFromCUE parses an optional attrs struct. A missing field yields
// nil attrs.
func attrsFromCUE(field string, v cue.Value) (pih.Attrs, error) {
	if !v.Exists() {
		return nil, nil
	}
	parsed, err := valueFromCUE(field, v)
	if err != nil {
		return nil, err
	}
	obj, ok := parsed.(pih.Object)
	if !ok {
		return nil, &CompileError{
			Field:   field,
			Message: "attrs must be an object",
			Pos:     v.Pos(),
		}
	}
	return obj, nil
}

// stringList parses an optional list of strings.
func stringList(field string, v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// requiredString reads a mandatory string field from a struct value.
func requiredString(parent cue.Value, field string) (string, error) {
	fv := parent.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     parent.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// optionalString reads an optional string field, returning the default
// when absent.
func optionalString(parent cue.Value, field, def string) (string, error) {
	fv := parent.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// optionalInt reads an optional integer field, returning the default
// when absent.
func optionalInt(parent cue.Value, field string, def int64) (int64, error) {
	fv := parent.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}
