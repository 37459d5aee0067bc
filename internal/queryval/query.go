// Package queryval validates and annotates candidate queries against a
// table schema from the registry, and produces heuristic query
// suggestions from free text.
//
// It is stateless: all decisions read from the registry's cached
// schemas. It never triggers a sync — callers that get ErrNotFound must
// sync first.
package queryval

import (
	"github.com/dmtorres/gridsync/internal/registry"
)

// SortDirection orders a sort predicate.
type SortDirection string

const (
	SortAscending  SortDirection = "ascending"
	SortDescending SortDirection = "descending"
)

// NumericRange bounds a range filter. Nil bounds are open.
type NumericRange struct {
	Low  *float64 `json:"low,omitempty"`
	High *float64 `json:"high,omitempty"`
}

// Query is a candidate query before validation. A zero Limit means the
// caller did not choose one; BuildQuery fills in a default by
// complexity tier.
type Query struct {
	Equal    map[string]any           `json:"equal,omitempty"`
	Range    map[string]NumericRange  `json:"range,omitempty"`
	Contains map[string]string        `json:"contains,omitempty"`
	Fuzzy    map[string]string        `json:"fuzzy,omitempty"`
	Sort     map[string]SortDirection `json:"sort,omitempty"`
	Limit    int                      `json:"limit,omitempty"`
}

// predicateCount is the total number of filter predicates across all
// categories. Sort and limit are not predicates.
func (q Query) predicateCount() int {
	return len(q.Equal) + len(q.Range) + len(q.Contains) + len(q.Fuzzy)
}

// Complexity is the heuristic tier of a query, used to pick a sensible
// default result limit.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// defaultLimits maps each tier to the result limit applied when the
// caller did not choose one. All values sit inside the validator's
// [1, 1000] envelope.
var defaultLimits = map[Complexity]int{
	ComplexitySimple:   100,
	ComplexityModerate: 250,
	ComplexityComplex:  500,
}

// classify derives the complexity tier from predicate count and fuzzy
// presence. Any fuzzy predicate makes the query complex outright.
func classify(q Query) Complexity {
	if len(q.Fuzzy) > 0 {
		return ComplexityComplex
	}
	switch n := q.predicateCount(); {
	case n > 5:
		return ComplexityComplex
	case n >= 3:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}

// reservedFields are virtual fields every table carries on the platform
// side without declaring them in its schema.
var reservedFields = map[string]bool{
	"id":        true,
	"revision":  true,
	"tableId":   true,
	"createdAt": true,
	"updatedAt": true,
}

// fieldKnown reports whether a field name resolves against the schema
// or the reserved virtual set.
func fieldKnown(schema registry.Schema, name string) bool {
	if reservedFields[name] {
		return true
	}
	_, ok := schema[name]
	return ok
}
