package queryval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmtorres/gridsync/internal/registry"
)

// SchemaReader is the slice of the registry this package reads from.
type SchemaReader interface {
	GetTableSchema(tableID string) (registry.Schema, error)
}

// ValidationResult is the full outcome of validating one query.
// Errors block execution; warnings are advisory only.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ValidationError carries every violation found in a query, not just
// the first.
type ValidationError struct {
	TableID    string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("queryval: invalid query against table %q: %s",
		e.TableID, strings.Join(e.Violations, "; "))
}

// BuiltQuery is a validated query annotated for execution.
type BuiltQuery struct {
	Query      Query      `json:"query"`
	Complexity Complexity `json:"complexity"`
	Limit      int        `json:"limit"`
	IndexHint  string     `json:"index_hint,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// ValidateQuery checks a candidate query against a schema and returns
// every violation found in one pass.
//
// Hard errors: unknown filter field, range filter on a non-numeric
// field, unknown sort field, limit outside [1, 1000]. Warnings:
// string or fuzzy filters on non-string-like fields (values may still
// coerce upstream).
func ValidateQuery(tableID string, schema registry.Schema, q Query) ValidationResult {
	var errs, warns []string

	for _, field := range sortedKeys(q.Equal) {
		if !fieldKnown(schema, field) {
			errs = append(errs, unknownField(field, tableID))
		}
	}

	for _, field := range sortedKeys(q.Range) {
		def, ok := schema[field]
		if !ok && !reservedFields[field] {
			errs = append(errs, unknownField(field, tableID))
			continue
		}
		if ok && !def.Type.IsNumeric() {
			errs = append(errs, fmt.Sprintf(
				"range filter on field %q requires a numeric type, got %q", field, def.Type))
		}
	}

	for _, field := range sortedKeys(q.Contains) {
		def, ok := schema[field]
		if !ok && !reservedFields[field] {
			errs = append(errs, unknownField(field, tableID))
			continue
		}
		if ok && !def.Type.IsStringLike() {
			warns = append(warns, fmt.Sprintf(
				"substring filter on %s field %q may not match as expected", def.Type, field))
		}
	}

	for _, field := range sortedKeys(q.Fuzzy) {
		def, ok := schema[field]
		if !ok && !reservedFields[field] {
			errs = append(errs, unknownField(field, tableID))
			continue
		}
		if ok && !def.Type.IsStringLike() {
			warns = append(warns, fmt.Sprintf(
				"fuzzy filter on %s field %q may not match as expected", def.Type, field))
		}
	}

	for _, field := range sortedKeys(q.Sort) {
		if !fieldKnown(schema, field) {
			errs = append(errs, fmt.Sprintf(
				"sort field %q does not exist in table %q", field, tableID))
		}
	}

	if q.Limit != 0 && (q.Limit < 1 || q.Limit > 1000) {
		errs = append(errs, fmt.Sprintf("limit %d is outside the allowed range [1, 1000]", q.Limit))
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, Warnings: warns}
}

// BuildQuery validates a candidate query and, when clean, annotates it
// with a complexity tier, a default limit if none was chosen, and an
// index hint when the query is a single equality filter on a field with
// a presence constraint.
//
// Requires the table's schema to already be in the registry: returns
// registry.ErrNotFound (wrapped) otherwise — this function never
// triggers a sync.
func BuildQuery(store SchemaReader, tableID string, q Query) (*BuiltQuery, error) {
	schema, err := store.GetTableSchema(tableID)
	if err != nil {
		return nil, fmt.Errorf("queryval: schema of %q: %w", tableID, err)
	}

	res := ValidateQuery(tableID, schema, q)
	if !res.Valid {
		return nil, &ValidationError{TableID: tableID, Violations: res.Errors}
	}

	built := &BuiltQuery{
		Query:      q,
		Complexity: classify(q),
		Limit:      q.Limit,
		Warnings:   res.Warnings,
	}
	if built.Limit == 0 {
		built.Limit = defaultLimits[built.Complexity]
	}
	built.Query.Limit = built.Limit

	if q.predicateCount() == 1 && len(q.Equal) == 1 {
		for field := range q.Equal {
			if def, ok := schema[field]; ok && def.Constraints != nil && def.Constraints.Required {
				built.IndexHint = field
			}
		}
	}

	return built, nil
}

func unknownField(field, tableID string) string {
	return fmt.Sprintf("field %q does not exist in table %q", field, tableID)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
