package queryval_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmtorres/gridsync/internal/queryval"
	"github.com/dmtorres/gridsync/internal/registry"
)

// fakeReader serves schemas from a map, standing in for the registry.
type fakeReader struct {
	schemas map[string]registry.Schema
}

func (f fakeReader) GetTableSchema(tableID string) (registry.Schema, error) {
	schema, ok := f.schemas[tableID]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return schema, nil
}

func floatPtr(v float64) *float64 { return &v }

// ordersSchema is the shared validation fixture.
func ordersSchema() registry.Schema {
	return registry.Schema{
		"name":   {Type: registry.FieldString},
		"total":  {Type: registry.FieldNumber},
		"active": {Type: registry.FieldBoolean},
		"placed": {Type: registry.FieldDatetime},
		"sku": {
			Type:        registry.FieldString,
			Constraints: &registry.Constraints{Required: true},
		},
	}
}

func TestValidateQuery_CleanQuery(t *testing.T) {
	q := queryval.Query{
		Equal: map[string]any{"active": true},
		Range: map[string]queryval.NumericRange{"total": {Low: floatPtr(10)}},
		Sort:  map[string]queryval.SortDirection{"placed": queryval.SortDescending},
		Limit: 50,
	}

	res := queryval.ValidateQuery("orders", ordersSchema(), q)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestValidateQuery_RangeOnStringField(t *testing.T) {
	q := queryval.Query{
		Range: map[string]queryval.NumericRange{
			"name": {Low: floatPtr(1), High: floatPtr(5)},
		},
	}

	res := queryval.ValidateQuery("orders", ordersSchema(), q)
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], `"name"`)
	assert.Contains(t, res.Errors[0], "numeric")
}

func TestValidateQuery_ReportsEveryViolationAtOnce(t *testing.T) {
	q := queryval.Query{
		Equal: map[string]any{"ghost": 1},
		Range: map[string]queryval.NumericRange{"name": {}},
		Sort:  map[string]queryval.SortDirection{"phantom": queryval.SortAscending},
		Limit: 5000,
	}

	res := queryval.ValidateQuery("orders", ordersSchema(), q)
	require.False(t, res.Valid)
	assert.Len(t, res.Errors, 4)
}

func TestValidateQuery_ReservedFieldsAlwaysResolve(t *testing.T) {
	q := queryval.Query{
		Equal: map[string]any{"id": "rec-1"},
		Range: map[string]queryval.NumericRange{"revision": {Low: floatPtr(2)}},
		Sort:  map[string]queryval.SortDirection{"createdAt": queryval.SortDescending},
	}

	res := queryval.ValidateQuery("orders", ordersSchema(), q)
	assert.True(t, res.Valid, "reserved platform fields must validate without a schema entry: %v", res.Errors)
}

func TestValidateQuery_TextFilterOnNonStringFieldWarns(t *testing.T) {
	q := queryval.Query{
		Contains: map[string]string{"total": "10"},
		Fuzzy:    map[string]string{"placed": "yesterday"},
	}

	res := queryval.ValidateQuery("orders", ordersSchema(), q)
	assert.True(t, res.Valid, "type-mismatched text filters are advisory, not blocking")
	assert.Len(t, res.Warnings, 2)
}

func TestValidateQuery_LimitBounds(t *testing.T) {
	schema := ordersSchema()
	tests := []struct {
		name  string
		limit int
		valid bool
	}{
		{"unset limit", 0, true},
		{"lower bound", 1, true},
		{"upper bound", 1000, true},
		{"above upper bound", 1001, false},
		{"negative", -5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := queryval.ValidateQuery("orders", schema, queryval.Query{Limit: tt.limit})
			assert.Equal(t, tt.valid, res.Valid)
		})
	}
}

func TestBuildQuery_DefaultLimitsByComplexity(t *testing.T) {
	store := fakeReader{schemas: map[string]registry.Schema{"orders": ordersSchema()}}

	tests := []struct {
		name       string
		q          queryval.Query
		complexity queryval.Complexity
		limit      int
	}{
		{
			"no predicates is simple",
			queryval.Query{},
			queryval.ComplexitySimple, 100,
		},
		{
			"three predicates is moderate",
			queryval.Query{
				Equal:    map[string]any{"active": true},
				Range:    map[string]queryval.NumericRange{"total": {}},
				Contains: map[string]string{"name": "smith"},
			},
			queryval.ComplexityModerate, 250,
		},
		{
			"any fuzzy predicate is complex",
			queryval.Query{Fuzzy: map[string]string{"name": "smth"}},
			queryval.ComplexityComplex, 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			built, err := queryval.BuildQuery(store, "orders", tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.complexity, built.Complexity)
			assert.Equal(t, tt.limit, built.Limit)
			assert.Equal(t, tt.limit, built.Query.Limit, "the executed query must carry the applied limit")
		})
	}
}

func TestBuildQuery_ExplicitLimitPreserved(t *testing.T) {
	store := fakeReader{schemas: map[string]registry.Schema{"orders": ordersSchema()}}

	built, err := queryval.BuildQuery(store, "orders", queryval.Query{Limit: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, built.Limit)
}

func TestBuildQuery_IndexHint(t *testing.T) {
	store := fakeReader{schemas: map[string]registry.Schema{"orders": ordersSchema()}}

	// Single equality on a required field: hint it.
	built, err := queryval.BuildQuery(store, "orders", queryval.Query{
		Equal: map[string]any{"sku": "A-100"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sku", built.IndexHint)

	// Same filter plus a second predicate: no hint.
	built, err = queryval.BuildQuery(store, "orders", queryval.Query{
		Equal:    map[string]any{"sku": "A-100"},
		Contains: map[string]string{"name": "smith"},
	})
	require.NoError(t, err)
	assert.Empty(t, built.IndexHint)

	// Equality on a field without a presence constraint: no hint.
	built, err = queryval.BuildQuery(store, "orders", queryval.Query{
		Equal: map[string]any{"active": true},
	})
	require.NoError(t, err)
	assert.Empty(t, built.IndexHint)
}

func TestBuildQuery_InvalidQueryCarriesAllViolations(t *testing.T) {
	store := fakeReader{schemas: map[string]registry.Schema{"orders": ordersSchema()}}

	_, err := queryval.BuildQuery(store, "orders", queryval.Query{
		Equal: map[string]any{"ghost": 1},
		Range: map[string]queryval.NumericRange{"name": {}},
	})
	require.Error(t, err)

	var verr *queryval.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "orders", verr.TableID)
	assert.Len(t, verr.Violations, 2)
	assert.Contains(t, verr.Error(), "orders")
}

func TestBuildQuery_UnknownTable(t *testing.T) {
	store := fakeReader{schemas: map[string]registry.Schema{}}

	_, err := queryval.BuildQuery(store, "missing", queryval.Query{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

func TestBuildQuery_ValidationIsComplete(t *testing.T) {
	// Whatever ValidateQuery accepts, BuildQuery must execute without a
	// validation failure.
	store := fakeReader{schemas: map[string]registry.Schema{"orders": ordersSchema()}}
	q := queryval.Query{
		Equal:    map[string]any{"active": true, "id": "rec-9"},
		Contains: map[string]string{"total": "99"},
	}

	res := queryval.ValidateQuery("orders", ordersSchema(), q)
	require.True(t, res.Valid)

	built, err := queryval.BuildQuery(store, "orders", q)
	require.NoError(t, err)
	assert.Equal(t, res.Warnings, built.Warnings)
}
