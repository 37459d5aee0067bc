package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmtorres/gridsync/internal/queryval"
	"github.com/dmtorres/gridsync/internal/registry"
	"github.com/dmtorres/gridsync/internal/remote"
)

func TestGetApplication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/applications/app1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "app1",
			"name":     "CRM",
			"url":      "https://base.example.com/app1",
			"status":   "active",
			"metadata": map[string]any{"region": "eu"},
		})
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, "secret", 0)
	app, err := c.GetApplication(context.Background(), "app1")
	require.NoError(t, err)
	assert.Equal(t, "app1", app.ID)
	assert.Equal(t, "CRM", app.Name)
	assert.Equal(t, "active", app.Status)
	assert.Equal(t, "eu", app.Metadata["region"])
}

func TestGetApplication_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, "", 0)
	_, err := c.GetApplication(context.Background(), "ghost")
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

func TestGetApplication_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, "", 0)
	_, err := c.GetApplication(context.Background(), "app1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, registry.ErrNotFound))
	assert.Contains(t, err.Error(), "502")
}

func TestGetTables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/applications/app1/tables", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"id":   "tbl-orders",
				"name": "Orders",
				"type": "table",
				"fields": map[string]any{
					"total": map[string]any{"type": "number"},
				},
			},
			{
				"id":   "view-open",
				"name": "Open orders",
				"type": "view",
				"fields": map[string]any{
					"total": map[string]any{"type": "number"},
				},
			},
			{
				"id":     "tbl-odd",
				"name":   "Odd",
				"type":   "grid", // unknown kinds normalize to table
				"fields": map[string]any{},
			},
		})
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, "", 0)
	tables, err := c.GetTables(context.Background(), "app1")
	require.NoError(t, err)
	require.Len(t, tables, 3)

	assert.Equal(t, registry.KindTable, tables[0].Kind)
	assert.Equal(t, registry.KindView, tables[1].Kind)
	assert.Equal(t, registry.KindTable, tables[2].Kind)

	assert.Equal(t, "app1", tables[0].AppID)
	assert.Equal(t, registry.FieldNumber, tables[0].Schema["total"].Type)
}

func TestQueryRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/tables/tbl-orders/records/query", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var q queryval.Query
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "open", q.Equal["status"])
		assert.Equal(t, 25, q.Limit)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{"id": "rec-1", "status": "open"},
				{"id": "rec-2", "status": "open"},
			},
		})
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, "", 0)
	records, err := c.QueryRecords(context.Background(), "tbl-orders", queryval.Query{
		Equal: map[string]any{"status": "open"},
		Limit: 25,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-1", records[0]["id"])
}

func TestQueryRecords_TableNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, "", 0)
	_, err := c.QueryRecords(context.Background(), "ghost", queryval.Query{})
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

func TestNoAuthorizationHeaderWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "app1", "name": "CRM"})
	}))
	defer srv.Close()

	c := remote.NewClient(srv.URL, "", 0)
	_, err := c.GetApplication(context.Background(), "app1")
	require.NoError(t, err)
}
