// Package remote implements the read-only HTTP client for the base
// platform. It fetches application and table metadata for syncing and
// forwards validated record queries. It never calls a mutating
// endpoint.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dmtorres/gridsync/internal/queryval"
	"github.com/dmtorres/gridsync/internal/registry"
)

// defaultTimeout bounds each remote call when the config supplies none.
const defaultTimeout = 30 * time.Second

// Client talks to the platform REST API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a Client for the given base URL and bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// ─── Wire payloads ───────────────────────────────────────────────────────────

type applicationPayload struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	URL      string         `json:"url"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

type tablePayload struct {
	ID             string                       `json:"id"`
	Name           string                       `json:"name"`
	Type           string                       `json:"type"`
	PrimaryDisplay string                       `json:"primary_display"`
	Fields         map[string]registry.FieldDef `json:"fields"`
}

type recordsPayload struct {
	Records []map[string]any `json:"records"`
}

// ─── Calls ───────────────────────────────────────────────────────────────────

// GetApplication fetches one application's metadata.
func (c *Client) GetApplication(ctx context.Context, appID string) (registry.Application, error) {
	var payload applicationPayload
	url := fmt.Sprintf("%s/api/applications/%s", c.baseURL, appID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return registry.Application{}, fmt.Errorf("remote: application %q: %w", appID, err)
	}
	return registry.Application{
		ID:       payload.ID,
		Name:     payload.Name,
		URL:      payload.URL,
		Status:   payload.Status,
		Metadata: payload.Metadata,
	}, nil
}

// GetTables fetches an application's tables, each carrying its full
// field-level schema.
func (c *Client) GetTables(ctx context.Context, appID string) ([]registry.Table, error) {
	var payload []tablePayload
	url := fmt.Sprintf("%s/api/applications/%s/tables", c.baseURL, appID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, fmt.Errorf("remote: tables of %q: %w", appID, err)
	}

	tables := make([]registry.Table, 0, len(payload))
	for _, p := range payload {
		kind := registry.TableKind(p.Type)
		if kind != registry.KindView {
			kind = registry.KindTable
		}
		tables = append(tables, registry.Table{
			ID:             p.ID,
			AppID:          appID,
			Name:           p.Name,
			Kind:           kind,
			PrimaryDisplay: p.PrimaryDisplay,
			Schema:         registry.Schema(p.Fields),
		})
	}
	return tables, nil
}

// QueryRecords executes an already-validated query and returns the
// platform's records untouched.
func (c *Client) QueryRecords(ctx context.Context, tableID string, q queryval.Query) ([]map[string]any, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("remote: marshal query: %w", err)
	}

	url := fmt.Sprintf("%s/api/tables/%s/records/query", c.baseURL, tableID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: query records of %q: %w", tableID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("remote: query records of %q: %w", tableID, err)
	}

	var payload recordsPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("remote: decode records of %q: %w", tableID, err)
	}
	return payload.Records, nil
}

// ─── Plumbing ────────────────────────────────────────────────────────────────

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return registry.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("platform returned %d", resp.StatusCode)
	}
	return nil
}
