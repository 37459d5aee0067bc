package gridtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmtorres/gridsync/internal/queryval"
	"github.com/dmtorres/gridsync/internal/registry"
	"github.com/mark3labs/mcp-go/mcp"
)

// ValidateTool handles the validate_query MCP tool.
type ValidateTool struct {
	store *registry.Store
}

// NewValidateTool creates a ValidateTool.
func NewValidateTool(store *registry.Store) *ValidateTool {
	return &ValidateTool{store: store}
}

// Definition returns the MCP tool definition for validate_query.
func (t *ValidateTool) Definition() mcp.Tool {
	return mcp.NewTool("validate_query",
		mcp.WithDescription(
			"Validate a candidate query against a table's cached schema before executing it. "+
				"Returns every violation found, plus complexity and default-limit annotations when valid. "+
				"The table must have been synced first.",
		),
		mcp.WithString("table_id",
			mcp.Required(),
			mcp.Description("Table identifier"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description(`Query as JSON, e.g. {"equal":{"active":true},"range":{"age":{"low":18}},"sort":{"createdAt":"descending"},"limit":50}`),
		),
	)
}

// validateData is the payload for a completed validation.
type validateData struct {
	Validation queryval.ValidationResult `json:"validation"`
	Built      *queryval.BuiltQuery      `json:"built,omitempty"`
}

// Handle processes the validate_query tool call.
func (t *ValidateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	if tableID == "" {
		return resultErr("'table_id' is required", "missing argument"), nil
	}

	q, err := parseQuery(req.GetString("query", ""))
	if err != nil {
		return resultErr(err.Error(), "query is not valid JSON"), nil
	}

	schema, err := t.store.GetTableSchema(tableID)
	if errors.Is(err, registry.ErrNotFound) {
		return resultErr(
			fmt.Sprintf("table %q has no cached schema", tableID),
			"sync the owning application first (sync_application_schema)",
		), nil
	}
	if err != nil {
		return resultErr(err.Error(), "reading cached schema failed"), nil
	}

	data := validateData{Validation: queryval.ValidateQuery(tableID, schema, q)}
	if data.Validation.Valid {
		built, err := queryval.BuildQuery(t.store, tableID, q)
		if err != nil {
			return resultErr(err.Error(), "annotating query failed"), nil
		}
		data.Built = built
		return resultOK(data, "query is valid"), nil
	}

	return resultOK(data, fmt.Sprintf("query has %d violation(s)", len(data.Validation.Errors))), nil
}
