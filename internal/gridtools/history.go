package gridtools

import (
	"context"
	"fmt"

	"github.com/dmtorres/gridsync/internal/registry"
	"github.com/mark3labs/mcp-go/mcp"
)

// HistoryTool handles the get_schema_history MCP tool.
type HistoryTool struct {
	store *registry.Store
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(store *registry.Store) *HistoryTool {
	return &HistoryTool{store: store}
}

// Definition returns the MCP tool definition for get_schema_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("get_schema_history",
		mcp.WithDescription(
			"List every stored schema version of a table, newest first. "+
				"Audit and debugging surface: versions are append-only and immutable.",
		),
		mcp.WithString("table_id",
			mcp.Required(),
			mcp.Description("Table identifier"),
		),
	)
}

// Handle processes the get_schema_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	if tableID == "" {
		return resultErr("'table_id' is required", "missing argument"), nil
	}

	versions, err := t.store.GetSchemaHistory(tableID)
	if err != nil {
		return resultErr(err.Error(), "reading schema history failed"), nil
	}
	if len(versions) == 0 {
		return resultErr(
			fmt.Sprintf("table %q has no schema history", tableID),
			"sync the owning application first (sync_application_schema)",
		), nil
	}

	return resultOK(versions, fmt.Sprintf("%d version(s) of table %q", len(versions), tableID)), nil
}
