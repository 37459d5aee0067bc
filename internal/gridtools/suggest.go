package gridtools

import (
	"context"

	"github.com/dmtorres/gridsync/internal/queryval"
	"github.com/dmtorres/gridsync/internal/registry"
	"github.com/mark3labs/mcp-go/mcp"
)

// SuggestTool handles the suggest_query MCP tool.
type SuggestTool struct {
	store *registry.Store
}

// NewSuggestTool creates a SuggestTool.
func NewSuggestTool(store *registry.Store) *SuggestTool {
	return &SuggestTool{store: store}
}

// Definition returns the MCP tool definition for suggest_query.
func (t *SuggestTool) Definition() mcp.Tool {
	return mcp.NewTool("suggest_query",
		mcp.WithDescription(
			"Propose a query for a table from a natural-language description. "+
				"The result is a heuristic suggestion that MUST be reviewed and confirmed before executing — "+
				"it is never guaranteed to be correct.",
		),
		mcp.WithString("table_id",
			mcp.Required(),
			mcp.Description("Table identifier"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What to look for, in plain language (e.g. \"show me the latest active orders\")"),
		),
	)
}

// Handle processes the suggest_query tool call.
func (t *SuggestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	if tableID == "" {
		return resultErr("'table_id' is required", "missing argument"), nil
	}
	description := req.GetString("description", "")
	if description == "" {
		return resultErr("'description' is required", "missing argument"), nil
	}

	suggestion := queryval.SuggestQuery(t.store, tableID, description)
	return resultOK(suggestion, "suggestion only — confirm before executing"), nil
}
