package gridtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmtorres/gridsync/internal/registry"
	"github.com/mark3labs/mcp-go/mcp"
)

// CachedSchemaTool handles the get_cached_schema MCP tool.
type CachedSchemaTool struct {
	store *registry.Store
}

// NewCachedSchemaTool creates a CachedSchemaTool.
func NewCachedSchemaTool(store *registry.Store) *CachedSchemaTool {
	return &CachedSchemaTool{store: store}
}

// Definition returns the MCP tool definition for get_cached_schema.
func (t *CachedSchemaTool) Definition() mcp.Tool {
	return mcp.NewTool("get_cached_schema",
		mcp.WithDescription(
			"Return the locally cached schema of a table without touching the platform. "+
				"Fails with a sync hint when the table has never been synced.",
		),
		mcp.WithString("table_id",
			mcp.Required(),
			mcp.Description("Table identifier"),
		),
	)
}

// Handle processes the get_cached_schema tool call.
func (t *CachedSchemaTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	if tableID == "" {
		return resultErr("'table_id' is required", "missing argument"), nil
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

	return resultOK(schema, fmt.Sprintf("cached schema of table %q (%d field(s))", tableID, len(schema))), nil
}
