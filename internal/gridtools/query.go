package gridtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmtorres/gridsync/internal/queryval"
	"github.com/dmtorres/gridsync/internal/registry"
	"github.com/dmtorres/gridsync/internal/syncer"
	"github.com/mark3labs/mcp-go/mcp"
)

// QueryTool handles the query_records MCP tool.
type QueryTool struct {
	orch *syncer.Orchestrator
}

// NewQueryTool creates a QueryTool.
func NewQueryTool(orch *syncer.Orchestrator) *QueryTool {
	return &QueryTool{orch: orch}
}

// Definition returns the MCP tool definition for query_records.
func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("query_records",
		mcp.WithDescription(
			"Validate a query against the table's schema and execute it on the platform. "+
				"Syncs the schema first when it is not cached. Records are returned exactly as the "+
				"platform answers — this tool never filters results. Prefer passing app_id: resolving "+
				"the owning application without it requires scanning every known application.",
		),
		mcp.WithString("table_id",
			mcp.Required(),
			mcp.Description("Table identifier"),
		),
		mcp.WithString("app_id",
			mcp.Description("Owning application identifier (strongly recommended)"),
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description(`Query as JSON, e.g. {"equal":{"status":"open"},"limit":25}`),
		),
	)
}

// Handle processes the query_records tool call.
func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tableID := req.GetString("table_id", "")
	if tableID == "" {
		return resultErr("'table_id' is required", "missing argument"), nil
	}
	appID := req.GetString("app_id", "")

	q, err := parseQuery(req.GetString("query", ""))
	if err != nil {
		return resultErr(err.Error(), "query is not valid JSON"), nil
	}

	outcome, err := t.orch.QueryRecords(ctx, appID, tableID, q)

	var verr *queryval.ValidationError
	switch {
	case errors.As(err, &verr):
		return resultErr(verr.Error(), "query failed validation; fix the violations and retry"), nil
	case errors.Is(err, registry.ErrNotFound):
		return resultErr(err.Error(), "table or application is unknown; check the identifiers"), nil
	case err != nil:
		return resultErr(err.Error(), "query execution failed"), nil
	}

	return resultOK(outcome, fmt.Sprintf("%d record(s) from table %q", len(outcome.Records), tableID)), nil
}
