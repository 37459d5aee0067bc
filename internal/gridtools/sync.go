package gridtools

import (
	"context"
	"fmt"
	"time"

	"github.com/dmtorres/gridsync/internal/syncer"
	"github.com/mark3labs/mcp-go/mcp"
)

// SyncTool handles the sync_application_schema MCP tool.
type SyncTool struct {
	orch *syncer.Orchestrator
}

// NewSyncTool creates a SyncTool.
func NewSyncTool(orch *syncer.Orchestrator) *SyncTool {
	return &SyncTool{orch: orch}
}

// Definition returns the MCP tool definition for sync_application_schema.
func (t *SyncTool) Definition() mcp.Tool {
	return mcp.NewTool("sync_application_schema",
		mcp.WithDescription(
			"Sync an application's table schemas from the platform into the local registry. "+
				"Skipped automatically when the cached schema is still fresh, unless force_sync is set.",
		),
		mcp.WithString("app_id",
			mcp.Required(),
			mcp.Description("Application identifier on the platform"),
		),
		mcp.WithBoolean("force_sync",
			mcp.Description("Sync even if the local schema is fresh (default: false)"),
		),
		mcp.WithNumber("sync_interval_seconds",
			mcp.Description("Register a periodic re-sync every N seconds; replaces any existing timer for this application"),
		),
	)
}

// Handle processes the sync_application_schema tool call.
func (t *SyncTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appID := req.GetString("app_id", "")
	if appID == "" {
		return resultErr("'app_id' is required", "missing argument"), nil
	}

	opts := syncer.Options{
		Force:    boolArg(req, "force_sync", false),
		Interval: time.Duration(intArg(req, "sync_interval_seconds", 0)) * time.Second,
	}

	res, err := t.orch.SyncApplication(ctx, appID, opts)
	if err != nil {
		return resultErr(err.Error(), fmt.Sprintf("sync of %q failed", appID)), nil
	}

	msg := fmt.Sprintf("application %q is up to date", appID)
	if res.Synced {
		msg = fmt.Sprintf("application %q synced, %d table(s) changed", appID, len(res.Changes))
	}
	return resultOK(res, msg), nil
}
