// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the concrete registry,
// remote client, and orchestrator, and injects them into the tool
// handlers. No business logic lives here — only wiring.
package server

import (
	"context"
	"fmt"

	"github.com/dmtorres/gridsync/internal/config"
	"github.com/dmtorres/gridsync/internal/gridtools"
	"github.com/dmtorres/gridsync/internal/logging"
	"github.com/dmtorres/gridsync/internal/registry"
	"github.com/dmtorres/gridsync/internal/remote"
	"github.com/dmtorres/gridsync/internal/syncer"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools registered.
//
// The returned cleanup function cancels periodic sync timers and closes
// the registry database; it must be called on shutdown (typically via
// defer). It is always non-nil and safe to call.
func New() (*server.MCPServer, func(), error) {
	cfg, err := config.Load(context.Background())
	if err != nil {
		return nil, noop, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.Setup(cfg.LogLevel)
	if err != nil {
		return nil, noop, fmt.Errorf("configuring logging: %w", err)
	}

	store, err := registry.New(registry.Config{DataDir: cfg.DataDir, Logger: logger})
	if err != nil {
		return nil, noop, fmt.Errorf("opening schema registry: %w", err)
	}

	client := remote.NewClient(cfg.BaseURL, cfg.APIToken, cfg.RemoteTimeout)
	orch := syncer.New(store, client, logger, cfg.SchemaMaxAge)

	cleanup := func() {
		if err := orch.Close(); err != nil {
			logger.Warn("shutdown: closing orchestrator", "error", err)
		}
	}

	s := server.NewMCPServer(
		"gridsync",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	syncTool := gridtools.NewSyncTool(orch)
	s.AddTool(syncTool.Definition(), syncTool.Handle)

	validateTool := gridtools.NewValidateTool(store)
	s.AddTool(validateTool.Definition(), validateTool.Handle)

	suggestTool := gridtools.NewSuggestTool(store)
	s.AddTool(suggestTool.Definition(), suggestTool.Handle)

	historyTool := gridtools.NewHistoryTool(store)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	cachedTool := gridtools.NewCachedSchemaTool(store)
	s.AddTool(cachedTool.Definition(), cachedTool.Handle)

	queryTool := gridtools.NewQueryTool(orch)
	s.AddTool(queryTool.Definition(), queryTool.Handle)

	return s, cleanup, nil
}

// noop is the default cleanup when initialization fails early.
func noop() {}

// serverInstructions tells the calling agent how to use the tools.
func serverInstructions() string {
	return `You have access to gridsync, a schema-aware gateway to a base platform
(applications contain tables, tables have typed fields).

## Workflow

1. Call sync_application_schema with the app_id before anything else.
   The sync is cheap: it is skipped automatically when the local schema
   cache is still fresh.
2. Inspect schemas with get_cached_schema, audit drift with
   get_schema_history.
3. Validate queries with validate_query before running them, or let
   query_records validate and execute in one step.
4. Always pass app_id to query_records. Without it the server has to
   scan every known application's table list to find the owner, which
   is slow.

## Queries

Queries are JSON with these optional sections:
- equal:    {"field": value} exact matches
- range:    {"field": {"low": n, "high": n}} numeric bounds (numeric fields only)
- contains: {"field": "text"} substring matches
- fuzzy:    {"field": "text"} approximate matches
- sort:     {"field": "ascending"|"descending"}
- limit:    1..1000 (a sensible default is applied when omitted)

Validation reports EVERY violation at once, so fix them all in one
pass. Warnings do not block execution.

## Suggestions

suggest_query turns plain language into a query skeleton. It is a
heuristic: ALWAYS show the suggestion to the user and confirm before
executing it. Never run an unreviewed suggestion.

## Limits

This server never writes to the platform and never filters returned
records. The platform is the sole source of truth for data.`
}
