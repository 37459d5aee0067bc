// Package gridtools provides the MCP tool handlers for the schema
// registry and validated query surface.
//
// Each tool follows the same pattern:
// - A struct with dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Every tool answers with a uniform JSON envelope:
// {success, data|error, message}.
package gridtools

import (
	"encoding/json"
	"fmt"

	"github.com/dmtorres/gridsync/internal/queryval"
	"github.com/mark3labs/mcp-go/mcp"
)

// envelope is the uniform tool response shape.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}

// resultOK wraps data in a success envelope.
func resultOK(data any, message string) *mcp.CallToolResult {
	return render(envelope{Success: true, Data: data, Message: message})
}

// resultErr wraps a failure in an error envelope. Tool-level failures
// are reported through the envelope, not as protocol errors.
func resultErr(detail, message string) *mcp.CallToolResult {
	return render(envelope{Success: false, Error: detail, Message: message})
}

func render(e envelope) *mcp.CallToolResult {
	raw, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding response: %v", err))
	}
	return mcp.NewToolResultText(string(raw))
}

// parseQuery decodes the JSON query argument shared by the validation
// and query tools.
func parseQuery(raw string) (queryval.Query, error) {
	var q queryval.Query
	if raw == "" {
		return q, nil
	}
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return q, fmt.Errorf("parsing query JSON: %w", err)
	}
	return q, nil
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
