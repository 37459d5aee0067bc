// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var levelVar = new(slog.LevelVar)

// Setup builds a JSON logger at the given level and installs it as the
// slog default. Output goes to stderr: stdout belongs to the MCP stdio
// transport.
func Setup(level string) (*slog.Logger, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}
	if err := levelVar.UnmarshalText([]byte(normalized)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelVar,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
