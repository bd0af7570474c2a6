package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestRun_NoModeIsUsageError(t *testing.T) {
	// WHAT: Without -scenario, -mcp or -journal, run returns errUsage.
	// WHY: main owns the exit code, so deferred cleanup in run always runs.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), logger, "", "", "", false, false)
	if !errors.Is(err, errUsage) {
		t.Fatalf("run: %v", err)
	}
}
