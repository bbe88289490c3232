// Package app wires application components and startup helpers.
package app

import (
	"context"
	"log/slog"

	qdrantcli "github.com/fairyhunter13/ai-job-agent/internal/adapter/vector/qdrant"
)

// EnsureInterviewCollection creates the interview-context collection at
// startup so the first prep request does not pay the setup round trip.
// The prep service still ensures lazily, so a failure here only warns.
func EnsureInterviewCollection(ctx context.Context, qcli *qdrantcli.Client, dim int) {
	if qcli == nil {
		return
	}
	if err := qcli.Ensure(ctx, dim); err != nil {
		slog.Warn("qdrant ensure collection failed",
			slog.String("collection", qdrantcli.Collection), slog.Any("error", err))
	}
}
