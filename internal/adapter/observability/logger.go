package observability

import (
	"log/slog"
	"os"

	"github.com/fairyhunter13/ai-job-agent/internal/config"
)

// SetupLogger builds the process logger both binaries install as the
// slog default: text in dev for readability, JSON elsewhere, every line
// tagged with the service and environment. LOG_LEVEL overrides the
// per-environment default; unparseable values are ignored.
func SetupLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.IsDev() {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			level = l
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.IsDev() {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}
