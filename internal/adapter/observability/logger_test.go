package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/fairyhunter13/ai-job-agent/internal/config"
)

func TestSetupLogger_LevelPerEnvironment(t *testing.T) {
	dev := SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"})
	if !dev.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("dev logger should emit debug")
	}

	prod := SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc"})
	if prod.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("prod logger should suppress debug")
	}
	if !prod.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("prod logger should emit info")
	}
}

func TestSetupLogger_LogLevelOverride(t *testing.T) {
	lg := SetupLogger(config.Config{AppEnv: "prod", LogLevel: "warn"})
	if lg.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("warn override should suppress info")
	}

	// Garbage values fall back to the environment default.
	lg = SetupLogger(config.Config{AppEnv: "prod", LogLevel: "shouting"})
	if !lg.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("unparseable level should keep the prod default")
	}
}
