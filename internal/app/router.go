package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/ai-job-agent/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-job-agent/internal/adapter/observability"
	"github.com/fairyhunter13/ai-job-agent/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
//
// Request deadlines are enforced here per route rather than by a
// server-wide write timeout: a global deadline would sever the event
// websocket and abort chat turns that legitimately run for minutes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	rpm := cfg.RateLimitPerMin
	if rpm <= 0 {
		rpm = 30
	}
	turnBudget := cfg.TurnTimeout
	if turnBudget <= 0 {
		turnBudget = 5 * time.Minute
	}
	restBudget := cfg.HTTPWriteTimeout
	if restBudget <= 0 {
		restBudget = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Token issuance is public and brute-forceable, so it shares the
	// mutating-endpoint rate limit.
	r.Group(func(pub chi.Router) {
		pub.Use(httprate.LimitByIP(rpm, time.Minute))
		pub.Post("/auth/token", srv.TokenHandler())
	})

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// The websocket authenticates with a first-frame token because
	// browsers cannot attach headers to a websocket dial.
	r.Get("/ws", srv.WSHandler())

	r.Group(func(api chi.Router) {
		api.Use(srv.Tokens.BearerAuth)

		// LLM-bound turns get the full turn budget.
		api.Group(func(turn chi.Router) {
			turn.Use(httpserver.TimeoutMiddleware(turnBudget))
			turn.Use(httprate.LimitByIP(rpm, time.Minute))
			turn.Post("/chat", srv.ChatHandler())
			turn.Post("/jobs/search", srv.JobsSearchHandler())
		})

		api.Group(func(rest chi.Router) {
			rest.Use(httpserver.TimeoutMiddleware(restBudget))

			rest.Get("/chat/history/{session_id}", srv.HistoryHandler())

			rest.Get("/cv/list", srv.CVListHandler())
			rest.Get("/cv/tailored/{id}/download", srv.TailoredDownloadHandler())
			rest.Get("/cv/{id}", srv.CVGetHandler())

			rest.Get("/jobs/list", srv.JobsListHandler())
			rest.Get("/jobs/{id}", srv.JobGetHandler())
			rest.Get("/applications", srv.ApplicationsListHandler())

			rest.Get("/observability/quota", srv.QuotaHandler())
			rest.Get("/observability/executions", srv.ExecutionsHandler())
			rest.Get("/observability/api-usage", srv.APIUsageHandler())
			rest.Get("/observability/gmail-watcher", srv.WatcherStatusHandler())

			rest.Get("/settings/model", srv.ModelGetHandler())
			rest.Get("/settings/profile", srv.ProfileGetHandler())

			rest.Group(func(mut chi.Router) {
				mut.Use(httprate.LimitByIP(rpm, time.Minute))
				mut.Post("/cv/upload", srv.CVUploadHandler())
				mut.Delete("/cv/{id}", srv.CVDeleteHandler())
				mut.Patch("/cv/tailored/{id}", srv.TailoredUpdateHandler())
				mut.Post("/applications/{id}/approve", srv.ApplicationApproveHandler())
				mut.Post("/observability/gmail-watcher/toggle", srv.WatcherToggleHandler())
				mut.Post("/settings/model", srv.ModelSetHandler())
				mut.Patch("/settings/profile", srv.ProfilePatchHandler())
			})
		})
	})

	return httpserver.SecurityHeaders(r)
}
