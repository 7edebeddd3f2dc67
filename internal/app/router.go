package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/campuskit/userservice/internal/activity"
	"github.com/campuskit/userservice/internal/auth"
	"github.com/campuskit/userservice/internal/authz"
	"github.com/campuskit/userservice/internal/observability"
	"github.com/campuskit/userservice/internal/users"
	"github.com/campuskit/userservice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Authz           *authz.Middleware
	AuthHandler     *auth.Handler
	UsersHandler    *users.Handler
	ActivityHandler *activity.Handler
	JobsHandler     *jobs.Handler
	Pool            *pgxpool.Pool
	Redis           *redis.Client
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Authz:   params.Authz,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", healthHandler(params.Pool, params.Redis))

	loginLimit := 10
	if params.Config != nil && params.Config.LoginRateLimit > 0 {
		loginLimit = params.Config.LoginRateLimit
	}
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(httprate.Limit(loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		params.AuthHandler.MountRoutes(r)
	})
	r.Route("/api/v1/users", params.UsersHandler.MountRoutes)
	r.Route("/api/v1/activities", params.ActivityHandler.MountRoutes)
	if params.JobsHandler != nil {
		r.Route("/api/v1/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// healthHandler reports liveness plus the state of each backing store.
func healthHandler(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		postgres := "ok"
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				postgres = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}
		redisState := "ok"
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				redisState = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		body := `{"status":"ok","postgres":"` + postgres + `","redis":"` + redisState + `"}`
		if status != http.StatusOK {
			body = `{"status":"degraded","postgres":"` + postgres + `","redis":"` + redisState + `"}`
		}
		_, _ = w.Write([]byte(body))
	}
}
