package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurora-ops/aurora-ops/internal/assignment"
	"github.com/aurora-ops/aurora-ops/internal/audit"
	"github.com/aurora-ops/aurora-ops/internal/authz"
	"github.com/aurora-ops/aurora-ops/internal/catalog"
	"github.com/aurora-ops/aurora-ops/internal/observability"
	"github.com/aurora-ops/aurora-ops/internal/policy"
	"github.com/aurora-ops/aurora-ops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	CatalogHandler    *catalog.Handler
	AssignmentHandler *assignment.Handler
	PolicyHandler     *policy.Handler
	AuditHandler      *audit.Handler
	JobHandler        *jobs.Handler
	Pool              *pgxpool.Pool
	Authz             authz.Middleware
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Aurora defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				params.Logger.Error("health ping", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Route("/roles", func(roles chi.Router) {
			roles.With(params.Authz.Require(authz.PermRoleView)).Get("/", params.CatalogHandler.ListRoles)
			roles.With(params.Authz.Require(authz.PermRoleView)).Get("/{roleID}", params.CatalogHandler.GetRole)
			roles.With(params.Authz.Require(authz.PermRoleEdit)).Post("/", params.CatalogHandler.CreateRole)
			roles.With(params.Authz.Require(authz.PermRoleEdit)).Put("/{roleID}", params.CatalogHandler.UpdateRole)
			roles.With(params.Authz.Require(authz.PermRoleEdit)).Delete("/{roleID}", params.CatalogHandler.DeleteRole)
			roles.With(params.Authz.Require(authz.PermRoleEdit)).Put("/{roleID}/permissions", params.CatalogHandler.SetPermissions)
		})

		api.With(params.Authz.Require(authz.PermPermissionView)).
			Get("/permissions", params.CatalogHandler.ListPermissions)

		api.Route("/assignments", func(assignments chi.Router) {
			// The handler applies the contextual rules itself; the route
			// guard only covers the base permission.
			assignments.With(params.Authz.Require(authz.PermRoleAssign)).Post("/", params.AssignmentHandler.Assign)
			assignments.With(params.Authz.Require(authz.PermRoleAssign)).Post("/{assignmentID}/deactivate", params.AssignmentHandler.Deactivate)
			assignments.With(params.Authz.Require(authz.PermRoleAssign)).Delete("/{assignmentID}", params.AssignmentHandler.Revoke)
		})

		// Any authenticated principal may check their own access; the
		// handler rejects anonymous callers itself.
		api.Post("/access-checks", params.PolicyHandler.Check)

		api.Route("/principals/{principalID}", func(principals chi.Router) {
			principals.With(params.Authz.Require(authz.PermRoleView)).Get("/assignments", params.AssignmentHandler.List)
			principals.With(params.Authz.Require(authz.PermRoleView)).Get("/effective", params.AssignmentHandler.Effective)
		})

		api.With(params.Authz.Require(authz.PermReportView)).
			Get("/audit", params.AuditHandler.Timeline)

		if params.JobHandler != nil {
			api.Route("/jobs", func(jobRoutes chi.Router) {
				jobRoutes.Use(params.Authz.Require(authz.PermReportView))
				params.JobHandler.MountRoutes(jobRoutes)
			})
		}
	})

	return r
}
