package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/authgate/app"
	"github.com/upb/authgate/handlers"
	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/utils"
)

// SetupRoutes configures all application routes and middleware.
// Every request, including unknown paths, passes the authenticator and the
// access policy before routing, so a 404 is only visible to callers the
// policy lets through.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	if deps.Config.Server.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(deps.AuthMiddleware.Authenticate)
	r.Use(deps.AccessPolicy.Enforce)

	health := handlers.NewHealthHandler(deps.HealthChecks, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// deps.Audit may be nil; its methods discard events then
	login := handlers.NewAuthHandler(deps.AuthService, deps.Codec, deps.Audit, deps.Metrics, deps.Logger)
	r.With(middleware.LoginRateLimit(deps.Limiter, deps.Audit, deps.Metrics, deps.Logger)).
		Post("/login", login.HandleLogin)

	userAdmin := handlers.NewUserHandler(deps.UserService, deps.Audit, deps.Logger)
	auditLog := handlers.NewAuditHandler(deps.Repos.Audit, deps.Logger)
	r.Route("/api", func(r chi.Router) {
		r.Get("/user", handlers.HandleUser)
		r.Get("/me", handlers.HandleMe)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/", handlers.HandleAdmin)
			r.Get("/users", userAdmin.HandleListUsers)
			r.Post("/users", userAdmin.HandleCreateUser)
			r.Put("/users/{username}/roles", userAdmin.HandleSetRoles)
			r.Put("/users/{username}/enabled", userAdmin.HandleSetEnabled)
			r.Get("/audit", auditLog.HandleList)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w)
	})

	return r
}
