package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rollvault/rollvault/internal/auth"
	"github.com/rollvault/rollvault/internal/characters"
	"github.com/rollvault/rollvault/internal/directory"
	"github.com/rollvault/rollvault/internal/observability"
	"github.com/rollvault/rollvault/internal/shared"
	"github.com/rollvault/rollvault/internal/sheet"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	DirectoryHandler *directory.Handler
	CharacterHandler *characters.Handler
	SheetHandler     *sheet.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Rollvault defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			params.DirectoryHandler.MountUserRoutes(r)
		})

		r.Route("/server/{serverID}", func(r chi.Router) {
			params.DirectoryHandler.MountServerRoute(r)
			r.Route("/characters", func(r chi.Router) {
				params.CharacterHandler.MountGuildRoutes(r)
			})
		})

		r.Route("/characters/{characterID}", func(r chi.Router) {
			params.CharacterHandler.MountCharacterRoutes(r)
			params.SheetHandler.MountRoutes(r)
		})
	})

	return r
}
