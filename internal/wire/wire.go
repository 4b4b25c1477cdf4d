package wire

import (
	"net/http"

	"phone-auth/internal/adaptor"
	"phone-auth/internal/data/repository"
	"phone-auth/internal/gateway"
	"phone-auth/internal/usecase"
	"phone-auth/pkg/metrics"
	"phone-auth/pkg/middleware"
	"phone-auth/pkg/storage"
	"phone-auth/pkg/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App holds the wired router
type App struct {
	Router *chi.Mux
}

// Deps are the outside-world collaborators built in main
type Deps struct {
	Repo    *repository.Repository
	Gateway gateway.Gateway
	Avatars *storage.LocalStore
	Limiter middleware.Counter
}

// Wiring builds services, handlers and routes
func Wiring(deps Deps, config *utils.Config, logger *zap.Logger) *App {
	service := usecase.NewService(deps.Repo, deps.Gateway, deps.Avatars, config, logger)
	handler := adaptor.NewHandler(service, config, logger)

	router := setupRouter(handler, deps, config, logger)

	return &App{
		Router: router,
	}
}

func setupRouter(
	handler *adaptor.Handler,
	deps Deps,
	config *utils.Config,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS())

	wireAuth(r, handler.Auth, deps.Repo, logger)
	wireUser(r, handler.User, deps.Repo, logger)
	wirePhone(r, handler.Phone, deps, config, logger)

	if deps.Avatars != nil {
		prefix := deps.Avatars.BaseURL
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(deps.Avatars.FileSystem())))
	}

	r.Handle("/metrics", metrics.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
