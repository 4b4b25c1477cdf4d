package wire

import (
	"phone-auth/internal/adaptor"
	"phone-auth/internal/data/repository"
	"phone-auth/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// wireUser configures profile and avatar routes, all authenticated
func wireUser(
	r chi.Router,
	userHandler *adaptor.UserHandler,
	repo *repository.Repository,
	log *zap.Logger,
) {
	r.With(middleware.AuthSession(repo.Session, log)).Route("/api/user", func(r chi.Router) {
		r.Get("/profile", userHandler.GetProfile)
		r.Patch("/profile", userHandler.UpdateProfile)
		r.Post("/avatar", userHandler.UploadAvatar)
		r.Delete("/avatar", userHandler.DeleteAvatar)
	})
}
