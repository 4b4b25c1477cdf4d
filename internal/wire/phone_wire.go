package wire

import (
	"phone-auth/internal/adaptor"
	"phone-auth/pkg/middleware"
	"phone-auth/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// wirePhone configures the OTP routes. The request throttle sits in front of the
// per-user OTP clock and only guards against request floods.
func wirePhone(
	r chi.Router,
	phoneHandler *adaptor.PhoneHandler,
	deps Deps,
	config *utils.Config,
	log *zap.Logger,
) {
	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewMemoryCounter()
	}

	r.Route("/api/auth/phone", func(r chi.Router) {
		r.Use(middleware.AuthSession(deps.Repo.Session, log))
		r.Use(middleware.RateLimit(limiter, config.RateLimit.Requests, config.RateLimit.Window, "phone", log))

		r.Post("/send-otp", phoneHandler.SendOTP)
		r.Post("/verify-otp", phoneHandler.VerifyOTP)
		r.Post("/resend-otp", phoneHandler.ResendOTP)
	})
}
