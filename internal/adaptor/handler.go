package adaptor

import (
	"phone-auth/internal/usecase"
	"phone-auth/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Auth  *AuthHandler
	User  *UserHandler
	Phone *PhoneHandler
}

func NewHandler(service *usecase.Service, config *utils.Config, log *zap.Logger) *Handler {
	return &Handler{
		Auth:  NewAuthHandler(service.Auth, log),
		User:  NewUserHandler(service.User, config.Avatar.MaxBytes, log),
		Phone: NewPhoneHandler(service.Phone, log),
	}
}
