package usecase

import (
	"errors"

	"phone-auth/internal/data/repository"
	"phone-auth/internal/gateway"
	"phone-auth/pkg/utils"

	"go.uber.org/zap"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is deactivated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrFileTooLarge       = errors.New("file too large")
	ErrUnsupportedMedia   = errors.New("unsupported image type")
)

type Service struct {
	Auth  AuthService
	User  UserService
	Phone PhoneService
}

func NewService(
	repo *repository.Repository,
	gw gateway.Gateway,
	avatars AvatarStore,
	config *utils.Config,
	log *zap.Logger,
) *Service {
	return &Service{
		Auth:  NewAuthService(repo, config, log),
		User:  NewUserService(repo, avatars, config, log),
		Phone: NewPhoneService(repo.PhoneVerification, gw, config, log),
	}
}
