package repository

import (
	"phone-auth/pkg/database"

	"go.uber.org/zap"
)

type Repository struct {
	User              UserRepository
	Session           SessionRepository
	Profile           ProfileRepository
	PhoneVerification PhoneVerificationRepository
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	return &Repository{
		User:              NewUserRepository(db, log),
		Session:           NewSessionRepository(db, log),
		Profile:           NewProfileRepository(db, log),
		PhoneVerification: NewPhoneVerificationRepository(db, log),
	}
}
