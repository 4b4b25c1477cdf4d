package repository

import (
	"context"
	"errors"
	"fmt"

	"phone-auth/internal/data/entity"
	"phone-auth/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned by Revoke when no live session holds the token.
var ErrSessionNotFound = errors.New("session not found or already revoked")

// SessionRepository stores the opaque bearer tokens issued at login. The
// phone and profile routes resolve the caller through FindActive.
type SessionRepository interface {
	Create(ctx context.Context, session *entity.Session) error
	// FindActive returns nil, nil unless token names an unrevoked session
	// that has not yet expired.
	FindActive(ctx context.Context, token uuid.UUID) (*entity.Session, error)
	Revoke(ctx context.Context, token uuid.UUID) error
}

type sessionRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewSessionRepository(db database.PgxIface, log *zap.Logger) SessionRepository {
	return &sessionRepository{
		db:  db,
		log: log.With(zap.String("repository", "session")),
	}
}

func (r *sessionRepository) Create(ctx context.Context, session *entity.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token, user_agent, ip_address, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Token,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		r.log.Error("Session insert failed",
			zap.Error(err),
			zap.String("user_id", session.UserID.String()),
			zap.String("session_id", session.ID.String()),
		)
		return fmt.Errorf("insert session for user %s: %w", session.UserID, err)
	}

	return nil
}

func (r *sessionRepository) FindActive(ctx context.Context, token uuid.UUID) (*entity.Session, error) {
	query := `
		SELECT id, user_id, token, user_agent, ip_address, expires_at, revoked_at, created_at
		FROM sessions
		WHERE token = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`

	var session entity.Session
	err := r.db.QueryRow(ctx, query, token).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		// the token is a bearer credential and stays out of the logs
		r.log.Error("Session lookup failed", zap.Error(err))
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	return &session, nil
}

func (r *sessionRepository) Revoke(ctx context.Context, token uuid.UUID) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW()
		WHERE token = $1 AND revoked_at IS NULL
		RETURNING id, user_id
	`

	var sessionID, userID uuid.UUID
	err := r.db.QueryRow(ctx, query, token).Scan(&sessionID, &userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		r.log.Error("Session revoke failed", zap.Error(err))
		return fmt.Errorf("revoke session: %w", err)
	}

	r.log.Debug("Session revoked",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", userID.String()),
	)
	return nil
}
