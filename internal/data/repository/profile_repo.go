package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ProfileRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.UserProfile, error)
	// GetOrCreate returns the user's profile, inserting an empty one first if needed.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*entity.UserProfile, error)
	Update(ctx context.Context, profile *entity.UserProfile) error
	UpdateAvatar(ctx context.Context, userID uuid.UUID, key, url string, uploadedAt time.Time) error
	ClearAvatar(ctx context.Context, userID uuid.UUID) error
}

type profileRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewProfileRepository(db database.PgxIface, log *zap.Logger) ProfileRepository {
	return &profileRepository{
		db:  db,
		log: log.With(zap.String("repository", "profile")),
	}
}

const profileColumns = `id, user_id, nickname, gender, age, degree, counseling_record,
	motivation_1, motivation_2, motivation_3, avatar_key, avatar_url, avatar_uploaded_at,
	created_at, updated_at`

func scanProfile(row pgx.Row) (*entity.UserProfile, error) {
	var p entity.UserProfile
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Nickname,
		&p.Gender,
		&p.Age,
		&p.Degree,
		&p.CounselingRecord,
		&p.Motivation1,
		&p.Motivation2,
		&p.Motivation3,
		&p.AvatarKey,
		&p.AvatarURL,
		&p.AvatarUploadedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE user_id = $1`

	profile, err := scanProfile(r.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find profile", zap.Error(err), zap.String("user_id", userID.String()))
		return nil, fmt.Errorf("find profile for %s: %w", userID.String(), err)
	}

	return profile, nil
}

func (r *profileRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*entity.UserProfile, error) {
	// DO UPDATE on a no-op column so RETURNING yields the existing row too
	query := `
		INSERT INTO user_profiles (id, user_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING ` + profileColumns

	profile, err := scanProfile(r.db.QueryRow(ctx, query, uuid.New(), userID))
	if err != nil {
		r.log.Error("Failed to get or create profile", zap.Error(err), zap.String("user_id", userID.String()))
		return nil, fmt.Errorf("get or create profile for %s: %w", userID.String(), err)
	}

	return profile, nil
}

func (r *profileRepository) Update(ctx context.Context, profile *entity.UserProfile) error {
	query := `
		UPDATE user_profiles
		SET nickname = $2, gender = $3, age = $4, degree = $5,
		    motivation_1 = $6, motivation_2 = $7, motivation_3 = $8,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		profile.UserID,
		profile.Nickname,
		profile.Gender,
		profile.Age,
		profile.Degree,
		profile.Motivation1,
		profile.Motivation2,
		profile.Motivation3,
	).Scan(&profile.UpdatedAt)

	if err != nil {
		r.log.Error("Failed to update profile", zap.Error(err), zap.String("user_id", profile.UserID.String()))
		return fmt.Errorf("update profile for %s: %w", profile.UserID.String(), err)
	}

	return nil
}

func (r *profileRepository) UpdateAvatar(ctx context.Context, userID uuid.UUID, key, url string, uploadedAt time.Time) error {
	query := `
		UPDATE user_profiles
		SET avatar_key = $2, avatar_url = $3, avatar_uploaded_at = $4, updated_at = NOW()
		WHERE user_id = $1
	`

	if _, err := r.db.Exec(ctx, query, userID, key, url, uploadedAt); err != nil {
		r.log.Error("Failed to update avatar", zap.Error(err), zap.String("user_id", userID.String()))
		return fmt.Errorf("update avatar for %s: %w", userID.String(), err)
	}

	return nil
}

func (r *profileRepository) ClearAvatar(ctx context.Context, userID uuid.UUID) error {
	query := `
		UPDATE user_profiles
		SET avatar_key = NULL, avatar_url = NULL, avatar_uploaded_at = NULL, updated_at = NOW()
		WHERE user_id = $1
	`

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		r.log.Error("Failed to clear avatar", zap.Error(err), zap.String("user_id", userID.String()))
		return fmt.Errorf("clear avatar for %s: %w", userID.String(), err)
	}

	return nil
}
