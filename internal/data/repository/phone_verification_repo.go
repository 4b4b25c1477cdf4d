package repository

import (
	"context"
	"errors"
	"fmt"

	"phone-auth/internal/data/entity"
	"phone-auth/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrPhoneAlreadyBound is returned by Save when the verified phone number is
// already verified by another user (unique index violation).
var ErrPhoneAlreadyBound = errors.New("phone number already bound to another user")

// ErrUserNotFound is returned when the user row does not exist or was deleted.
var ErrUserNotFound = errors.New("user not found")

// PhoneVerificationTx is the unit of work handed to WithinUserTx. Every call
// runs on the same transaction; nothing is visible to others until it commits.
type PhoneVerificationTx interface {
	// GetForUpdate loads the record and holds its row lock until the
	// transaction ends. Returns ErrUserNotFound for missing users.
	GetForUpdate(ctx context.Context, userID uuid.UUID) (*entity.PhoneVerification, error)
	IsPhoneBoundToOther(ctx context.Context, phone string, userID uuid.UUID) (bool, error)
	Save(ctx context.Context, rec *entity.PhoneVerification) error
	AppendAudit(ctx context.Context, entry *entity.OTPAuditLog) error
}

type PhoneVerificationRepository interface {
	// WithinUserTx runs fn in one transaction, committing only when fn returns nil.
	WithinUserTx(ctx context.Context, fn func(tx PhoneVerificationTx) error) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.PhoneVerification, error)
}

type phoneVerificationRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewPhoneVerificationRepository(db database.PgxIface, log *zap.Logger) PhoneVerificationRepository {
	return &phoneVerificationRepository{
		db:  db,
		log: log.With(zap.String("repository", "phone_verification")),
	}
}

func (r *phoneVerificationRepository) WithinUserTx(ctx context.Context, fn func(tx PhoneVerificationTx) error) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&phoneVerificationTx{
			q:     tx,
			audit: NewOTPAuditRepository(tx, r.log),
			log:   r.log,
		})
	})
}

func (r *phoneVerificationRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.PhoneVerification, error) {
	query := `SELECT ` + phoneVerificationColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`

	rec, err := scanPhoneVerification(r.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find phone verification", zap.Error(err), zap.String("user_id", userID.String()))
		return nil, fmt.Errorf("find phone verification for %s: %w", userID.String(), err)
	}

	return rec, nil
}

const phoneVerificationColumns = `id, phone_number, phone_verified, verification_status,
	otp_attempts, last_otp_sent_at, verification_id`

func scanPhoneVerification(row pgx.Row) (*entity.PhoneVerification, error) {
	var rec entity.PhoneVerification
	err := row.Scan(
		&rec.UserID,
		&rec.PhoneNumber,
		&rec.PhoneVerified,
		&rec.VerificationStatus,
		&rec.OTPAttempts,
		&rec.LastOTPSentAt,
		&rec.VerificationID,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type phoneVerificationTx struct {
	q     database.Querier
	audit OTPAuditRepository
	log   *zap.Logger
}

func (t *phoneVerificationTx) GetForUpdate(ctx context.Context, userID uuid.UUID) (*entity.PhoneVerification, error) {
	query := `SELECT ` + phoneVerificationColumns + `
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE`

	rec, err := scanPhoneVerification(t.q.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		t.log.Error("Failed to lock phone verification", zap.Error(err), zap.String("user_id", userID.String()))
		return nil, fmt.Errorf("lock phone verification for %s: %w", userID.String(), err)
	}

	return rec, nil
}

func (t *phoneVerificationTx) IsPhoneBoundToOther(ctx context.Context, phone string, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE phone_number = $1
			  AND phone_verified = TRUE
			  AND id <> $2
			  AND deleted_at IS NULL
		)
	`

	var bound bool
	if err := t.q.QueryRow(ctx, query, phone, userID).Scan(&bound); err != nil {
		t.log.Error("Failed to check phone binding", zap.Error(err), zap.String("phone", phone))
		return false, fmt.Errorf("check phone binding %s: %w", phone, err)
	}

	return bound, nil
}

func (t *phoneVerificationTx) Save(ctx context.Context, rec *entity.PhoneVerification) error {
	query := `
		UPDATE users
		SET phone_number = $2, phone_verified = $3, verification_status = $4,
		    otp_attempts = $5, last_otp_sent_at = $6, verification_id = $7,
		    updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := t.q.Exec(ctx, query,
		rec.UserID,
		rec.PhoneNumber,
		rec.PhoneVerified,
		rec.VerificationStatus,
		rec.OTPAttempts,
		rec.LastOTPSentAt,
		rec.VerificationID,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrPhoneAlreadyBound
	}
	if err != nil {
		t.log.Error("Failed to save phone verification",
			zap.Error(err),
			zap.String("user_id", rec.UserID.String()),
			zap.String("status", string(rec.VerificationStatus)),
		)
		return fmt.Errorf("save phone verification for %s: %w", rec.UserID.String(), err)
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (t *phoneVerificationTx) AppendAudit(ctx context.Context, entry *entity.OTPAuditLog) error {
	return t.audit.Append(ctx, entry)
}
