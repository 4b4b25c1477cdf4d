package repository

import (
	"context"
	"fmt"

	"phone-auth/internal/data/entity"
	"phone-auth/pkg/database"

	"go.uber.org/zap"
)

// OTPAuditRepository appends OTP audit entries. There is no read path.
type OTPAuditRepository interface {
	Append(ctx context.Context, entry *entity.OTPAuditLog) error
}

type otpAuditRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewOTPAuditRepository(db database.Querier, log *zap.Logger) OTPAuditRepository {
	return &otpAuditRepository{
		db:  db,
		log: log.With(zap.String("repository", "otp_audit")),
	}
}

func (r *otpAuditRepository) Append(ctx context.Context, entry *entity.OTPAuditLog) error {
	query := `
		INSERT INTO otp_audit_logs (id, user_id, phone_number, action,
		                            verification_id, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.PhoneNumber,
		entry.Action,
		entry.VerificationID,
		entry.Success,
		entry.ErrorMessage,
		entry.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to append OTP audit entry",
			zap.Error(err),
			zap.String("user_id", entry.UserID.String()),
			zap.String("action", string(entry.Action)),
		)
		return fmt.Errorf("append OTP audit %s for user %s: %w", entry.Action, entry.UserID.String(), err)
	}

	return nil
}
