package entity

import "github.com/google/uuid"

type OTPAuditAction string

const (
	OTPActionSend          OTPAuditAction = "SEND"
	OTPActionResend        OTPAuditAction = "RESEND"
	OTPActionVerifySuccess OTPAuditAction = "VERIFY_SUCCESS"
	OTPActionVerifyFailed  OTPAuditAction = "VERIFY_FAILED"
)

// OTPAuditLog is an append-only record of one send/resend/verify outcome.
type OTPAuditLog struct {
	BaseSimple
	UserID         uuid.UUID      `db:"user_id"`
	PhoneNumber    string         `db:"phone_number"`
	Action         OTPAuditAction `db:"action"`
	VerificationID *string        `db:"verification_id"`
	Success        bool           `db:"success"`
	ErrorMessage   *string        `db:"error_message"`
}
