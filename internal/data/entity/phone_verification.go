package entity

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the phone OTP lifecycle state stored on the user row.
type VerificationStatus string

const (
	VerificationUnset           VerificationStatus = ""
	VerificationOTPSent         VerificationStatus = "OTP_SENT"
	VerificationOTPResent       VerificationStatus = "OTP_RESENT"
	VerificationVerified        VerificationStatus = "VERIFIED"
	VerificationInvalidOTP      VerificationStatus = "INVALID_OTP"
	VerificationLocked          VerificationStatus = "LOCKED"
	VerificationTooManyRequests VerificationStatus = "TOO_MANY_REQUESTS"
)

// PhoneVerification is the per-user verification record. It lives on the users
// table and is only mutated by the phone OTP service.
type PhoneVerification struct {
	UserID             uuid.UUID          `db:"id"`
	PhoneNumber        *string            `db:"phone_number"`
	PhoneVerified      bool               `db:"phone_verified"`
	VerificationStatus VerificationStatus `db:"verification_status"`
	OTPAttempts        int                `db:"otp_attempts"`
	LastOTPSentAt      *time.Time         `db:"last_otp_sent_at"`
	VerificationID     *string            `db:"verification_id"`
}

// BoundPhone returns the stored phone number or "" when none is bound.
func (p *PhoneVerification) BoundPhone() string {
	if p.PhoneNumber == nil {
		return ""
	}
	return *p.PhoneNumber
}

func (p *PhoneVerification) IsLocked() bool {
	return p.VerificationStatus == VerificationLocked
}
