// Package gateway holds the identity/SMS providers that send and check phone
// OTP codes. The OTP service only sees the Gateway interface.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"phone-auth/pkg/utils"

	"go.uber.org/zap"
)

var (
	ErrInvalidCode     = errors.New("invalid verification code")
	ErrSessionNotFound = errors.New("verification session not found")
	ErrSessionExpired  = errors.New("verification session expired")
	ErrPhoneMissing    = errors.New("provider did not return a phone number")
)

// SendResult describes an accepted send. VerificationID is empty when the
// client obtains its session handle from the provider directly.
type SendResult struct {
	VerificationID string
}

type VerifyResult struct {
	PhoneNumber    string
	ProviderUserID string
}

type Gateway interface {
	// RegisterSend asks the provider to deliver (or prepare) a code for phone.
	RegisterSend(ctx context.Context, phone string) (*SendResult, error)
	// Verify checks code against the provider session identified by verificationToken
	// and returns the phone number the provider vouches for.
	Verify(ctx context.Context, verificationToken, code string) (*VerifyResult, error)
}

// ProviderError is a non-2xx answer from a remote provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status=%d code=%s", e.Provider, e.StatusCode, e.Code)
}

// New builds the gateway selected by cfg.Provider. ctx bounds background
// work such as JWKS refreshes.
func New(ctx context.Context, cfg utils.GatewayConfig, otp utils.OTPConfig, log *zap.Logger) (Gateway, error) {
	switch cfg.Provider {
	case "dev":
		return NewDevGateway(otp, log), nil
	case "firebase":
		return NewIdentityToolkitGateway(cfg.IdentityToolkitURL, cfg.FirebaseAPIKey, cfg.Timeout, log), nil
	case "idtoken":
		return NewIDTokenGateway(ctx, cfg.JWKSURL, cfg.FirebaseProjectID, log)
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}
