package request

type SendOTPRequest struct {
	CountryCode string `json:"country_code" validate:"required,e164_cc"`
	PhoneNumber string `json:"phone_number" validate:"required,phone_digits"`
}

type VerifyOTPRequest struct {
	VerificationID string `json:"verification_id" validate:"required"`
	OTPCode        string `json:"otp_code" validate:"required,otp6"`
}

// ResendOTPRequest carries the full number, country code included.
type ResendOTPRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,e164_full"`
}
