package response

// PhoneOTPResponse is the data payload of the phone OTP endpoints. Optional
// fields are omitted when they do not apply to the outcome.
type PhoneOTPResponse struct {
	Status            string  `json:"status"`
	PhoneNumber       *string `json:"phone_number,omitempty"`
	VerificationID    *string `json:"verification_id,omitempty"`
	ExpiresIn         *int    `json:"expires_in,omitempty"`
	RetryAfter        *int    `json:"retry_after,omitempty"`
	RemainingAttempts *int    `json:"remaining_attempts,omitempty"`
}
