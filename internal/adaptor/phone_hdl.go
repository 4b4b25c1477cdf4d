package adaptor

import (
	"encoding/json"
	"net/http"

	"phone-auth/internal/dto/request"
	"phone-auth/internal/dto/response"
	"phone-auth/internal/usecase"
	"phone-auth/pkg/metrics"
	"phone-auth/pkg/utils"

	"go.uber.org/zap"
)

type PhoneHandler struct {
	service usecase.PhoneService
	log     *zap.Logger
}

func NewPhoneHandler(service usecase.PhoneService, log *zap.Logger) *PhoneHandler {
	return &PhoneHandler{
		service: service,
		log:     log,
	}
}

// SendOTP handles POST /api/auth/phone/send-otp
func (h *PhoneHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.SendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeResult(w, "send", invalidBody())
		return
	}

	h.writeResult(w, "send", h.service.SendOTP(r.Context(), userID, &req))
}

// VerifyOTP handles POST /api/auth/phone/verify-otp
func (h *PhoneHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeResult(w, "verify", invalidBody())
		return
	}

	h.writeResult(w, "verify", h.service.VerifyOTP(r.Context(), userID, &req))
}

// ResendOTP handles POST /api/auth/phone/resend-otp
func (h *PhoneHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.ResendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeResult(w, "resend", invalidBody())
		return
	}

	h.writeResult(w, "resend", h.service.ResendOTP(r.Context(), userID, &req))
}

// writeResult maps a classified OTP outcome to an HTTP status.
func (h *PhoneHandler) writeResult(w http.ResponseWriter, operation string, res *usecase.PhoneOTPResult) {
	metrics.OTPOutcomesTotal.WithLabelValues(operation, res.Status()).Inc()

	var errs any
	if len(res.Errors) > 0 {
		errs = res.Errors
	}

	switch res.Status() {
	case usecase.StatusOTPSent, usecase.StatusOTPResent, usecase.StatusVerified:
		utils.ResponseJSON(w, http.StatusOK, true, res.Message, res.Data, nil)

	case usecase.StatusTooManyRequests:
		retryAfter := 0
		if res.Data.RetryAfter != nil {
			retryAfter = *res.Data.RetryAfter
		}
		utils.ResponseTooManyRequests(w, res.Message, retryAfter, res.Data)

	case usecase.StatusLocked:
		utils.ResponseJSON(w, http.StatusForbidden, false, res.Message, res.Data, nil)

	case usecase.StatusValidationError,
		usecase.StatusInvalidOTP,
		usecase.StatusPhoneMismatch,
		usecase.StatusPhoneAlreadyBound:
		utils.ResponseJSON(w, http.StatusBadRequest, false, res.Message, res.Data, errs)

	case usecase.StatusSendOTPFailed, usecase.StatusResendOTPFailed:
		utils.ResponseJSON(w, http.StatusBadGateway, false, res.Message, res.Data, nil)

	default:
		h.log.Error("Unmapped phone OTP outcome", zap.String("status", res.Status()), zap.Int("kind", int(res.Kind)))
		utils.ResponseJSON(w, http.StatusInternalServerError, false, res.Message, res.Data, nil)
	}
}

func invalidBody() *usecase.PhoneOTPResult {
	return &usecase.PhoneOTPResult{
		Kind:    usecase.KindValidation,
		Message: "Invalid request body",
		Data:    response.PhoneOTPResponse{Status: usecase.StatusValidationError},
	}
}
