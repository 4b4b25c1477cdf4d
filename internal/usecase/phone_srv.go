package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/internal/data/repository"
	"phone-auth/internal/dto/request"
	"phone-auth/internal/dto/response"
	"phone-auth/internal/gateway"
	"phone-auth/pkg/metrics"
	"phone-auth/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorKind classifies a phone OTP outcome for the transport layer.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindPolicy
	KindUpstream
	KindStorage
)

// Outcome statuses returned to callers. Some of them double as stored
// verification states.
const (
	StatusOTPSent           = string(entity.VerificationOTPSent)
	StatusOTPResent         = string(entity.VerificationOTPResent)
	StatusVerified          = string(entity.VerificationVerified)
	StatusInvalidOTP        = string(entity.VerificationInvalidOTP)
	StatusLocked            = string(entity.VerificationLocked)
	StatusTooManyRequests   = string(entity.VerificationTooManyRequests)
	StatusValidationError   = "VALIDATION_ERROR"
	StatusPhoneAlreadyBound = "PHONE_ALREADY_BOUND"
	StatusPhoneMismatch     = "PHONE_MISMATCH"
	StatusSendOTPFailed     = "SEND_OTP_FAILED"
	StatusResendOTPFailed   = "RESEND_OTP_FAILED"
	StatusInternalError     = "INTERNAL_ERROR"
)

// PhoneOTPResult is the classified outcome of one controller call. Errors is
// only set for validation failures.
type PhoneOTPResult struct {
	Kind    ErrorKind
	Message string
	Errors  map[string]string
	Data    response.PhoneOTPResponse
}

func (r *PhoneOTPResult) Status() string {
	return r.Data.Status
}

type PhoneService interface {
	SendOTP(ctx context.Context, userID uuid.UUID, req *request.SendOTPRequest) *PhoneOTPResult
	VerifyOTP(ctx context.Context, userID uuid.UUID, req *request.VerifyOTPRequest) *PhoneOTPResult
	ResendOTP(ctx context.Context, userID uuid.UUID, req *request.ResendOTPRequest) *PhoneOTPResult
}

type phoneService struct {
	repo    repository.PhoneVerificationRepository
	gateway gateway.Gateway
	otp     utils.OTPConfig
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewPhoneService(
	repo repository.PhoneVerificationRepository,
	gw gateway.Gateway,
	config *utils.Config,
	log *zap.Logger,
) PhoneService {
	return &phoneService{
		repo:    repo,
		gateway: gw,
		otp:     config.OTP,
		timeout: config.Gateway.Timeout,
		now:     time.Now,
		log:     log.With(zap.String("service", "phone")),
	}
}

func (s *phoneService) SendOTP(ctx context.Context, userID uuid.UUID, req *request.SendOTPRequest) *PhoneOTPResult {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Send OTP validation failed", zap.Any("errors", errs))
		return validationFailed(errs)
	}

	fullPhone := req.CountryCode + req.PhoneNumber

	var result *PhoneOTPResult
	err := s.repo.WithinUserTx(ctx, func(tx repository.PhoneVerificationTx) error {
		rec, err := tx.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		// only a resend to the bound number lifts a lock
		if rec.IsLocked() {
			s.log.Warn("Send OTP on locked record", zap.String("user_id", userID.String()))
			result = s.locked()
			return nil
		}

		now := s.now()
		if wait := s.retryAfter(rec, now); wait > 0 {
			s.log.Warn("Send OTP rate limited", zap.String("user_id", userID.String()), zap.Int("retry_after", wait))
			result = s.tooManyRequests(wait)
			return nil
		}

		bound, err := tx.IsPhoneBoundToOther(ctx, fullPhone, userID)
		if err != nil {
			return err
		}
		if bound {
			s.log.Warn("Phone already bound to another user", zap.String("user_id", userID.String()), zap.String("phone", fullPhone))
			result = policy(StatusPhoneAlreadyBound, "this phone number is already bound to another account")
			return nil
		}

		sent, gwErr := s.registerSend(ctx, fullPhone)
		if gwErr != nil {
			s.log.Error("Gateway send failed", zap.Error(gwErr), zap.String("user_id", userID.String()), zap.String("phone", fullPhone))
			if err := tx.AppendAudit(ctx, s.auditEntry(userID, fullPhone, entity.OTPActionSend, nil, gwErr)); err != nil {
				return err
			}
			result = upstream(StatusSendOTPFailed, "failed to send verification code")
			return nil
		}

		s.markSent(rec, entity.VerificationOTPSent, fullPhone, sent, now)
		if err := tx.Save(ctx, rec); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, s.auditEntry(userID, fullPhone, entity.OTPActionSend, rec.VerificationID, nil)); err != nil {
			return err
		}

		expiresIn := s.otp.ExpiresInSeconds
		result = &PhoneOTPResult{
			Message: "verification code sent",
			Data: response.PhoneOTPResponse{
				Status:         StatusOTPSent,
				PhoneNumber:    &fullPhone,
				VerificationID: rec.VerificationID,
				ExpiresIn:      &expiresIn,
			},
		}
		return nil
	})

	if err != nil {
		return s.storageFailed("send", userID, err)
	}

	if result.Kind == KindNone {
		s.log.Info("OTP sent", zap.String("user_id", userID.String()), zap.String("phone", fullPhone))
	}
	return result
}

func (s *phoneService) VerifyOTP(ctx context.Context, userID uuid.UUID, req *request.VerifyOTPRequest) *PhoneOTPResult {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Verify OTP validation failed", zap.Any("errors", errs))
		return validationFailed(errs)
	}

	verificationID := req.VerificationID

	var result *PhoneOTPResult
	err := s.repo.WithinUserTx(ctx, func(tx repository.PhoneVerificationTx) error {
		rec, err := tx.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		if rec.IsLocked() {
			s.log.Warn("Verify OTP on locked record", zap.String("user_id", userID.String()))
			result = s.locked()
			return nil
		}

		verified, gwErr := s.verify(ctx, req.VerificationID, req.OTPCode)
		if gwErr != nil {
			return s.verifyFailed(ctx, tx, rec, &verificationID, gwErr, &result)
		}

		if bound := rec.BoundPhone(); bound != "" && bound != verified.PhoneNumber {
			s.log.Warn("Verified phone does not match bound phone",
				zap.String("user_id", userID.String()),
				zap.String("bound", bound),
				zap.String("verified", verified.PhoneNumber),
			)
			if err := tx.AppendAudit(ctx, s.auditEntry(userID, verified.PhoneNumber, entity.OTPActionVerifyFailed,
				&verificationID, errors.New("verified phone does not match bound phone"))); err != nil {
				return err
			}
			result = policy(StatusPhoneMismatch, "phone number does not match")
			return nil
		}

		taken, err := tx.IsPhoneBoundToOther(ctx, verified.PhoneNumber, userID)
		if err != nil {
			return err
		}
		if taken {
			result = policy(StatusPhoneMismatch, "phone number is already bound to another account")
			return nil
		}

		phone := verified.PhoneNumber
		rec.PhoneNumber = &phone
		rec.PhoneVerified = true
		rec.VerificationStatus = entity.VerificationVerified
		rec.OTPAttempts = 0
		if err := tx.Save(ctx, rec); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, s.auditEntry(userID, phone, entity.OTPActionVerifySuccess, &verificationID, nil)); err != nil {
			return err
		}

		result = &PhoneOTPResult{
			Message: "phone number verified",
			Data: response.PhoneOTPResponse{
				Status:      StatusVerified,
				PhoneNumber: &phone,
			},
		}
		return nil
	})

	if errors.Is(err, repository.ErrPhoneAlreadyBound) {
		// lost a race with another user's verify; the unique index rejected the write
		s.log.Warn("Phone bound concurrently by another user", zap.String("user_id", userID.String()))
		return policy(StatusPhoneMismatch, "phone number is already bound to another account")
	}
	if err != nil {
		return s.storageFailed("verify", userID, err)
	}

	if result.Status() == StatusVerified {
		s.log.Info("Phone verified", zap.String("user_id", userID.String()))
	}
	return result
}

// verifyFailed applies the attempt penalty for a rejected code (timeouts
// included) and sets result.
func (s *phoneService) verifyFailed(
	ctx context.Context,
	tx repository.PhoneVerificationTx,
	rec *entity.PhoneVerification,
	verificationID *string,
	gwErr error,
	result **PhoneOTPResult,
) error {
	s.log.Warn("Gateway verify failed", zap.Error(gwErr), zap.String("user_id", rec.UserID.String()))

	audit := s.auditEntry(rec.UserID, rec.BoundPhone(), entity.OTPActionVerifyFailed, verificationID, gwErr)

	// a verified record keeps its state; only the audit trail records the attempt
	if rec.PhoneVerified {
		if err := tx.AppendAudit(ctx, audit); err != nil {
			return err
		}
		*result = s.invalidOTP(s.otp.MaxAttempts)
		return nil
	}

	rec.OTPAttempts++
	if rec.OTPAttempts >= s.otp.MaxAttempts {
		rec.OTPAttempts = s.otp.MaxAttempts
		rec.VerificationStatus = entity.VerificationLocked
	} else {
		rec.VerificationStatus = entity.VerificationInvalidOTP
	}

	if err := tx.Save(ctx, rec); err != nil {
		return err
	}
	if err := tx.AppendAudit(ctx, audit); err != nil {
		return err
	}

	if rec.IsLocked() {
		*result = s.locked()
		return nil
	}
	*result = s.invalidOTP(s.otp.MaxAttempts - rec.OTPAttempts)
	return nil
}

func (s *phoneService) ResendOTP(ctx context.Context, userID uuid.UUID, req *request.ResendOTPRequest) *PhoneOTPResult {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Resend OTP validation failed", zap.Any("errors", errs))
		return validationFailed(errs)
	}

	var result *PhoneOTPResult
	err := s.repo.WithinUserTx(ctx, func(tx repository.PhoneVerificationTx) error {
		rec, err := tx.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		if rec.BoundPhone() != req.PhoneNumber {
			s.log.Warn("Resend OTP for a phone not bound to user", zap.String("user_id", userID.String()))
			result = policy(StatusPhoneMismatch, "phone number does not match")
			return nil
		}

		now := s.now()
		if wait := s.retryAfter(rec, now); wait > 0 {
			s.log.Warn("Resend OTP rate limited", zap.String("user_id", userID.String()), zap.Int("retry_after", wait))
			result = s.tooManyRequests(wait)
			return nil
		}

		sent, gwErr := s.registerSend(ctx, req.PhoneNumber)
		if gwErr != nil {
			s.log.Error("Gateway resend failed", zap.Error(gwErr), zap.String("user_id", userID.String()))
			if err := tx.AppendAudit(ctx, s.auditEntry(userID, req.PhoneNumber, entity.OTPActionResend, nil, gwErr)); err != nil {
				return err
			}
			result = upstream(StatusResendOTPFailed, "failed to resend verification code")
			return nil
		}

		s.markSent(rec, entity.VerificationOTPResent, req.PhoneNumber, sent, now)
		if err := tx.Save(ctx, rec); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, s.auditEntry(userID, req.PhoneNumber, entity.OTPActionResend, rec.VerificationID, nil)); err != nil {
			return err
		}

		retryAfter := s.otp.RateLimitSeconds
		result = &PhoneOTPResult{
			Message: "verification code resent",
			Data: response.PhoneOTPResponse{
				Status:         StatusOTPResent,
				VerificationID: rec.VerificationID,
				RetryAfter:     &retryAfter,
			},
		}
		return nil
	})

	if err != nil {
		return s.storageFailed("resend", userID, err)
	}

	if result.Kind == KindNone {
		s.log.Info("OTP resent", zap.String("user_id", userID.String()))
	}
	return result
}

// ==================== HELPER METHODS ====================

// retryAfter returns the seconds left in the send window, or 0 when a send is allowed.
func (s *phoneService) retryAfter(rec *entity.PhoneVerification, now time.Time) int {
	if rec.LastOTPSentAt == nil {
		return 0
	}
	window := time.Duration(s.otp.RateLimitSeconds) * time.Second
	elapsed := now.Sub(*rec.LastOTPSentAt)
	if elapsed >= window {
		return 0
	}

	wait := s.otp.RateLimitSeconds - int(elapsed.Seconds())
	if wait > s.otp.RateLimitSeconds {
		// last send is in the future (clock skew)
		wait = s.otp.RateLimitSeconds
	}
	if wait < 1 {
		wait = 1
	}
	return wait
}

// markSent resets the lifecycle for a fresh code. A previously verified
// number goes back to unverified until the new code is confirmed.
func (s *phoneService) markSent(rec *entity.PhoneVerification, status entity.VerificationStatus, phone string, sent *gateway.SendResult, now time.Time) {
	rec.PhoneNumber = &phone
	rec.PhoneVerified = false
	rec.VerificationStatus = status
	rec.OTPAttempts = 0
	rec.LastOTPSentAt = &now
	rec.VerificationID = nil
	if sent != nil && sent.VerificationID != "" {
		id := sent.VerificationID
		rec.VerificationID = &id
	}
}

func (s *phoneService) registerSend(ctx context.Context, phone string) (*gateway.SendResult, error) {
	gctx, cancel := s.gatewayContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := s.gateway.RegisterSend(gctx, phone)
	observeGateway("register_send", start, err)
	return res, err
}

func (s *phoneService) verify(ctx context.Context, verificationID, code string) (*gateway.VerifyResult, error) {
	gctx, cancel := s.gatewayContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := s.gateway.Verify(gctx, verificationID, code)
	observeGateway("verify", start, err)
	if err != nil {
		return nil, err
	}
	if res == nil || res.PhoneNumber == "" {
		return nil, gateway.ErrPhoneMissing
	}
	return res, nil
}

func observeGateway(operation string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	metrics.GatewayCallDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}

func (s *phoneService) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *phoneService) auditEntry(userID uuid.UUID, phone string, action entity.OTPAuditAction, verificationID *string, failure error) *entity.OTPAuditLog {
	entry := &entity.OTPAuditLog{
		BaseSimple: entity.BaseSimple{
			ID:        uuid.New(),
			CreatedAt: s.now(),
		},
		UserID:         userID,
		PhoneNumber:    phone,
		Action:         action,
		VerificationID: verificationID,
		Success:        failure == nil,
	}
	if failure != nil {
		msg := failure.Error()
		if errors.Is(failure, context.DeadlineExceeded) {
			msg = "gateway timeout: " + msg
		}
		entry.ErrorMessage = &msg
	}
	return entry
}

func (s *phoneService) tooManyRequests(wait int) *PhoneOTPResult {
	return &PhoneOTPResult{
		Kind:    KindPolicy,
		Message: fmt.Sprintf("too many requests, please wait %d seconds before retrying", wait),
		Data: response.PhoneOTPResponse{
			Status:     StatusTooManyRequests,
			RetryAfter: &wait,
		},
	}
}

func (s *phoneService) locked() *PhoneOTPResult {
	retryAfter := s.otp.LockRetryAfterSeconds
	return &PhoneOTPResult{
		Kind:    KindPolicy,
		Message: "too many failed attempts, please request a new code",
		Data: response.PhoneOTPResponse{
			Status:     StatusLocked,
			RetryAfter: &retryAfter,
		},
	}
}

func (s *phoneService) invalidOTP(remaining int) *PhoneOTPResult {
	return &PhoneOTPResult{
		Kind:    KindPolicy,
		Message: fmt.Sprintf("invalid verification code, %d attempts remaining", remaining),
		Data: response.PhoneOTPResponse{
			Status:            StatusInvalidOTP,
			RemainingAttempts: &remaining,
		},
	}
}

func (s *phoneService) storageFailed(op string, userID uuid.UUID, err error) *PhoneOTPResult {
	s.log.Error("Phone OTP storage failure",
		zap.Error(err),
		zap.String("op", op),
		zap.String("user_id", userID.String()),
	)
	return &PhoneOTPResult{
		Kind:    KindStorage,
		Message: "internal server error",
		Data:    response.PhoneOTPResponse{Status: StatusInternalError},
	}
}

func validationFailed(errs map[string]string) *PhoneOTPResult {
	return &PhoneOTPResult{
		Kind:    KindValidation,
		Message: "invalid input format",
		Errors:  errs,
		Data:    response.PhoneOTPResponse{Status: StatusValidationError},
	}
}

func policy(status, message string) *PhoneOTPResult {
	return &PhoneOTPResult{
		Kind:    KindPolicy,
		Message: message,
		Data:    response.PhoneOTPResponse{Status: status},
	}
}

func upstream(status, message string) *PhoneOTPResult {
	return &PhoneOTPResult{
		Kind:    KindUpstream,
		Message: message,
		Data:    response.PhoneOTPResponse{Status: status},
	}
}
