package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/internal/dto/request"
	"phone-auth/pkg/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPhone = "+886987654321"

type phoneFixture struct {
	svc    *phoneService
	store  *fakePhoneStore
	gw     *fakeGateway
	userID uuid.UUID
	now    time.Time
}

func newPhoneFixture(t *testing.T) *phoneFixture {
	t.Helper()

	userID := uuid.New()
	f := &phoneFixture{
		store:  newFakePhoneStore(userID),
		gw:     newFakeGateway(testPhone),
		userID: userID,
		now:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	config := &utils.Config{
		OTP: utils.OTPConfig{
			RateLimitSeconds:      60,
			MaxAttempts:           3,
			ExpiresInSeconds:      300,
			LockRetryAfterSeconds: 60,
		},
		Gateway: utils.GatewayConfig{Timeout: time.Second},
	}

	f.svc = NewPhoneService(f.store, f.gw, config, zap.NewNop()).(*phoneService)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *phoneFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *phoneFixture) send(t *testing.T) *PhoneOTPResult {
	t.Helper()
	return f.svc.SendOTP(context.Background(), f.userID, &request.SendOTPRequest{
		CountryCode: "+886",
		PhoneNumber: "987654321",
	})
}

func (f *phoneFixture) verify(t *testing.T, code string) *PhoneOTPResult {
	t.Helper()
	return f.svc.VerifyOTP(context.Background(), f.userID, &request.VerifyOTPRequest{
		VerificationID: "session-" + testPhone,
		OTPCode:        code,
	})
}

func (f *phoneFixture) resend(t *testing.T, phone string) *PhoneOTPResult {
	t.Helper()
	return f.svc.ResendOTP(context.Background(), f.userID, &request.ResendOTPRequest{PhoneNumber: phone})
}

func TestSendOTP_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   request.SendOTPRequest
		field string
	}{
		{"missing plus", request.SendOTPRequest{CountryCode: "886", PhoneNumber: "987654321"}, "country_code"},
		{"country code too long", request.SendOTPRequest{CountryCode: "+8861", PhoneNumber: "987654321"}, "country_code"},
		{"phone too short", request.SendOTPRequest{CountryCode: "+886", PhoneNumber: "123456"}, "phone_number"},
		{"phone too long", request.SendOTPRequest{CountryCode: "+886", PhoneNumber: "1234567890123456"}, "phone_number"},
		{"phone not digits", request.SendOTPRequest{CountryCode: "+886", PhoneNumber: "98765abcd"}, "phone_number"},
		{"empty", request.SendOTPRequest{}, "country_code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPhoneFixture(t)
			res := f.svc.SendOTP(context.Background(), f.userID, &tt.req)

			assert.Equal(t, KindValidation, res.Kind)
			assert.Equal(t, StatusValidationError, res.Status())
			assert.Contains(t, res.Errors, tt.field)
			assert.Zero(t, f.gw.sendCalls.Load())
			assert.Equal(t, entity.PhoneVerification{UserID: f.userID}, f.store.record(f.userID))
			assert.Empty(t, f.store.auditLog())
		})
	}
}

func TestSendOTP_Success(t *testing.T) {
	f := newPhoneFixture(t)

	res := f.send(t)
	require.Equal(t, KindNone, res.Kind, res.Message)
	assert.Equal(t, StatusOTPSent, res.Status())
	require.NotNil(t, res.Data.ExpiresIn)
	assert.Equal(t, 300, *res.Data.ExpiresIn)
	require.NotNil(t, res.Data.PhoneNumber)
	assert.Equal(t, testPhone, *res.Data.PhoneNumber)
	require.NotNil(t, res.Data.VerificationID)
	assert.Equal(t, "session-"+testPhone, *res.Data.VerificationID)

	rec := f.store.record(f.userID)
	assert.Equal(t, testPhone, rec.BoundPhone())
	assert.Equal(t, entity.VerificationOTPSent, rec.VerificationStatus)
	assert.Equal(t, 0, rec.OTPAttempts)
	assert.False(t, rec.PhoneVerified)
	require.NotNil(t, rec.LastOTPSentAt)
	assert.Equal(t, f.now, *rec.LastOTPSentAt)

	audits := f.store.auditLog()
	require.Len(t, audits, 1)
	assert.Equal(t, entity.OTPActionSend, audits[0].Action)
	assert.True(t, audits[0].Success)
	assert.Equal(t, testPhone, audits[0].PhoneNumber)
}

func TestSendOTP_RateLimited(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())

	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 60},
		{15 * time.Second, 45},
		{59500 * time.Millisecond, 1},
	}

	start := f.now
	for _, c := range cases {
		f.now = start.Add(c.elapsed)
		res := f.send(t)
		assert.Equal(t, StatusTooManyRequests, res.Status())
		assert.Equal(t, KindPolicy, res.Kind)
		require.NotNil(t, res.Data.RetryAfter)
		assert.Equal(t, c.want, *res.Data.RetryAfter)
	}

	assert.Equal(t, int32(1), f.gw.sendCalls.Load())
	rec := f.store.record(f.userID)
	assert.Equal(t, start, *rec.LastOTPSentAt)
	assert.Equal(t, entity.VerificationOTPSent, rec.VerificationStatus)

	f.now = start.Add(60 * time.Second)
	assert.Equal(t, StatusOTPSent, f.send(t).Status())
}

func TestSendOTP_PhoneAlreadyBound(t *testing.T) {
	f := newPhoneFixture(t)

	otherID := uuid.New()
	phone := testPhone
	other := entity.PhoneVerification{
		UserID:             otherID,
		PhoneNumber:        &phone,
		PhoneVerified:      true,
		VerificationStatus: entity.VerificationVerified,
	}
	f.store.set(other)

	res := f.send(t)
	assert.Equal(t, StatusPhoneAlreadyBound, res.Status())
	assert.Equal(t, KindPolicy, res.Kind)

	assert.Zero(t, f.gw.sendCalls.Load())
	assert.Equal(t, entity.PhoneVerification{UserID: f.userID}, f.store.record(f.userID))
	assert.Equal(t, other, f.store.record(otherID))
	assert.Empty(t, f.store.auditLog())
}

func TestSendOTP_GatewayFailure(t *testing.T) {
	f := newPhoneFixture(t)
	f.gw.sendErr = errors.New("quota exceeded for project 1234")

	res := f.send(t)
	assert.Equal(t, StatusSendOTPFailed, res.Status())
	assert.Equal(t, KindUpstream, res.Kind)
	assert.NotContains(t, res.Message, "quota")

	assert.Equal(t, entity.PhoneVerification{UserID: f.userID}, f.store.record(f.userID))

	audits := f.store.auditLog()
	require.Len(t, audits, 1)
	assert.Equal(t, entity.OTPActionSend, audits[0].Action)
	assert.False(t, audits[0].Success)
	require.NotNil(t, audits[0].ErrorMessage)
	assert.Contains(t, *audits[0].ErrorMessage, "quota exceeded")

	// a failed send does not start the rate-limit window
	f.gw.sendErr = nil
	assert.Equal(t, StatusOTPSent, f.send(t).Status())
}

func TestSendOTP_GatewayTimeout(t *testing.T) {
	f := newPhoneFixture(t)
	f.svc.timeout = 10 * time.Millisecond
	f.gw.delay = time.Second

	res := f.send(t)
	assert.Equal(t, StatusSendOTPFailed, res.Status())
	assert.Nil(t, f.store.record(f.userID).LastOTPSentAt)
}

func TestSendOTP_UnknownUser(t *testing.T) {
	f := newPhoneFixture(t)

	res := f.svc.SendOTP(context.Background(), uuid.New(), &request.SendOTPRequest{
		CountryCode: "+886",
		PhoneNumber: "987654321",
	})
	assert.Equal(t, KindStorage, res.Kind)
	assert.Equal(t, StatusInternalError, res.Status())
}

func TestVerifyOTP_Success(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())

	res := f.verify(t, "123456")
	require.Equal(t, StatusVerified, res.Status(), res.Message)
	require.NotNil(t, res.Data.PhoneNumber)
	assert.Equal(t, testPhone, *res.Data.PhoneNumber)

	rec := f.store.record(f.userID)
	assert.True(t, rec.PhoneVerified)
	assert.Equal(t, entity.VerificationVerified, rec.VerificationStatus)
	assert.Equal(t, 0, rec.OTPAttempts)

	audits := f.store.auditLog()
	require.Len(t, audits, 2)
	assert.Equal(t, entity.OTPActionVerifySuccess, audits[1].Action)
	assert.True(t, audits[1].Success)
}

func TestVerifyOTP_Validation(t *testing.T) {
	f := newPhoneFixture(t)

	for _, code := range []string{"", "12345", "1234567", "12a456"} {
		res := f.verify(t, code)
		assert.Equal(t, StatusValidationError, res.Status(), code)
		assert.Contains(t, res.Errors, "otp_code")
	}

	assert.Zero(t, f.gw.verifyCalls.Load())
	assert.Equal(t, 0, f.store.record(f.userID).OTPAttempts)
}

func TestVerifyOTP_LocksAfterThreeFailures(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())

	res := f.verify(t, "000000")
	assert.Equal(t, StatusInvalidOTP, res.Status())
	assert.Equal(t, 2, *res.Data.RemainingAttempts)
	assert.Equal(t, entity.VerificationInvalidOTP, f.store.record(f.userID).VerificationStatus)

	res = f.verify(t, "000000")
	assert.Equal(t, StatusInvalidOTP, res.Status())
	assert.Equal(t, 1, *res.Data.RemainingAttempts)

	res = f.verify(t, "000000")
	assert.Equal(t, StatusLocked, res.Status())
	assert.Equal(t, 60, *res.Data.RetryAfter)

	rec := f.store.record(f.userID)
	assert.Equal(t, entity.VerificationLocked, rec.VerificationStatus)
	assert.Equal(t, 3, rec.OTPAttempts)

	// locked is absorbing: even the right code is rejected without a gateway call
	res = f.verify(t, "123456")
	assert.Equal(t, StatusLocked, res.Status())
	assert.Equal(t, int32(3), f.gw.verifyCalls.Load())
	assert.Equal(t, 3, f.store.record(f.userID).OTPAttempts)

	failed := 0
	for _, a := range f.store.auditLog() {
		if a.Action == entity.OTPActionVerifyFailed {
			failed++
			assert.False(t, a.Success)
			require.NotNil(t, a.ErrorMessage)
		}
	}
	assert.Equal(t, 3, failed)
}

func TestVerifyOTP_RepeatAfterSuccess(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())
	require.Equal(t, StatusVerified, f.verify(t, "123456").Status())
	before := f.store.record(f.userID)

	res := f.verify(t, "123456")
	assert.Equal(t, StatusInvalidOTP, res.Status())

	after := f.store.record(f.userID)
	assert.Equal(t, before, after)
	assert.True(t, after.PhoneVerified)
	assert.Equal(t, 0, after.OTPAttempts)
}

func TestVerifyOTP_PhoneMismatch(t *testing.T) {
	f := newPhoneFixture(t)
	f.gw.phone = "+886900000000"
	require.Equal(t, StatusOTPSent, f.send(t).Status())
	before := f.store.record(f.userID)

	res := f.verify(t, "123456")
	assert.Equal(t, StatusPhoneMismatch, res.Status())
	assert.Equal(t, KindPolicy, res.Kind)
	assert.Equal(t, before, f.store.record(f.userID))
}

func TestVerifyOTP_PhoneBoundElsewhere(t *testing.T) {
	f := newPhoneFixture(t)

	phone := testPhone
	f.store.set(entity.PhoneVerification{
		UserID:             uuid.New(),
		PhoneNumber:        &phone,
		PhoneVerified:      true,
		VerificationStatus: entity.VerificationVerified,
	})

	// no bound phone on this user, so the binding check is the only guard
	res := f.verify(t, "123456")
	assert.Equal(t, StatusPhoneMismatch, res.Status())
	assert.False(t, f.store.record(f.userID).PhoneVerified)
}

func TestVerifyOTP_TimeoutCountsAsFailure(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())

	f.svc.timeout = 10 * time.Millisecond
	f.gw.delay = time.Second

	res := f.verify(t, "123456")
	assert.Equal(t, StatusInvalidOTP, res.Status())
	assert.Equal(t, 1, f.store.record(f.userID).OTPAttempts)

	audits := f.store.auditLog()
	last := audits[len(audits)-1]
	assert.Equal(t, entity.OTPActionVerifyFailed, last.Action)
	assert.Contains(t, *last.ErrorMessage, "timeout")
}

func TestVerifyOTP_StorageFailureLeavesStateUntouched(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())
	before := f.store.record(f.userID)
	auditsBefore := len(f.store.auditLog())

	f.store.failAudit = errStorage
	res := f.verify(t, "000000")
	assert.Equal(t, KindStorage, res.Kind)
	assert.Equal(t, StatusInternalError, res.Status())
	assert.NotContains(t, res.Message, "connection reset")

	assert.Equal(t, before, f.store.record(f.userID))
	assert.Len(t, f.store.auditLog(), auditsBefore)
}

func TestVerifyOTP_ConcurrentFailuresSerialize(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())

	const callers = 5
	results := make([]*PhoneOTPResult, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.verify(t, "000000")
		}(i)
	}
	wg.Wait()

	var statuses []string
	var remaining []int
	for _, r := range results {
		statuses = append(statuses, r.Status())
		if r.Data.RemainingAttempts != nil {
			remaining = append(remaining, *r.Data.RemainingAttempts)
		}
	}
	sort.Strings(statuses)
	sort.Ints(remaining)

	assert.Equal(t, []string{StatusInvalidOTP, StatusInvalidOTP, StatusLocked, StatusLocked, StatusLocked}, statuses)
	assert.Equal(t, []int{1, 2}, remaining)
	assert.Equal(t, 3, f.store.record(f.userID).OTPAttempts)
	assert.Equal(t, int32(3), f.gw.verifyCalls.Load())
}

func TestResendOTP_Validation(t *testing.T) {
	f := newPhoneFixture(t)

	for _, phone := range []string{"", "886987654321", "+886123", "+88698765432a"} {
		res := f.resend(t, phone)
		assert.Equal(t, StatusValidationError, res.Status(), phone)
	}
	assert.Zero(t, f.gw.sendCalls.Load())
}

func TestResendOTP_PhoneMismatch(t *testing.T) {
	f := newPhoneFixture(t)

	// nothing bound yet
	assert.Equal(t, StatusPhoneMismatch, f.resend(t, testPhone).Status())

	require.Equal(t, StatusOTPSent, f.send(t).Status())
	f.advance(2 * time.Minute)
	before := f.store.record(f.userID)

	res := f.resend(t, "+886900000000")
	assert.Equal(t, StatusPhoneMismatch, res.Status())
	assert.Equal(t, before, f.store.record(f.userID))
	assert.Equal(t, int32(1), f.gw.sendCalls.Load())
}

func TestResendOTP_SharesSendClock(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())

	f.advance(10 * time.Second)
	res := f.resend(t, testPhone)
	assert.Equal(t, StatusTooManyRequests, res.Status())
	assert.Equal(t, 50, *res.Data.RetryAfter)

	f.advance(50 * time.Second)
	res = f.resend(t, testPhone)
	assert.Equal(t, StatusOTPResent, res.Status())
	assert.Equal(t, 60, *res.Data.RetryAfter)

	// resend restarts the window for send too
	f.advance(30 * time.Second)
	assert.Equal(t, StatusTooManyRequests, f.send(t).Status())
}

func TestResendOTP_UnlocksLocked(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())
	for i := 0; i < 3; i++ {
		f.verify(t, "000000")
	}
	require.Equal(t, entity.VerificationLocked, f.store.record(f.userID).VerificationStatus)

	f.advance(time.Minute)
	res := f.resend(t, testPhone)
	require.Equal(t, StatusOTPResent, res.Status())

	rec := f.store.record(f.userID)
	assert.Equal(t, entity.VerificationOTPResent, rec.VerificationStatus)
	assert.Equal(t, 0, rec.OTPAttempts)
	assert.Equal(t, f.now, *rec.LastOTPSentAt)
}

func TestSendOTP_DoesNotLiftLock(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())
	for i := 0; i < 3; i++ {
		f.verify(t, "000000")
	}
	f.advance(2 * time.Minute)
	before := f.store.record(f.userID)
	auditsBefore := len(f.store.auditLog())

	res := f.send(t)
	assert.Equal(t, StatusLocked, res.Status())
	assert.Equal(t, KindPolicy, res.Kind)
	require.NotNil(t, res.Data.RetryAfter)
	assert.Equal(t, 60, *res.Data.RetryAfter)

	assert.Equal(t, before, f.store.record(f.userID))
	assert.Len(t, f.store.auditLog(), auditsBefore)
	assert.Equal(t, int32(1), f.gw.sendCalls.Load())

	require.Equal(t, StatusOTPResent, f.resend(t, testPhone).Status())
	assert.Equal(t, 0, f.store.record(f.userID).OTPAttempts)
}

func TestResendOTP_GatewayFailure(t *testing.T) {
	f := newPhoneFixture(t)
	require.Equal(t, StatusOTPSent, f.send(t).Status())
	for i := 0; i < 3; i++ {
		f.verify(t, "000000")
	}
	f.advance(time.Minute)
	before := f.store.record(f.userID)

	f.gw.sendErr = errors.New("upstream 503")
	res := f.resend(t, testPhone)
	assert.Equal(t, StatusResendOTPFailed, res.Status())
	assert.Equal(t, KindUpstream, res.Kind)

	// still locked, counters untouched
	assert.Equal(t, before, f.store.record(f.userID))

	audits := f.store.auditLog()
	last := audits[len(audits)-1]
	assert.Equal(t, entity.OTPActionResend, last.Action)
	assert.False(t, last.Success)
}

func TestPhoneOTPScenario(t *testing.T) {
	f := newPhoneFixture(t)

	res := f.send(t)
	require.Equal(t, StatusOTPSent, res.Status())

	res = f.resend(t, testPhone)
	require.Equal(t, StatusTooManyRequests, res.Status())
	assert.Equal(t, 60, *res.Data.RetryAfter)

	f.advance(61 * time.Second)
	res = f.resend(t, testPhone)
	require.Equal(t, StatusOTPResent, res.Status())
	assert.Equal(t, 0, f.store.record(f.userID).OTPAttempts)

	assert.Equal(t, StatusInvalidOTP, f.verify(t, "111111").Status())
	assert.Equal(t, StatusInvalidOTP, f.verify(t, "222222").Status())
	assert.Equal(t, StatusLocked, f.verify(t, "333333").Status())

	f.advance(61 * time.Second)
	res = f.resend(t, testPhone)
	require.Equal(t, StatusOTPResent, res.Status())
	assert.Equal(t, entity.VerificationOTPResent, f.store.record(f.userID).VerificationStatus)

	res = f.verify(t, "123456")
	require.Equal(t, StatusVerified, res.Status())

	rec := f.store.record(f.userID)
	assert.True(t, rec.PhoneVerified)
	assert.Equal(t, entity.VerificationVerified, rec.VerificationStatus)
	assert.Equal(t, 0, rec.OTPAttempts)

	var actions []entity.OTPAuditAction
	for _, a := range f.store.auditLog() {
		actions = append(actions, a.Action)
	}
	assert.Equal(t, []entity.OTPAuditAction{
		entity.OTPActionSend,
		entity.OTPActionResend,
		entity.OTPActionVerifyFailed,
		entity.OTPActionVerifyFailed,
		entity.OTPActionVerifyFailed,
		entity.OTPActionResend,
		entity.OTPActionVerifySuccess,
	}, actions)
}
