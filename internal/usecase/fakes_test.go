package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/internal/data/repository"
	"phone-auth/internal/gateway"
	"phone-auth/pkg/utils"

	"github.com/google/uuid"
)

// fakePhoneStore is an in-memory PhoneVerificationRepository. Writes made in
// WithinUserTx are staged and only applied when fn returns nil.
type fakePhoneStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]entity.PhoneVerification
	audits  []entity.OTPAuditLog
	locks   map[uuid.UUID]*sync.Mutex

	failSave  error
	failAudit error
}

func newFakePhoneStore(users ...uuid.UUID) *fakePhoneStore {
	f := &fakePhoneStore{
		records: make(map[uuid.UUID]entity.PhoneVerification),
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
	for _, id := range users {
		f.records[id] = entity.PhoneVerification{UserID: id}
	}
	return f
}

func (f *fakePhoneStore) WithinUserTx(ctx context.Context, fn func(tx repository.PhoneVerificationTx) error) error {
	tx := &fakePhoneTx{store: f, saved: make(map[uuid.UUID]entity.PhoneVerification)}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, rec := range tx.saved {
		if rec.PhoneVerified {
			for otherID, other := range f.records {
				if otherID != id && other.PhoneVerified && other.BoundPhone() == rec.BoundPhone() {
					return repository.ErrPhoneAlreadyBound
				}
			}
		}
	}
	for id, rec := range tx.saved {
		f.records[id] = rec
	}
	f.audits = append(f.audits, tx.audits...)
	return nil
}

func (f *fakePhoneStore) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.PhoneVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakePhoneStore) record(userID uuid.UUID) entity.PhoneVerification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[userID]
}

func (f *fakePhoneStore) set(rec entity.PhoneVerification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.UserID] = rec
}

func (f *fakePhoneStore) auditLog() []entity.OTPAuditLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.OTPAuditLog, len(f.audits))
	copy(out, f.audits)
	return out
}

func (f *fakePhoneStore) userLock(userID uuid.UUID) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		f.locks[userID] = l
	}
	return l
}

type fakePhoneTx struct {
	store  *fakePhoneStore
	held   []*sync.Mutex
	saved  map[uuid.UUID]entity.PhoneVerification
	audits []entity.OTPAuditLog
}

func (t *fakePhoneTx) release() {
	for _, l := range t.held {
		l.Unlock()
	}
}

func (t *fakePhoneTx) GetForUpdate(ctx context.Context, userID uuid.UUID) (*entity.PhoneVerification, error) {
	l := t.store.userLock(userID)
	l.Lock()
	t.held = append(t.held, l)

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	rec, ok := t.store.records[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &rec, nil
}

func (t *fakePhoneTx) IsPhoneBoundToOther(ctx context.Context, phone string, userID uuid.UUID) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, rec := range t.store.records {
		if id != userID && rec.PhoneVerified && rec.BoundPhone() == phone {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakePhoneTx) Save(ctx context.Context, rec *entity.PhoneVerification) error {
	if t.store.failSave != nil {
		return t.store.failSave
	}
	// mirrors the users.otp_attempts CHECK constraint
	if rec.OTPAttempts < 0 || rec.OTPAttempts > utils.MaxOTPAttempts {
		return fmt.Errorf("otp_attempts %d violates check constraint", rec.OTPAttempts)
	}
	t.saved[rec.UserID] = *rec
	return nil
}

func (t *fakePhoneTx) AppendAudit(ctx context.Context, entry *entity.OTPAuditLog) error {
	if t.store.failAudit != nil {
		return t.store.failAudit
	}
	t.audits = append(t.audits, *entry)
	return nil
}

// fakeGateway accepts validCode for any session and reports phone as verified.
type fakeGateway struct {
	mu        sync.Mutex
	phone     string
	validCode string
	sendErr   error
	delay     time.Duration
	consumed  map[string]bool

	sendCalls   atomic.Int32
	verifyCalls atomic.Int32
}

func newFakeGateway(phone string) *fakeGateway {
	return &fakeGateway{
		phone:     phone,
		validCode: "123456",
		consumed:  make(map[string]bool),
	}
}

func (g *fakeGateway) wait(ctx context.Context) error {
	if g.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(g.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) RegisterSend(ctx context.Context, phone string) (*gateway.SendResult, error) {
	g.sendCalls.Add(1)
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	return &gateway.SendResult{VerificationID: "session-" + phone}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, verificationToken, code string) (*gateway.VerifyResult, error) {
	g.verifyCalls.Add(1)
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.consumed[verificationToken] {
		return nil, gateway.ErrSessionNotFound
	}
	if code != g.validCode {
		return nil, gateway.ErrInvalidCode
	}
	g.consumed[verificationToken] = true
	return &gateway.VerifyResult{PhoneNumber: g.phone, ProviderUserID: "uid-1"}, nil
}

var errStorage = errors.New("connection reset")
