package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"phone-auth/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type devSession struct {
	phone     string
	code      string
	expiresAt time.Time
}

// DevGateway keeps sessions in memory and writes codes to the log instead of
// sending SMS. Not for production.
type DevGateway struct {
	mu       sync.Mutex
	sessions map[string]devSession
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewDevGateway(otp utils.OTPConfig, log *zap.Logger) *DevGateway {
	ttl := time.Duration(otp.ExpiresInSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DevGateway{
		sessions: make(map[string]devSession),
		ttl:      ttl,
		now:      time.Now,
		log:      log.With(zap.String("gateway", "dev")),
	}
}

func (g *DevGateway) RegisterSend(ctx context.Context, phone string) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	id := uuid.NewString()

	g.mu.Lock()
	now := g.now()
	g.evictExpiredLocked(now)
	g.sessions[id] = devSession{phone: phone, code: code, expiresAt: now.Add(g.ttl)}
	g.mu.Unlock()

	g.log.Info("OTP issued",
		zap.String("phone", phone),
		zap.String("verification_id", id),
		zap.String("code", code),
	)

	return &SendResult{VerificationID: id}, nil
}

func (g *DevGateway) Verify(ctx context.Context, verificationToken, code string) (*VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[verificationToken]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if g.now().After(s.expiresAt) {
		delete(g.sessions, verificationToken)
		return nil, ErrSessionExpired
	}
	if s.code != code {
		return nil, ErrInvalidCode
	}

	delete(g.sessions, verificationToken)
	return &VerifyResult{PhoneNumber: s.phone, ProviderUserID: "dev:" + verificationToken}, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// evictExpiredLocked drops sessions nobody verified before they expired. g.mu must be held.
func (g *DevGateway) evictExpiredLocked(now time.Time) {
	for id, s := range g.sessions {
		if now.After(s.expiresAt) {
			delete(g.sessions, id)
		}
	}
}
