package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"

// IdentityToolkitGateway checks codes with Firebase Auth's REST API. The SMS
// itself is sent by the client SDK after reCAPTCHA, so RegisterSend only
// records the intent.
type IdentityToolkitGateway struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	log        *zap.Logger
}

func NewIdentityToolkitGateway(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *IdentityToolkitGateway {
	if baseURL == "" {
		baseURL = defaultIdentityToolkitURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IdentityToolkitGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		log:        log.With(zap.String("gateway", "firebase")),
	}
}

func (g *IdentityToolkitGateway) RegisterSend(ctx context.Context, phone string) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.APIKey == "" {
		return nil, fmt.Errorf("firebase: API key not configured")
	}
	g.log.Debug("Send intent registered", zap.String("phone", phone))
	return &SendResult{}, nil
}

type signInWithPhoneRequest struct {
	SessionInfo string `json:"sessionInfo"`
	Code        string `json:"code"`
}

type signInWithPhoneResponse struct {
	LocalID     string `json:"localId"`
	PhoneNumber string `json:"phoneNumber"`
}

type identityToolkitError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *IdentityToolkitGateway) Verify(ctx context.Context, verificationToken, code string) (*VerifyResult, error) {
	raw, err := json.Marshal(signInWithPhoneRequest{SessionInfo: verificationToken, Code: code})
	if err != nil {
		return nil, err
	}

	endpoint := g.BaseURL + "/accounts:signInWithPhoneNumber?key=" + url.QueryEscape(g.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firebase: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("firebase: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr identityToolkitError
		_ = json.Unmarshal(body, &apiErr)
		return nil, providerFailure(resp.StatusCode, apiErr.Error.Message)
	}

	var out signInWithPhoneResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("firebase: decode response: %w", err)
	}
	if out.PhoneNumber == "" {
		return nil, ErrPhoneMissing
	}

	return &VerifyResult{PhoneNumber: out.PhoneNumber, ProviderUserID: out.LocalID}, nil
}

// providerFailure maps Identity Toolkit error codes onto the package sentinels
// where one exists.
func providerFailure(status int, message string) error {
	// messages look like "INVALID_CODE" or "TOO_MANY_ATTEMPTS_TRY_LATER : ..."
	code := strings.TrimSpace(strings.SplitN(message, ":", 2)[0])
	switch code {
	case "INVALID_CODE":
		return ErrInvalidCode
	case "SESSION_EXPIRED", "CODE_EXPIRED":
		return ErrSessionExpired
	case "INVALID_SESSION_INFO", "MISSING_SESSION_INFO":
		return ErrSessionNotFound
	}
	return &ProviderError{Provider: "firebase", StatusCode: status, Code: code}
}
