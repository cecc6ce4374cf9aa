package authflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionReceipt mints and verifies the optional client session receipt: a
// short HS256 token the UI layer keeps as its local "signed in" artifact
// until the backend session expires. It proves nothing to the backend and is
// disabled entirely when no signing key is configured.
type sessionReceipt struct {
	cfg SessionConfig
}

// ReceiptClaims defines a public type used by authflow APIs.
//
// ReceiptClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ReceiptClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

func newSessionReceipt(cfg SessionConfig) *sessionReceipt {
	return &sessionReceipt{cfg: cfg}
}

func (s *sessionReceipt) enabled() bool {
	return len(s.cfg.SigningKey) > 0
}

func (s *sessionReceipt) mint(userID, deviceID string, now time.Time) (string, error) {
	if !s.enabled() {
		return "", nil
	}

	claims := ReceiptClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
			Issuer:    s.cfg.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sign session receipt: %w", err)
	}
	return signed, nil
}

// ParseSessionReceipt verifies a receipt minted by an engine configured with
// the same signing key and returns its claims. Receipts are a local
// convenience for the UI layer only; the backend session is authoritative.
//
// ParseSessionReceipt may return an error when input validation, dependency calls, or security checks fail.
// ParseSessionReceipt does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ParseSessionReceipt(tokenStr string) (*ReceiptClaims, error) {
	if !e.receipt.enabled() {
		return nil, errors.New("session receipts are not configured")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(e.clock.Now),
	}
	if e.receipt.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(e.receipt.cfg.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &ReceiptClaims{}, func(t *jwt.Token) (interface{}, error) {
		return e.receipt.cfg.SigningKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ReceiptClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid session receipt")
	}
	return claims, nil
}
