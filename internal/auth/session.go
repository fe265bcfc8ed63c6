package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the signed session id
const SessionCookieName = "storefront.sid"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrMissingCookieSecret = errors.New("session cookie secret is required")
)

// SessionData represents the server-side state of a login session
type SessionData struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	AuthMethod string    `json:"auth_method"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionStore persists sessions by opaque id
type SessionStore interface {
	// Create stores data and returns the new session id
	Create(ctx context.Context, data SessionData) (string, error)
	// Get returns ErrSessionNotFound for unknown or expired ids
	Get(ctx context.Context, id string) (*SessionData, error)
	Delete(ctx context.Context, id string) error
}

// CookieSigner authenticates session ids placed in cookies with HMAC-SHA256
type CookieSigner struct {
	secret []byte
}

// NewCookieSigner creates a signer keyed by secret
func NewCookieSigner(secret string) (*CookieSigner, error) {
	if secret == "" {
		return nil, ErrMissingCookieSecret
	}
	return &CookieSigner{secret: []byte(secret)}, nil
}

// Sign returns "<id>.<signature>"
func (s *CookieSigner) Sign(id string) string {
	return id + "." + s.signature(id)
}

// Unsign returns the id from a signed value, or false if the signature is wrong
func (s *CookieSigner) Unsign(value string) (string, bool) {
	idx := strings.LastIndexByte(value, '.')
	if idx <= 0 || idx == len(value)-1 {
		return "", false
	}
	id, sig := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(s.signature(id))) {
		return "", false
	}
	return id, true
}

func (s *CookieSigner) signature(id string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
