package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// Strategy names registered by the server
const (
	StrategyLocal   = "local"
	StrategySession = "session"
	StrategyJWT     = "jwt"
	StrategyCurrent = "current"
)

// TokenCookieName is the cookie carrying a signed token for browser clients
const TokenCookieName = "token"

const (
	bearerPrefix     = "Bearer "
	maxLoginBodySize = 1 << 20
)

var ErrAccountNotFound = errors.New("account not found")

// Account is the identity-store view of a user
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
}

func (a *Account) principal() Principal {
	return Principal{ID: a.ID, Email: a.Email, Role: a.Role}
}

// AccountStore looks accounts up. Both methods return ErrAccountNotFound
// when no account matches.
type AccountStore interface {
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)
}

// LoginRequest is the credential body accepted by the local strategy
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LocalStrategy verifies an email and password from the request body
type LocalStrategy struct {
	accounts AccountStore
}

func NewLocalStrategy(accounts AccountStore) *LocalStrategy {
	return &LocalStrategy{accounts: accounts}
}

func (s *LocalStrategy) Verify(ctx context.Context, r *http.Request) (Principal, error) {
	creds, err := readLoginRequest(r)
	if err != nil {
		return Principal{}, newError(KindInvalidCredentials, err)
	}
	if creds.Email == "" || creds.Password == "" {
		return Principal{}, newError(KindInvalidCredentials, errors.New("email and password are required"))
	}

	account, err := s.accounts.AccountByEmail(ctx, strings.ToLower(creds.Email))
	if errors.Is(err, ErrAccountNotFound) {
		return Principal{}, newError(KindInvalidCredentials, err)
	}
	if err != nil {
		return Principal{}, fmt.Errorf("lookup account: %w", err)
	}

	if err := VerifyPassword(creds.Password, account.PasswordHash); err != nil {
		return Principal{}, newError(KindInvalidCredentials, err)
	}

	return account.principal(), nil
}

// readLoginRequest decodes JSON or form bodies and restores r.Body so later
// handlers can read it again
func readLoginRequest(r *http.Request) (LoginRequest, error) {
	var creds LoginRequest
	if r.Body == nil {
		return creds, errors.New("empty request body")
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxLoginBodySize))
	if err != nil {
		return creds, fmt.Errorf("read body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return creds, fmt.Errorf("decode form: %w", err)
		}
		creds.Email = form.Get("email")
		creds.Password = form.Get("password")
		return creds, nil
	}

	if len(body) == 0 {
		return creds, errors.New("empty request body")
	}
	if err := json.Unmarshal(body, &creds); err != nil {
		return creds, fmt.Errorf("decode body: %w", err)
	}
	return creds, nil
}

// SessionStrategy resolves the session referenced by the signed session
// cookie and reloads the account so role changes apply immediately
type SessionStrategy struct {
	sessions SessionStore
	cookies  *CookieSigner
	accounts AccountStore
}

func NewSessionStrategy(sessions SessionStore, cookies *CookieSigner, accounts AccountStore) *SessionStrategy {
	return &SessionStrategy{sessions: sessions, cookies: cookies, accounts: accounts}
}

func (s *SessionStrategy) Verify(ctx context.Context, r *http.Request) (Principal, error) {
	id, err := s.SessionID(r)
	if err != nil {
		return Principal{}, err
	}

	data, err := s.sessions.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return Principal{}, newError(KindNoSessionFound, err)
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load session: %w", err)
	}

	account, err := s.accounts.AccountByID(ctx, data.UserID)
	if errors.Is(err, ErrAccountNotFound) {
		return Principal{}, newError(KindNoSessionFound, err)
	}
	if err != nil {
		return Principal{}, fmt.Errorf("lookup account: %w", err)
	}

	return account.principal(), nil
}

// SessionID returns the verified session id from the request cookie
func (s *SessionStrategy) SessionID(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", newError(KindNoSessionFound, nil)
	}
	id, ok := s.cookies.Unsign(cookie.Value)
	if !ok {
		return "", newError(KindNoSessionFound, errors.New("session cookie signature mismatch"))
	}
	return id, nil
}

// TokenStrategy verifies a signed token from the Authorization header or,
// failing that, the token cookie. The header takes precedence. The account
// named by the token is reloaded so role changes and deletions apply before
// the token expires.
type TokenStrategy struct {
	tokens   *TokenIssuer
	accounts AccountStore
}

func NewTokenStrategy(tokens *TokenIssuer, accounts AccountStore) *TokenStrategy {
	return &TokenStrategy{tokens: tokens, accounts: accounts}
}

func (s *TokenStrategy) Verify(ctx context.Context, r *http.Request) (Principal, error) {
	token, err := extractToken(r)
	if err != nil {
		return Principal{}, err
	}
	claimed, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, err
	}

	account, err := s.accounts.AccountByID(ctx, claimed.ID)
	if errors.Is(err, ErrAccountNotFound) {
		return Principal{}, newError(KindTokenInvalid, err)
	}
	if err != nil {
		return Principal{}, fmt.Errorf("lookup account: %w", err)
	}

	return account.principal(), nil
}

func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
			return "", newError(KindTokenInvalid, errors.New("invalid authorization header format"))
		}
		token := strings.TrimSpace(header[len(bearerPrefix):])
		if token == "" {
			return "", newError(KindTokenInvalid, errors.New("empty token"))
		}
		return token, nil
	}

	if cookie, err := r.Cookie(TokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	return "", newError(KindNoSessionFound, errors.New("no token presented"))
}
