package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/tasks"
	"github.com/storefront-dev/storefront/internal/users"
)

type RegisterRequest struct {
	FirstName string `json:"first_name" validate:"required,max=64"`
	LastName  string `json:"last_name" validate:"required,max=64"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Age       int    `json:"age" validate:"gte=0,lte=150"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
}

type LoginResponse struct {
	User      auth.Principal `json:"user"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// success writes the standard success envelope
func success(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, gin.H{"status": "success", "payload": payload})
}

// @Router /api/sessions/register [post]
func (s *Server) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, s.logger, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		respondWithError(c, s.logger, http.StatusBadRequest, err, "Validation failed")
		return
	}

	user, err := s.usersService.Register(c.Request.Context(), users.RegisterParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Age:       req.Age,
		Password:  req.Password,
	})
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			respondWithError(c, s.logger, http.StatusConflict, err, "Email already registered")
			return
		}
		internalError(c, err)
		return
	}

	success(c, http.StatusCreated, user)
}

// @Router /api/sessions/login [post]
func (s *Server) login(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	sessionID, err := s.sessions.Create(ctx, auth.SessionData{
		UserID:     principal.ID,
		Email:      principal.Email,
		AuthMethod: auth.StrategyLocal,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		internalError(c, err)
		return
	}

	token, err := s.tokens.Issue(principal)
	if err != nil {
		internalError(c, err)
		return
	}

	secure := c.Request.TLS != nil
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookieName, s.cookies.Sign(sessionID), int(s.config.Auth.SessionTTL.Seconds()), "/", "", secure, true)
	c.SetCookie(auth.TokenCookieName, token, int(s.tokens.TTL().Seconds()), "/", "", secure, true)

	s.touchLastConnection(principal.ID)
	s.logger.Info().Str("user_id", principal.ID).Msg("User logged in")

	success(c, http.StatusOK, LoginResponse{
		User:      principal,
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokens.TTL()).UTC(),
	})
}

// @Router /api/sessions/logout [post]
func (s *Server) logout(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	sessionID, err := s.sessionStrategy.SessionID(c.Request)
	if err != nil {
		// Reported as NoSessionFound when the route is gated by another strategy
		internalError(c, err)
		return
	}
	if err := s.sessions.Delete(c.Request.Context(), sessionID); err != nil {
		internalError(c, err)
		return
	}

	secure := c.Request.TLS != nil
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookieName, "", -1, "/", "", secure, true)
	c.SetCookie(auth.TokenCookieName, "", -1, "/", "", secure, true)

	s.touchLastConnection(principal.ID)
	s.logger.Info().Str("user_id", principal.ID).Msg("User logged out")

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Logged out"})
}

// @Router /api/sessions/current [get]
func (s *Server) currentSession(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	success(c, http.StatusOK, principal)
}

// touchLastConnection enqueues the last-connection update. Failures are
// logged; they never fail the request.
func (s *Server) touchLastConnection(userID string) {
	task, err := tasks.NewTouchLastConnectionTask(userID, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create last connection task")
		return
	}
	if _, err := s.tasks.Enqueue(task); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to enqueue last connection update")
	}
}
