package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/observability"
)

// ErrNoPrincipal is reported when a role guard or handler runs on a route
// without an authentication gateway
var ErrNoPrincipal = errors.New("no principal attached to request")

// errorResponse is the single error body shape of the API
type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
}

func newErrorResponse(message string, kind auth.Kind) errorResponse {
	return errorResponse{Status: "error", Error: message, Kind: string(kind)}
}

// respondWithError writes a client error directly and stops the chain
func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, message string) {
	log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg(message)
	c.AbortWithStatusJSON(statusCode, newErrorResponse(message, ""))
}

// Gate resolves the named strategy and returns middleware that
// authenticates each request with it. An unregistered name fails here,
// at route registration, with a StrategyNotFound error.
func Gate(registry *auth.Registry, name string, log zerolog.Logger) (gin.HandlerFunc, error) {
	strategy, err := registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		principal, err := strategy.Verify(c.Request.Context(), c.Request)
		if err != nil {
			outcome := string(auth.KindOf(err))
			if outcome == "" {
				outcome = observability.OutcomeError
			}
			observability.AuthAttemptsTotal.WithLabelValues(strategy.Name(), outcome).Inc()
			_ = c.Error(err)
			c.Abort()
			return
		}

		ctx, err := auth.WithPrincipal(c.Request.Context(), principal)
		if err != nil {
			observability.AuthAttemptsTotal.WithLabelValues(strategy.Name(), observability.OutcomeError).Inc()
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctx)

		observability.AuthAttemptsTotal.WithLabelValues(strategy.Name(), observability.OutcomeSuccess).Inc()
		log.Debug().Str("strategy", strategy.Name()).Str("user_id", principal.ID).Msg("Authenticated")
		c.Next()
	}, nil
}

// Guard returns middleware admitting only principals whose role is in
// policy. A request without a principal fails closed.
func Guard(policy auth.RolePolicy, route string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.PrincipalFrom(c.Request.Context())
		if !ok {
			log.Error().Str("route", route).Msg("Role guard reached without a principal")
			_ = c.Error(ErrNoPrincipal)
			c.Abort()
			return
		}

		if err := policy.Authorize(principal); err != nil {
			observability.AuthzDenialsTotal.WithLabelValues(route).Inc()
			log.Warn().
				Str("route", route).
				Str("user_id", principal.ID).
				Str("role", string(principal.Role)).
				Msg("Role not allowed")
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ErrorReporter renders the last error pushed onto the chain when nothing
// has been written yet. Auth errors keep their status and kind; anything
// else becomes a generic 500.
func ErrorReporter(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		if authErr, ok := auth.AsError(err); ok && authErr.Status() != http.StatusInternalServerError {
			log.Warn().
				Str("kind", string(authErr.Kind)).
				Str("path", c.Request.URL.Path).
				AnErr("cause", authErr.Err).
				Msg("Request rejected")
			c.JSON(authErr.Status(), newErrorResponse(authErr.PublicMessage(), authErr.Kind))
			return
		}

		log.Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
		c.JSON(http.StatusInternalServerError, newErrorResponse("Internal server error", ""))
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		event := s.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// requirePrincipal returns the request principal or reports ErrNoPrincipal
func requirePrincipal(c *gin.Context) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFrom(c.Request.Context())
	if !ok {
		_ = c.Error(ErrNoPrincipal)
		c.Abort()
	}
	return principal, ok
}

// internalError hands err to the ErrorReporter as a 500
func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
