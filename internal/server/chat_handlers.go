package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storefront-dev/storefront/internal/observability"
)

// @Router /chat/messages [get]
func (s *Server) listMessages(c *gin.Context) {
	msgs, err := s.chatService.Recent(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	success(c, http.StatusOK, msgs)
}

// @Router /chat/ws [get]
func (s *Server) chatSocket(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the handshake error
		s.logger.Warn().Err(err).Str("user_id", principal.ID).Msg("Chat upgrade failed")
		return
	}

	observability.ChatConnections.Inc()
	defer observability.ChatConnections.Dec()

	s.logger.Info().Str("user_id", principal.ID).Msg("Chat connected")
	s.hub.Serve(c.Request.Context(), conn, principal.Email, s.chatService)
	s.logger.Info().Str("user_id", principal.ID).Msg("Chat disconnected")
}
