package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/users"
)

// @Router /api/users [get]
func (s *Server) listUsers(c *gin.Context) {
	list, err := s.usersService.List(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	success(c, http.StatusOK, list)
}

// @Router /api/users/:uid [get]
func (s *Server) getUser(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}
	userID := c.Param("uid")

	if principal.Role != auth.RoleAdmin && principal.ID != userID {
		respondWithError(c, s.logger, http.StatusForbidden, errors.New("foreign user"), "You can only view your own account")
		return
	}

	user, err := s.usersService.Get(c.Request.Context(), userID)
	if err != nil {
		s.userError(c, err)
		return
	}
	success(c, http.StatusOK, user)
}

// @Router /api/users/premium/:uid [post]
func (s *Server) togglePremium(c *gin.Context) {
	user, err := s.usersService.TogglePremium(c.Request.Context(), c.Param("uid"))
	if err != nil {
		s.userError(c, err)
		return
	}
	success(c, http.StatusOK, user)
}

// @Router /api/users/inactive [delete]
func (s *Server) purgeInactiveUsers(c *gin.Context) {
	removed, err := s.usersService.PurgeInactive(c.Request.Context(), s.config.Users.InactiveTTL)
	if err != nil {
		internalError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) userError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		respondWithError(c, s.logger, http.StatusNotFound, err, "User not found")
	case errors.Is(err, users.ErrRoleLocked):
		respondWithError(c, s.logger, http.StatusBadRequest, err, "Admin role cannot be changed")
	default:
		internalError(c, err)
	}
}
