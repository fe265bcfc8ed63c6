package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/carts"
	"github.com/storefront-dev/storefront/internal/users"
)

// @Router /api/carts/:cid [get]
func (s *Server) getCart(c *gin.Context) {
	cartID, ok := s.ownCart(c)
	if !ok {
		return
	}
	cart, err := s.cartsService.Get(c.Request.Context(), cartID)
	if err != nil {
		s.cartError(c, err)
		return
	}
	success(c, http.StatusOK, cart)
}

// @Router /api/carts/:cid/products/:pid [post]
func (s *Server) addToCart(c *gin.Context) {
	cartID, ok := s.ownCart(c)
	if !ok {
		return
	}
	principal, _ := auth.PrincipalFrom(c.Request.Context())
	productID := c.Param("pid")

	if principal.Role == auth.RolePremium {
		product, ok := s.loadProduct(c)
		if !ok {
			return
		}
		if product.Owner == principal.Email {
			respondWithError(c, s.logger, http.StatusForbidden, errors.New("own product"), "You cannot add your own product to your cart")
			return
		}
	}

	cart, err := s.cartsService.AddProduct(c.Request.Context(), cartID, productID)
	if err != nil {
		s.cartError(c, err)
		return
	}
	success(c, http.StatusOK, cart)
}

// @Router /api/carts/:cid/products/:pid [delete]
func (s *Server) removeFromCart(c *gin.Context) {
	cartID, ok := s.ownCart(c)
	if !ok {
		return
	}
	cart, err := s.cartsService.RemoveProduct(c.Request.Context(), cartID, c.Param("pid"))
	if err != nil {
		s.cartError(c, err)
		return
	}
	success(c, http.StatusOK, cart)
}

// @Router /api/carts/:cid [delete]
func (s *Server) clearCart(c *gin.Context) {
	cartID, ok := s.ownCart(c)
	if !ok {
		return
	}
	cart, err := s.cartsService.Clear(c.Request.Context(), cartID)
	if err != nil {
		s.cartError(c, err)
		return
	}
	success(c, http.StatusOK, cart)
}

// @Router /api/carts/:cid/purchase [post]
func (s *Server) purchaseCart(c *gin.Context) {
	cartID, ok := s.ownCart(c)
	if !ok {
		return
	}
	principal, _ := auth.PrincipalFrom(c.Request.Context())

	result, err := s.cartsService.Purchase(c.Request.Context(), cartID, principal.Email)
	if err != nil {
		s.cartError(c, err)
		return
	}
	success(c, http.StatusOK, result)
}

// ownCart returns the :cid parameter when it is the principal's own cart
func (s *Server) ownCart(c *gin.Context) (string, bool) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return "", false
	}
	cartID := c.Param("cid")

	user, err := s.usersService.Get(c.Request.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			respondWithError(c, s.logger, http.StatusForbidden, err, "Cart does not belong to you")
			return "", false
		}
		internalError(c, err)
		return "", false
	}
	if user.CartID != cartID {
		respondWithError(c, s.logger, http.StatusForbidden, errors.New("foreign cart"), "Cart does not belong to you")
		return "", false
	}
	return cartID, true
}

func (s *Server) cartError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, carts.ErrCartNotFound):
		respondWithError(c, s.logger, http.StatusNotFound, err, "Cart not found")
	case errors.Is(err, carts.ErrProductNotFound):
		respondWithError(c, s.logger, http.StatusNotFound, err, "Product not found")
	case errors.Is(err, carts.ErrItemNotFound):
		respondWithError(c, s.logger, http.StatusNotFound, err, "Product is not in the cart")
	case errors.Is(err, carts.ErrEmptyCart):
		respondWithError(c, s.logger, http.StatusBadRequest, err, "Cart is empty")
	default:
		internalError(c, err)
	}
}
