package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/models"
	"github.com/storefront-dev/storefront/internal/products"
)

type CreateProductRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	Code        string  `json:"code" validate:"required,min=1,max=64,alphanumdash"`
	Price       float64 `json:"price" validate:"gte=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	Category    string  `json:"category" validate:"max=64"`
}

type UpdateProductRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Code        *string  `json:"code" validate:"omitempty,min=1,max=64,alphanumdash"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Stock       *int     `json:"stock" validate:"omitempty,gte=0"`
	Category    *string  `json:"category" validate:"omitempty,max=64"`
	Status      *bool    `json:"status"`
}

// @Router /api/products [get]
// @Param limit query int false "Page size"
// @Param page query int false "Page number"
// @Param sort query string false "asc or desc by price"
// @Param category query string false "Category filter"
func (s *Server) listProducts(c *gin.Context) {
	params := products.ListParams{
		Sort:     c.Query("sort"),
		Category: c.Query("category"),
	}
	if params.Sort != "" && params.Sort != "asc" && params.Sort != "desc" {
		respondWithError(c, s.logger, http.StatusBadRequest, errors.New("bad sort"), "sort must be asc or desc")
		return
	}

	var err error
	if params.Limit, err = intQuery(c, "limit"); err != nil {
		respondWithError(c, s.logger, http.StatusBadRequest, err, "limit must be a positive integer")
		return
	}
	if params.Page, err = intQuery(c, "page"); err != nil {
		respondWithError(c, s.logger, http.StatusBadRequest, err, "page must be a positive integer")
		return
	}

	page, err := s.productsService.List(c.Request.Context(), params)
	if err != nil {
		internalError(c, err)
		return
	}
	success(c, http.StatusOK, page)
}

// @Router /api/products/:pid [get]
func (s *Server) getProduct(c *gin.Context) {
	product, ok := s.loadProduct(c)
	if !ok {
		return
	}
	success(c, http.StatusOK, product)
}

// @Router /api/products [post]
func (s *Server) createProduct(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, s.logger, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		respondWithError(c, s.logger, http.StatusBadRequest, err, "Validation failed")
		return
	}

	owner := principal.Email
	if principal.Role == auth.RoleAdmin {
		owner = models.OwnerAdmin
	}

	product, err := s.productsService.Create(c.Request.Context(), products.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Code:        req.Code,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
		Owner:       owner,
	})
	if err != nil {
		if errors.Is(err, products.ErrDuplicateCode) {
			respondWithError(c, s.logger, http.StatusConflict, err, "Product code already exists")
			return
		}
		internalError(c, err)
		return
	}

	success(c, http.StatusCreated, product)
}

// @Router /api/products/:pid [put]
func (s *Server) updateProduct(c *gin.Context) {
	product, ok := s.loadOwnedProduct(c)
	if !ok {
		return
	}

	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, s.logger, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		respondWithError(c, s.logger, http.StatusBadRequest, err, "Validation failed")
		return
	}

	updated, err := s.productsService.Update(c.Request.Context(), product.ID, products.UpdateParams{
		Title:       req.Title,
		Description: req.Description,
		Code:        req.Code,
		Price:       req.Price,
		Stock:       req.Stock,
		Category:    req.Category,
		Status:      req.Status,
	})
	if err != nil {
		switch {
		case errors.Is(err, products.ErrDuplicateCode):
			respondWithError(c, s.logger, http.StatusConflict, err, "Product code already exists")
		case errors.Is(err, products.ErrProductNotFound):
			respondWithError(c, s.logger, http.StatusNotFound, err, "Product not found")
		default:
			internalError(c, err)
		}
		return
	}

	success(c, http.StatusOK, updated)
}

// @Router /api/products/:pid [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	product, ok := s.loadOwnedProduct(c)
	if !ok {
		return
	}

	if err := s.productsService.Delete(c.Request.Context(), product.ID); err != nil {
		if errors.Is(err, products.ErrProductNotFound) {
			respondWithError(c, s.logger, http.StatusNotFound, err, "Product not found")
			return
		}
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Product deleted"})
}

func (s *Server) loadProduct(c *gin.Context) (*models.Product, bool) {
	product, err := s.productsService.Get(c.Request.Context(), c.Param("pid"))
	if err != nil {
		if errors.Is(err, products.ErrProductNotFound) {
			respondWithError(c, s.logger, http.StatusNotFound, err, "Product not found")
			return nil, false
		}
		internalError(c, err)
		return nil, false
	}
	return product, true
}

// loadOwnedProduct loads the product and checks that the principal may
// modify it: admins may modify any product, others only their own
func (s *Server) loadOwnedProduct(c *gin.Context) (*models.Product, bool) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return nil, false
	}
	product, ok := s.loadProduct(c)
	if !ok {
		return nil, false
	}
	if principal.Role != auth.RoleAdmin && product.Owner != principal.Email {
		respondWithError(c, s.logger, http.StatusForbidden, errors.New("not product owner"), "You can only modify your own products")
		return nil, false
	}
	return product, true
}

// intQuery parses an optional positive integer query parameter
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
