package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storefront-dev/storefront/internal/models"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrDuplicateCode   = errors.New("product code already exists")
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Service manages the product catalog
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// ListParams filters and paginates the catalog
type ListParams struct {
	Limit    int
	Page     int
	Sort     string // asc, desc by price; empty keeps creation order
	Category string
}

// Page is one page of catalog results
type Page struct {
	Products   []models.Product `json:"products"`
	TotalPages int              `json:"total_pages"`
	Page       int              `json:"page"`
	HasPrev    bool             `json:"has_prev_page"`
	HasNext    bool             `json:"has_next_page"`
	PrevPage   *int             `json:"prev_page"`
	NextPage   *int             `json:"next_page"`
}

// List returns a page of products
func (s *Service) List(ctx context.Context, params ListParams) (*Page, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}

	// gorm chains are not reusable after a finisher, so build one per query
	filtered := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Product{})
		if params.Category != "" {
			q = q.Where("category = ?", params.Category)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	query := filtered()
	switch params.Sort {
	case "asc":
		query = query.Order("price ASC")
	case "desc":
		query = query.Order("price DESC")
	default:
		query = query.Order("created_at ASC")
	}

	var items []models.Product
	if err := query.Limit(limit).Offset((page - 1) * limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages == 0 {
		totalPages = 1
	}

	result := &Page{
		Products:   items,
		TotalPages: totalPages,
		Page:       page,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
	if result.HasPrev {
		prev := page - 1
		result.PrevPage = &prev
	}
	if result.HasNext {
		next := page + 1
		result.NextPage = &next
	}
	return result, nil
}

// Get returns a product by id
func (s *Service) Get(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := models.FindByID(s.db.WithContext(ctx), id, &product); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// CreateParams holds the fields of a new product
type CreateParams struct {
	Title       string
	Description string
	Code        string
	Price       float64
	Stock       int
	Category    string
	Owner       string
}

// Create adds a product to the catalog
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Product, error) {
	if err := s.ensureUniqueCode(ctx, params.Code, ""); err != nil {
		return nil, err
	}

	product := &models.Product{
		Title:       params.Title,
		Description: params.Description,
		Code:        params.Code,
		Price:       params.Price,
		Stock:       params.Stock,
		Category:    params.Category,
		Status:      true,
		Owner:       params.Owner,
	}
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info().Str("product_id", product.ID).Str("owner", product.Owner).Msg("Product created")
	return product, nil
}

// UpdateParams holds optional product changes; nil fields are left alone
type UpdateParams struct {
	Title       *string
	Description *string
	Code        *string
	Price       *float64
	Stock       *int
	Category    *string
	Status      *bool
}

// Update applies changes to a product
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*models.Product, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if params.Title != nil {
		updates["title"] = *params.Title
	}
	if params.Description != nil {
		updates["description"] = *params.Description
	}
	if params.Code != nil && *params.Code != product.Code {
		if err := s.ensureUniqueCode(ctx, *params.Code, id); err != nil {
			return nil, err
		}
		updates["code"] = *params.Code
	}
	if params.Price != nil {
		updates["price"] = *params.Price
	}
	if params.Stock != nil {
		updates["stock"] = *params.Stock
	}
	if params.Category != nil {
		updates["category"] = *params.Category
	}
	if params.Status != nil {
		updates["status"] = *params.Status
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(product).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update product: %w", err)
		}
	}

	return s.Get(ctx, id)
}

// Delete removes a product
func (s *Service) Delete(ctx context.Context, id string) error {
	product, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to detach product from carts: %w", err)
	}
	if err := s.db.WithContext(ctx).Delete(product).Error; err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.logger.Info().Str("product_id", id).Msg("Product deleted")
	return nil
}

func (s *Service) ensureUniqueCode(ctx context.Context, code, exceptID string) error {
	query := s.db.WithContext(ctx).Model(&models.Product{}).Where("code = ?", code)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check product code: %w", err)
	}
	if count > 0 {
		return ErrDuplicateCode
	}
	return nil
}
