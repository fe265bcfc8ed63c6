package carts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storefront-dev/storefront/internal/models"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrProductNotFound = errors.New("product not found")
	ErrItemNotFound    = errors.New("product is not in the cart")
	ErrEmptyCart       = errors.New("cart is empty")
)

// Service manages carts and purchases
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

// Get returns a cart with its items and their products
func (s *Service) Get(ctx context.Context, id string) (*models.Cart, error) {
	var cart models.Cart
	if err := models.FindByIDWithPreload(s.db.WithContext(ctx), id, &cart, "Items.Product"); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	return &cart, nil
}

// AddProduct adds one unit of a product, incrementing the line if present
func (s *Service) AddProduct(ctx context.Context, cartID, productID string) (*models.Cart, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.Cart{}, cartID, ErrCartNotFound); err != nil {
			return err
		}
		if err := exists(tx, &models.Product{}, productID, ErrProductNotFound); err != nil {
			return err
		}

		var item models.CartItem
		err := tx.Where("cart_id = ? AND product_id = ?", cartID, productID).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = models.CartItem{CartID: cartID, ProductID: productID, Quantity: 1}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to add product: %w", err)
			}
		case err != nil:
			return err
		default:
			if err := tx.Model(&item).Update("quantity", gorm.Expr("quantity + 1")).Error; err != nil {
				return fmt.Errorf("failed to increment quantity: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, cartID)
}

// RemoveProduct drops a product line from a cart
func (s *Service) RemoveProduct(ctx context.Context, cartID, productID string) (*models.Cart, error) {
	if _, err := s.Get(ctx, cartID); err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Where("cart_id = ? AND product_id = ?", cartID, productID).Delete(&models.CartItem{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to remove product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrItemNotFound
	}
	return s.Get(ctx, cartID)
}

// Clear empties a cart
func (s *Service) Clear(ctx context.Context, cartID string) (*models.Cart, error) {
	if _, err := s.Get(ctx, cartID); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}
	return s.Get(ctx, cartID)
}

// PurchaseResult is the outcome of a checkout. Ticket is nil when no item
// had enough stock.
type PurchaseResult struct {
	Ticket      *models.Ticket `json:"ticket"`
	Unavailable []string       `json:"unavailable_products"`
}

// Purchase buys every item with sufficient stock. Bought lines leave the
// cart; lines without stock stay and are reported by product id.
func (s *Service) Purchase(ctx context.Context, cartID, purchaser string) (*PurchaseResult, error) {
	result := &PurchaseResult{Unavailable: []string{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		if err := models.FindByIDWithPreload(tx, cartID, &cart, "Items.Product"); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartNotFound
			}
			return err
		}
		if len(cart.Items) == 0 {
			return ErrEmptyCart
		}

		var amount float64
		var bought []string
		for _, item := range cart.Items {
			if !item.Product.Status || item.Product.Stock < item.Quantity {
				result.Unavailable = append(result.Unavailable, item.ProductID)
				continue
			}

			// Conditional decrement keeps concurrent checkouts from overselling
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
				Update("stock", gorm.Expr("stock - ?", item.Quantity))
			if res.Error != nil {
				return fmt.Errorf("failed to update stock: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				result.Unavailable = append(result.Unavailable, item.ProductID)
				continue
			}

			amount += item.Product.Price * float64(item.Quantity)
			bought = append(bought, item.ID)
		}

		if len(bought) == 0 {
			return nil
		}

		if err := tx.Where("id IN ?", bought).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to remove purchased items: %w", err)
		}

		ticket := &models.Ticket{
			Code:        ulid.Make().String(),
			Amount:      amount,
			Purchaser:   purchaser,
			PurchasedAt: s.now().UTC(),
		}
		if err := tx.Create(ticket).Error; err != nil {
			return fmt.Errorf("failed to create ticket: %w", err)
		}
		result.Ticket = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Ticket != nil {
		s.logger.Info().
			Str("cart_id", cartID).
			Str("ticket", result.Ticket.Code).
			Float64("amount", result.Ticket.Amount).
			Int("unavailable", len(result.Unavailable)).
			Msg("Purchase completed")
	}
	return result, nil
}

func exists(tx *gorm.DB, model interface{}, id string, notFound error) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
