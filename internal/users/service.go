package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
	ErrRoleLocked   = errors.New("admin role cannot be changed")
)

// Service is the identity store: it owns user records and implements
// auth.AccountStore for the authentication strategies
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{db: db, logger: logger, now: time.Now}
}

// RegisterParams holds the fields of a new account
type RegisterParams struct {
	FirstName string
	LastName  string
	Email     string
	Age       int
	Password  string
	Role      auth.Role // defaults to user
}

// Register creates a user together with an empty cart
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	role := params.Role
	if role == "" {
		role = auth.RoleUser
	}

	passwordHash, err := auth.HashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        email,
		Age:          params.Age,
		PasswordHash: passwordHash,
		Role:         string(role),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if count > 0 {
			return ErrEmailTaken
		}

		cart := &models.Cart{}
		if err := tx.Create(cart).Error; err != nil {
			return fmt.Errorf("failed to create cart: %w", err)
		}
		user.CartID = cart.ID

		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Str("role", user.Role).Msg("User registered")
	return user, nil
}

// Get returns a user by id
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := models.FindByID(s.db.WithContext(ctx), id, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// List returns all users, newest first
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// TogglePremium switches a user between the user and premium roles
func (s *Service) TogglePremium(ctx context.Context, id string) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var next auth.Role
	switch auth.Role(user.Role) {
	case auth.RoleUser:
		next = auth.RolePremium
	case auth.RolePremium:
		next = auth.RoleUser
	default:
		return nil, ErrRoleLocked
	}

	if err := s.db.WithContext(ctx).Model(user).Update("role", string(next)).Error; err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	user.Role = string(next)

	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("User role changed")
	return user, nil
}

// TouchLastConnection records the time of a login or logout
func (s *Service) TouchLastConnection(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_connection", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// PurgeInactive deletes non-admin users whose last connection (or signup,
// if they never connected) is older than maxAge, along with their carts
func (s *Service) PurgeInactive(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []models.User
		if err := tx.Where("role <> ?", string(auth.RoleAdmin)).
			Where("(last_connection IS NULL AND created_at < ?) OR last_connection < ?", cutoff, cutoff).
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}

		ids := make([]string, 0, len(stale))
		cartIDs := make([]string, 0, len(stale))
		for _, u := range stale {
			ids = append(ids, u.ID)
			if u.CartID != "" {
				cartIDs = append(cartIDs, u.CartID)
			}
		}

		if len(cartIDs) > 0 {
			if err := tx.Where("cart_id IN ?", cartIDs).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", cartIDs).Delete(&models.Cart{}).Error; err != nil {
				return err
			}
		}

		res := tx.Where("id IN ?", ids).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge inactive users: %w", err)
	}

	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("Purged inactive users")
	}
	return removed, nil
}

// AccountByEmail implements auth.AccountStore
func (s *Service) AccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, err
	}
	return toAccount(&user)
}

// AccountByID implements auth.AccountStore
func (s *Service) AccountByID(ctx context.Context, id string) (*auth.Account, error) {
	var user models.User
	if err := models.FindByID(s.db.WithContext(ctx), id, &user); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, err
	}
	return toAccount(&user)
}

func toAccount(user *models.User) (*auth.Account, error) {
	role, err := auth.ParseRole(user.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user.ID, err)
	}
	return &auth.Account{
		ID:           user.ID,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Role:         role,
	}, nil
}
