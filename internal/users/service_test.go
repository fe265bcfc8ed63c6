package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/database"
	"github.com/storefront-dev/storefront/internal/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "users.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return NewService(db, zerolog.Nop()), db
}

func register(t *testing.T, s *Service, email string, role auth.Role) *models.User {
	t.Helper()
	user, err := s.Register(context.Background(), RegisterParams{
		FirstName: "Ada", LastName: "Lovelace", Email: email, Age: 36, Password: "hunter2", Role: role,
	})
	require.NoError(t, err)
	return user
}

func TestRegister(t *testing.T) {
	s, db := newTestService(t)

	user := register(t, s, "  Ada@Shop.Test ", "")
	assert.Equal(t, "ada@shop.test", user.Email)
	assert.Equal(t, "user", user.Role)
	assert.NotEmpty(t, user.CartID)
	assert.NoError(t, auth.VerifyPassword("hunter2", user.PasswordHash))

	var cart models.Cart
	require.NoError(t, models.FindByID(db, user.CartID, &cart))

	_, err := s.Register(context.Background(), RegisterParams{Email: "ada@shop.test", Password: "x"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAccountStore(t *testing.T) {
	s, _ := newTestService(t)
	user := register(t, s, "ada@shop.test", auth.RolePremium)

	byEmail, err := s.AccountByEmail(context.Background(), "ada@shop.test")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, auth.RolePremium, byEmail.Role)

	byID, err := s.AccountByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, byEmail, byID)

	_, err = s.AccountByEmail(context.Background(), "ghost@shop.test")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
	_, err = s.AccountByID(context.Background(), "missing")
	assert.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestTogglePremium(t *testing.T) {
	s, _ := newTestService(t)
	user := register(t, s, "ada@shop.test", "")
	admin := register(t, s, "root@shop.test", auth.RoleAdmin)

	toggled, err := s.TogglePremium(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "premium", toggled.Role)

	toggled, err = s.TogglePremium(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "user", toggled.Role)

	_, err = s.TogglePremium(context.Background(), admin.ID)
	assert.ErrorIs(t, err, ErrRoleLocked)

	_, err = s.TogglePremium(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPurgeInactive(t *testing.T) {
	s, db := newTestService(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	stale := register(t, s, "stale@shop.test", "")
	fresh := register(t, s, "fresh@shop.test", "")
	admin := register(t, s, "root@shop.test", auth.RoleAdmin)

	old := now.Add(-72 * time.Hour)
	require.NoError(t, s.TouchLastConnection(context.Background(), stale.ID, old))
	require.NoError(t, s.TouchLastConnection(context.Background(), fresh.ID, now.Add(-time.Hour)))
	require.NoError(t, s.TouchLastConnection(context.Background(), admin.ID, old))

	removed, err := s.PurgeInactive(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.Get(context.Background(), stale.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	var cartCount int64
	require.NoError(t, db.Model(&models.Cart{}).Where("id = ?", stale.CartID).Count(&cartCount).Error)
	assert.Zero(t, cartCount)

	_, err = s.Get(context.Background(), fresh.ID)
	assert.NoError(t, err)
	_, err = s.Get(context.Background(), admin.ID)
	assert.NoError(t, err)
}

func TestTouchLastConnection_Unknown(t *testing.T) {
	s, _ := newTestService(t)
	assert.ErrorIs(t, s.TouchLastConnection(context.Background(), "missing", time.Now()), ErrUserNotFound)
}
