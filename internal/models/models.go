package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// User is a storefront account. Role is one of user, premium, admin.
type User struct {
	BaseModel
	FirstName      string     `json:"first_name" gorm:"not null"`
	LastName       string     `json:"last_name" gorm:"not null"`
	Email          string     `json:"email" gorm:"unique;not null"`
	Age            int        `json:"age"`
	PasswordHash   string     `json:"-" gorm:"not null"`
	Role           string     `json:"role" gorm:"type:varchar(16);not null;default:user"`
	CartID         string     `json:"cart_id" gorm:"type:varchar(26)"`
	LastConnection *time.Time `json:"last_connection"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// Product is a catalog entry. Owner is the email of the creating user, or
// "admin" for products created by an administrator.
type Product struct {
	BaseModel
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description"`
	Code        string    `json:"code" gorm:"unique;not null"`
	Price       float64   `json:"price" gorm:"not null"`
	Status      bool      `json:"status" gorm:"not null;default:true"`
	Stock       int       `json:"stock" gorm:"not null;default:0"`
	Category    string    `json:"category" gorm:"index"`
	Owner       string    `json:"owner" gorm:"not null;default:admin"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// OwnerAdmin is the owner recorded for products created by administrators
const OwnerAdmin = "admin"

// Cart holds the products a user intends to purchase
type Cart struct {
	BaseModel
	Items []CartItem `json:"products" gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
}

// CartItem is a product line within a cart
type CartItem struct {
	BaseModel
	CartID    string `json:"-" gorm:"type:varchar(26);not null;index"`
	ProductID string `json:"product_id" gorm:"type:varchar(26);not null"`
	Quantity  int    `json:"quantity" gorm:"not null;default:1"`

	// Relationships
	Product Product `json:"product,omitzero" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

// Ticket records a completed purchase
type Ticket struct {
	BaseModel
	Code        string    `json:"code" gorm:"unique;not null"`
	Amount      float64   `json:"amount" gorm:"not null"`
	Purchaser   string    `json:"purchaser" gorm:"not null"`
	PurchasedAt time.Time `json:"purchased_at" gorm:"not null"`
}

// Message is a persisted chat line
type Message struct {
	BaseModel
	User    string `json:"user" gorm:"not null"`
	Message string `json:"message" gorm:"type:text;not null"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	// Collect all models
	models := []interface{}{
		&User{}, &Product{}, &Cart{}, &CartItem{}, &Ticket{}, &Message{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}

// FindByIDWithPreload finds a record by ID with preloading
func FindByIDWithPreload[T any](db *gorm.DB, id string, model *T, preloads ...string) error {
	query := db
	for _, preload := range preloads {
		query = query.Preload(preload)
	}
	return query.Where("id = ?", id).First(model).Error
}
