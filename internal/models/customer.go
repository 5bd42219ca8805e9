package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer represents a loyalty/walk-in customer of the branch
type Customer struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name           string         `gorm:"not null;index" json:"name"`
	Phone          string         `gorm:"index" json:"phone"`
	Email          string         `json:"email"`
	Address        string         `json:"address"`
	LoyaltyPoints  int            `gorm:"default:0" json:"loyalty_points"`
	TotalPurchases float64        `gorm:"default:0" json:"total_purchases"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Customer model
func (Customer) TableName() string {
	return "customers"
}

// BeforeCreate assigns a UUID so offline-created rows never collide across branches
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (c *Customer) GetEntityID() string   { return c.ID }
func (c *Customer) GetEntityType() string { return EntityTypeCustomers }
