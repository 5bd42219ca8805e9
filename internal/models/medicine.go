package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Medicine represents a stocked product in the branch inventory
type Medicine struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string         `gorm:"not null;index" json:"name"`
	GenericName  string         `gorm:"index" json:"generic_name"`
	Barcode      string         `gorm:"uniqueIndex" json:"barcode"`
	BatchNumber  string         `json:"batch_number"`
	Category     string         `json:"category"`
	Manufacturer string         `json:"manufacturer"`
	RackLocation string         `json:"rack_location"`
	Unit         string         `gorm:"type:varchar(20);default:'pcs'" json:"unit"`
	PurchasePrice float64       `json:"purchase_price"`
	SalePrice    float64        `json:"sale_price"`
	TaxPercent   float64        `gorm:"default:0" json:"tax_percent"`
	Quantity     int            `gorm:"default:0" json:"quantity"`
	MinStock     int            `gorm:"default:0" json:"min_stock"`
	ExpiryDate   *time.Time     `json:"expiry_date,omitempty"`
	RequiresRx   bool           `gorm:"default:false" json:"requires_rx"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Medicine model
func (Medicine) TableName() string {
	return "medicines"
}

// BeforeCreate assigns a UUID so offline-created rows never collide across branches
func (m *Medicine) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

func (m *Medicine) GetEntityID() string   { return m.ID }
func (m *Medicine) GetEntityType() string { return EntityTypeMedicines }
