package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sale represents a completed point-of-sale checkout
type Sale struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	InvoiceNumber string         `gorm:"uniqueIndex;not null" json:"invoice_number"`
	BranchCode    string         `gorm:"type:varchar(50);index" json:"branch_code"`
	CustomerID    *string        `gorm:"type:varchar(36);index" json:"customer_id,omitempty"`
	Subtotal      float64        `json:"subtotal"`
	Discount      float64        `gorm:"default:0" json:"discount"`
	Tax           float64        `gorm:"default:0" json:"tax"`
	Total         float64        `json:"total"`
	PaymentMethod string         `gorm:"type:varchar(20);default:'cash'" json:"payment_method"`
	Status        string         `gorm:"type:varchar(20);default:'completed'" json:"status"`
	SoldBy        string         `json:"sold_by"`
	SoldAt        time.Time      `json:"sold_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Customer *Customer  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Items    []SaleItem `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"items"`
}

// TableName specifies the table name for Sale model
func (Sale) TableName() string {
	return "sales"
}

// BeforeCreate assigns a UUID so offline-created rows never collide across branches
func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.SoldAt.IsZero() {
		s.SoldAt = time.Now().UTC()
	}
	return nil
}

func (s *Sale) GetEntityID() string   { return s.ID }
func (s *Sale) GetEntityType() string { return EntityTypeSales }

// SaleItem represents one line of a sale
type SaleItem struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	SaleID      string  `gorm:"type:varchar(36);index;not null" json:"sale_id"`
	MedicineID  string  `gorm:"type:varchar(36);index;not null" json:"medicine_id"`
	BatchNumber string  `json:"batch_number"`
	Quantity    int     `gorm:"not null" json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`

	Medicine *Medicine `gorm:"foreignKey:MedicineID" json:"medicine,omitempty"`
}

// TableName specifies the table name for SaleItem model
func (SaleItem) TableName() string {
	return "sale_items"
}
