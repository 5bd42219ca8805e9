package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PurchaseOrder represents an order placed with a supplier
type PurchaseOrder struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderNumber string         `gorm:"uniqueIndex;not null" json:"order_number"`
	BranchCode  string         `gorm:"type:varchar(50);index" json:"branch_code"`
	SupplierID  string         `gorm:"type:varchar(36);index;not null" json:"supplier_id"`
	Status      string         `gorm:"type:varchar(20);default:'draft'" json:"status"` // draft, ordered, received, cancelled
	ExpectedAt  *time.Time     `json:"expected_at,omitempty"`
	Total       float64        `json:"total"`
	Notes       string         `json:"notes"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Supplier *Supplier           `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	Items    []PurchaseOrderItem `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE" json:"items"`
}

// TableName specifies the table name for PurchaseOrder model
func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// BeforeCreate assigns a UUID so offline-created rows never collide across branches
func (po *PurchaseOrder) BeforeCreate(tx *gorm.DB) error {
	if po.ID == "" {
		po.ID = uuid.NewString()
	}
	return nil
}

func (po *PurchaseOrder) GetEntityID() string   { return po.ID }
func (po *PurchaseOrder) GetEntityType() string { return EntityTypePurchaseOrders }

// PurchaseOrderItem represents one line of a purchase order
type PurchaseOrderItem struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	PurchaseOrderID string  `gorm:"type:varchar(36);index;not null" json:"purchase_order_id"`
	MedicineID      string  `gorm:"type:varchar(36);index;not null" json:"medicine_id"`
	Quantity        int     `gorm:"not null" json:"quantity"`
	UnitCost        float64 `json:"unit_cost"`
	LineTotal       float64 `json:"line_total"`
}

// TableName specifies the table name for PurchaseOrderItem model
func (PurchaseOrderItem) TableName() string {
	return "purchase_order_items"
}

// GoodsReceipt records stock received against a purchase order (GRN)
type GoodsReceipt struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReceiptNumber   string         `gorm:"uniqueIndex;not null" json:"receipt_number"`
	BranchCode      string         `gorm:"type:varchar(50);index" json:"branch_code"`
	PurchaseOrderID *string        `gorm:"type:varchar(36);index" json:"purchase_order_id,omitempty"`
	SupplierID      string         `gorm:"type:varchar(36);index;not null" json:"supplier_id"`
	ReceivedBy      string         `json:"received_by"`
	ReceivedAt      time.Time      `json:"received_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	Items []GoodsReceiptItem `gorm:"foreignKey:GoodsReceiptID;constraint:OnDelete:CASCADE" json:"items"`
}

// TableName specifies the table name for GoodsReceipt model
func (GoodsReceipt) TableName() string {
	return "goods_receipts"
}

// BeforeCreate assigns a UUID so offline-created rows never collide across branches
func (gr *GoodsReceipt) BeforeCreate(tx *gorm.DB) error {
	if gr.ID == "" {
		gr.ID = uuid.NewString()
	}
	if gr.ReceivedAt.IsZero() {
		gr.ReceivedAt = time.Now().UTC()
	}
	return nil
}

func (gr *GoodsReceipt) GetEntityID() string   { return gr.ID }
func (gr *GoodsReceipt) GetEntityType() string { return EntityTypeGoodsReceipts }

// GoodsReceiptItem represents one received batch line
type GoodsReceiptItem struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	GoodsReceiptID string     `gorm:"type:varchar(36);index;not null" json:"goods_receipt_id"`
	MedicineID     string     `gorm:"type:varchar(36);index;not null" json:"medicine_id"`
	BatchNumber    string     `json:"batch_number"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	Quantity       int        `gorm:"not null" json:"quantity"`
	UnitCost       float64    `json:"unit_cost"`
}

// TableName specifies the table name for GoodsReceiptItem model
func (GoodsReceiptItem) TableName() string {
	return "goods_receipt_items"
}
