// Package store provides the local store adapter: uniform transactional
// read/write access to the branch database for every syncable collection,
// independent of the backing engine.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/rxstack/pharmgo/internal/database"
	"github.com/rxstack/pharmgo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Adapter mediates all sync-driven reads and writes to the branch database.
// POS and inventory code paths share the same connection, so every batch of
// writes goes through a short WithTransaction block.
type Adapter struct {
	db       *database.DB
	registry map[string]func() models.Syncable
}

// New creates an adapter with all syncable collections registered
func New(db *database.DB) *Adapter {
	return &Adapter{
		db: db,
		registry: map[string]func() models.Syncable{
			models.EntityTypeMedicines:      func() models.Syncable { return &models.Medicine{} },
			models.EntityTypeCustomers:      func() models.Syncable { return &models.Customer{} },
			models.EntityTypeSuppliers:      func() models.Syncable { return &models.Supplier{} },
			models.EntityTypeSales:          func() models.Syncable { return &models.Sale{} },
			models.EntityTypePurchaseOrders: func() models.Syncable { return &models.PurchaseOrder{} },
			models.EntityTypeGoodsReceipts:  func() models.Syncable { return &models.GoodsReceipt{} },
		},
	}
}

// DB exposes the underlying handle for non-sync consumers (handlers, tracker)
func (a *Adapter) DB() *gorm.DB {
	return a.db.DB
}

// NewEntity returns an empty model for the given entity type
func (a *Adapter) NewEntity(entityType string) (models.Syncable, error) {
	factory, ok := a.registry[entityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type: %s", entityType)
	}
	return factory(), nil
}

// WithTransaction runs fn inside a single database transaction. A failed fn
// rolls back every write it made, which is what keeps a download batch and
// its watermark advance consistent across crashes.
func (a *Adapter) WithTransaction(fn func(tx *gorm.DB) error) error {
	return a.db.DB.Transaction(fn)
}

// UpsertJSON decodes a server record and writes it over any local copy.
// Line items of document entities are replaced wholesale, since the server
// snapshot is authoritative for the whole row.
func (a *Adapter) UpsertJSON(tx *gorm.DB, entityType string, payload json.RawMessage) error {
	entity, err := a.NewEntity(entityType)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, entity); err != nil {
		return fmt.Errorf("decode %s record: %w", entityType, err)
	}
	if entity.GetEntityID() == "" {
		return fmt.Errorf("%s record has no id", entityType)
	}

	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
		Omit(clause.Associations).
		Create(entity).Error; err != nil {
		return fmt.Errorf("upsert %s %s: %w", entityType, entity.GetEntityID(), err)
	}

	return a.replaceLineItems(tx, entity)
}

// replaceLineItems rewrites child rows for document entities
func (a *Adapter) replaceLineItems(tx *gorm.DB, entity models.Syncable) error {
	switch e := entity.(type) {
	case *models.Sale:
		if err := tx.Where("sale_id = ?", e.ID).Delete(&models.SaleItem{}).Error; err != nil {
			return err
		}
		for i := range e.Items {
			e.Items[i].ID = 0
			e.Items[i].SaleID = e.ID
		}
		if len(e.Items) > 0 {
			return tx.Create(&e.Items).Error
		}
	case *models.PurchaseOrder:
		if err := tx.Where("purchase_order_id = ?", e.ID).Delete(&models.PurchaseOrderItem{}).Error; err != nil {
			return err
		}
		for i := range e.Items {
			e.Items[i].ID = 0
			e.Items[i].PurchaseOrderID = e.ID
		}
		if len(e.Items) > 0 {
			return tx.Create(&e.Items).Error
		}
	case *models.GoodsReceipt:
		if err := tx.Where("goods_receipt_id = ?", e.ID).Delete(&models.GoodsReceiptItem{}).Error; err != nil {
			return err
		}
		for i := range e.Items {
			e.Items[i].ID = 0
			e.Items[i].GoodsReceiptID = e.ID
		}
		if len(e.Items) > 0 {
			return tx.Create(&e.Items).Error
		}
	}
	return nil
}

// Delete soft-deletes the local copy of an entity. Missing rows are not an
// error: a server-side delete may refer to a record this branch never pulled.
func (a *Adapter) Delete(tx *gorm.DB, entityType, id string) error {
	entity, err := a.NewEntity(entityType)
	if err != nil {
		return err
	}
	if err := tx.Where("id = ?", id).Delete(entity).Error; err != nil {
		return fmt.Errorf("delete %s %s: %w", entityType, id, err)
	}
	return nil
}

// ReadJSON loads one entity and returns its serialized snapshot
func (a *Adapter) ReadJSON(entityType, id string) (json.RawMessage, error) {
	entity, err := a.NewEntity(entityType)
	if err != nil {
		return nil, err
	}
	if err := a.db.DB.Where("id = ?", id).First(entity).Error; err != nil {
		return nil, err
	}
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Exists reports whether a live (not soft-deleted) local copy is present
func (a *Adapter) Exists(tx *gorm.DB, entityType, id string) (bool, error) {
	entity, err := a.NewEntity(entityType)
	if err != nil {
		return false, err
	}
	var count int64
	if err := tx.Model(entity).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
