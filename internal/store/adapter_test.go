package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rxstack/pharmgo/internal/database"
	"github.com/rxstack/pharmgo/internal/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	err = gdb.AutoMigrate(
		&models.Medicine{},
		&models.Customer{},
		&models.Supplier{},
		&models.Sale{},
		&models.SaleItem{},
		&models.PurchaseOrder{},
		&models.PurchaseOrderItem{},
		&models.GoodsReceipt{},
		&models.GoodsReceiptItem{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return &database.DB{DB: gdb}
}

func TestUpsertJSONCreatesAndUpdates(t *testing.T) {
	db := newTestDB(t)
	adapter := New(db)

	create := json.RawMessage(`{"id":"med-1","name":"Paracetamol","barcode":"890123","quantity":40,"sale_price":2.5}`)
	err := adapter.WithTransaction(func(tx *gorm.DB) error {
		return adapter.UpsertJSON(tx, models.EntityTypeMedicines, create)
	})
	if err != nil {
		t.Fatalf("UpsertJSON (create) failed: %v", err)
	}

	update := json.RawMessage(`{"id":"med-1","name":"Paracetamol 500mg","barcode":"890123","quantity":35,"sale_price":2.75}`)
	err = adapter.WithTransaction(func(tx *gorm.DB) error {
		return adapter.UpsertJSON(tx, models.EntityTypeMedicines, update)
	})
	if err != nil {
		t.Fatalf("UpsertJSON (update) failed: %v", err)
	}

	var medicines []models.Medicine
	if err := db.Find(&medicines).Error; err != nil {
		t.Fatalf("Failed to load medicines: %v", err)
	}
	if len(medicines) != 1 {
		t.Fatalf("Expected single row after upsert, got %d", len(medicines))
	}
	if medicines[0].Name != "Paracetamol 500mg" || medicines[0].Quantity != 35 {
		t.Errorf("Expected updated fields, got %+v", medicines[0])
	}
}

func TestUpsertJSONRejectsMissingID(t *testing.T) {
	db := newTestDB(t)
	adapter := New(db)

	err := adapter.WithTransaction(func(tx *gorm.DB) error {
		return adapter.UpsertJSON(tx, models.EntityTypeCustomers, json.RawMessage(`{"name":"No ID"}`))
	})
	if err == nil {
		t.Error("Expected error for record without id")
	}
}

func TestUpsertJSONReplacesLineItems(t *testing.T) {
	db := newTestDB(t)
	adapter := New(db)

	first := json.RawMessage(`{
		"id":"sale-1","invoice_number":"INV-1","total":10,
		"items":[
			{"medicine_id":"med-1","quantity":2,"unit_price":2.5,"line_total":5},
			{"medicine_id":"med-2","quantity":1,"unit_price":5,"line_total":5}
		]}`)
	err := adapter.WithTransaction(func(tx *gorm.DB) error {
		return adapter.UpsertJSON(tx, models.EntityTypeSales, first)
	})
	if err != nil {
		t.Fatalf("UpsertJSON failed: %v", err)
	}

	// Server resends the sale with a single corrected line
	second := json.RawMessage(`{
		"id":"sale-1","invoice_number":"INV-1","total":5,
		"items":[{"medicine_id":"med-1","quantity":2,"unit_price":2.5,"line_total":5}]}`)
	err = adapter.WithTransaction(func(tx *gorm.DB) error {
		return adapter.UpsertJSON(tx, models.EntityTypeSales, second)
	})
	if err != nil {
		t.Fatalf("UpsertJSON (resend) failed: %v", err)
	}

	var items []models.SaleItem
	if err := db.Where("sale_id = ?", "sale-1").Find(&items).Error; err != nil {
		t.Fatalf("Failed to load items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected items replaced wholesale, got %d rows", len(items))
	}
	if items[0].MedicineID != "med-1" || items[0].Quantity != 2 {
		t.Errorf("Unexpected surviving item: %+v", items[0])
	}
}

func TestDeleteIsSoftAndTolerant(t *testing.T) {
	db := newTestDB(t)
	adapter := New(db)

	payload := json.RawMessage(`{"id":"cus-1","name":"Walk-in"}`)
	err := adapter.WithTransaction(func(tx *gorm.DB) error {
		return adapter.UpsertJSON(tx, models.EntityTypeCustomers, payload)
	})
	if err != nil {
		t.Fatalf("UpsertJSON failed: %v", err)
	}

	err = adapter.WithTransaction(func(tx *gorm.DB) error {
		return adapter.Delete(tx, models.EntityTypeCustomers, "cus-1")
	})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	// Soft delete hides the row from normal queries but keeps it on disk
	var visible int64
	db.Model(&models.Customer{}).Count(&visible)
	if visible != 0 {
		t.Errorf("Expected 0 visible customers, got %d", visible)
	}
	var total int64
	db.Unscoped().Model(&models.Customer{}).Count(&total)
	if total != 1 {
		t.Errorf("Expected soft-deleted row retained, got %d", total)
	}

	// Deleting a record this branch never pulled is not an error
	err = adapter.WithTransaction(func(tx *gorm.DB) error {
		return adapter.Delete(tx, models.EntityTypeCustomers, "cus-unknown")
	})
	if err != nil {
		t.Errorf("Expected missing row to be tolerated, got %v", err)
	}
}

func TestWithTransactionRollsBackAllWrites(t *testing.T) {
	db := newTestDB(t)
	adapter := New(db)

	boom := errors.New("boom")
	err := adapter.WithTransaction(func(tx *gorm.DB) error {
		if err := adapter.UpsertJSON(tx, models.EntityTypeMedicines, json.RawMessage(`{"id":"med-1","name":"A"}`)); err != nil {
			return err
		}
		if err := adapter.UpsertJSON(tx, models.EntityTypeMedicines, json.RawMessage(`{"id":"med-2","name":"B"}`)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected propagated error, got %v", err)
	}

	var count int64
	db.Model(&models.Medicine{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected rollback to discard all writes, got %d rows", count)
	}
}

func TestReadJSONAndExists(t *testing.T) {
	db := newTestDB(t)
	adapter := New(db)

	err := adapter.WithTransaction(func(tx *gorm.DB) error {
		return adapter.UpsertJSON(tx, models.EntityTypeSuppliers, json.RawMessage(`{"id":"sup-1","name":"MedSupply"}`))
	})
	if err != nil {
		t.Fatalf("UpsertJSON failed: %v", err)
	}

	data, err := adapter.ReadJSON(models.EntityTypeSuppliers, "sup-1")
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	var supplier models.Supplier
	if err := json.Unmarshal(data, &supplier); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if supplier.Name != "MedSupply" {
		t.Errorf("Expected snapshot round trip, got %+v", supplier)
	}

	var exists bool
	adapter.WithTransaction(func(tx *gorm.DB) error {
		exists, err = adapter.Exists(tx, models.EntityTypeSuppliers, "sup-1")
		return err
	})
	if !exists {
		t.Error("Expected supplier to exist")
	}

	adapter.WithTransaction(func(tx *gorm.DB) error {
		exists, err = adapter.Exists(tx, models.EntityTypeSuppliers, "sup-404")
		return err
	})
	if exists {
		t.Error("Expected missing supplier to not exist")
	}
}

func TestNewEntityUnknownType(t *testing.T) {
	adapter := New(newTestDB(t))
	if _, err := adapter.NewEntity("prescriptions"); err == nil {
		t.Error("Expected error for unregistered entity type")
	}
}
