package models

// EntityType names one syncable business collection. The values double as
// the wire identifiers used by the cloud pull/push endpoints and as keys in
// the watermark table, so they must stay stable.
const (
	EntityTypeMedicines      = "medicines"
	EntityTypeCustomers      = "customers"
	EntityTypeSuppliers      = "suppliers"
	EntityTypeSales          = "sales"
	EntityTypePurchaseOrders = "purchase_orders"
	EntityTypeGoodsReceipts  = "goods_receipts"
)

// SyncEntityTypes lists every syncable collection in the order the engine
// processes them: reference data first, then documents that point at it.
var SyncEntityTypes = []string{
	EntityTypeMedicines,
	EntityTypeCustomers,
	EntityTypeSuppliers,
	EntityTypePurchaseOrders,
	EntityTypeGoodsReceipts,
	EntityTypeSales,
}

// Syncable is implemented by models that participate in branch/cloud sync
type Syncable interface {
	GetEntityID() string
	GetEntityType() string
}
