package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/rxstack/pharmgo/internal/models"
)

// ReceiveItemRequest is one received batch line
type ReceiveItemRequest struct {
	MedicineID  string  `json:"medicine_id"`
	BatchNumber string  `json:"batch_number"`
	Quantity    int     `json:"quantity"`
	UnitCost    float64 `json:"unit_cost"`
}

// ReceiveGoodsRequest records a delivery from a supplier
type ReceiveGoodsRequest struct {
	PurchaseOrderID *string              `json:"purchase_order_id,omitempty"`
	SupplierID      string               `json:"supplier_id"`
	ReceivedBy      string               `json:"received_by"`
	Items           []ReceiveItemRequest `json:"items"`
}

// listSuppliers returns suppliers known to the branch
func (r *Router) listSuppliers(w http.ResponseWriter, req *http.Request) {
	var suppliers []models.Supplier
	if err := r.db.Order("name").Find(&suppliers).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch suppliers")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"suppliers": suppliers,
		"count":     len(suppliers),
	})
}

// listPurchaseOrders returns purchase orders, optionally filtered by status
func (r *Router) listPurchaseOrders(w http.ResponseWriter, req *http.Request) {
	query := r.db.Model(&models.PurchaseOrder{}).Preload("Items")

	if status := req.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var orders []models.PurchaseOrder
	if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch purchase orders")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// getPurchaseOrder returns one purchase order with its lines
func (r *Router) getPurchaseOrder(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var order models.PurchaseOrder
	if err := r.db.Preload("Items").Preload("Supplier").
		First(&order, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Purchase order not found")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// receiveGoods books received stock into inventory: it writes the goods
// receipt, increments stock per batch and records everything for upload in a
// single transaction.
func (r *Router) receiveGoods(w http.ResponseWriter, req *http.Request) {
	var body ReceiveGoodsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if body.SupplierID == "" || len(body.Items) == 0 {
		respondError(w, http.StatusBadRequest, "Supplier and at least one item are required")
		return
	}

	receipt := models.GoodsReceipt{
		ReceiptNumber:   newReceiptNumber(r.cfg.BranchCode),
		BranchCode:      r.cfg.BranchCode,
		PurchaseOrderID: body.PurchaseOrderID,
		SupplierID:      body.SupplierID,
		ReceivedBy:      body.ReceivedBy,
	}

	err := r.store.WithTransaction(func(tx *gorm.DB) error {
		touched := make([]models.Medicine, 0, len(body.Items))

		for _, line := range body.Items {
			var med models.Medicine
			if err := tx.First(&med, "id = ?", line.MedicineID).Error; err != nil {
				return fmt.Errorf("medicine %s not found", line.MedicineID)
			}
			if line.Quantity <= 0 {
				return fmt.Errorf("invalid quantity for %s", med.Name)
			}

			med.Quantity += line.Quantity
			if line.BatchNumber != "" {
				med.BatchNumber = line.BatchNumber
			}
			if line.UnitCost > 0 {
				med.PurchasePrice = line.UnitCost
			}
			if err := tx.Save(&med).Error; err != nil {
				return err
			}
			touched = append(touched, med)

			receipt.Items = append(receipt.Items, models.GoodsReceiptItem{
				MedicineID:  line.MedicineID,
				BatchNumber: line.BatchNumber,
				Quantity:    line.Quantity,
				UnitCost:    line.UnitCost,
			})
		}

		if err := tx.Create(&receipt).Error; err != nil {
			return err
		}

		// Close out the purchase order if this receipt fulfils it
		if body.PurchaseOrderID != nil {
			var order models.PurchaseOrder
			if err := tx.First(&order, "id = ?", *body.PurchaseOrderID).Error; err == nil {
				order.Status = "received"
				if err := tx.Save(&order).Error; err != nil {
					return err
				}
				payload, err := json.Marshal(order)
				if err != nil {
					return err
				}
				if err := r.tracker.Record(tx, models.EntityTypePurchaseOrders, order.ID, models.OpUpdate, payload); err != nil {
					return err
				}
			}
		}

		payload, err := json.Marshal(receipt)
		if err != nil {
			return err
		}
		if err := r.tracker.Record(tx, models.EntityTypeGoodsReceipts, receipt.ID, models.OpCreate, payload); err != nil {
			return err
		}

		for _, med := range touched {
			medPayload, err := json.Marshal(med)
			if err != nil {
				return err
			}
			if err := r.tracker.Record(tx, models.EntityTypeMedicines, med.ID, models.OpUpdate, medPayload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, receipt)
}

// listGoodsReceipts returns goods receipts with their lines
func (r *Router) listGoodsReceipts(w http.ResponseWriter, req *http.Request) {
	var receipts []models.GoodsReceipt
	if err := r.db.Preload("Items").Order("received_at DESC").Find(&receipts).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch goods receipts")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
	})
}

// newReceiptNumber builds a branch-scoped GRN number unique across offline devices
func newReceiptNumber(branchCode string) string {
	return fmt.Sprintf("GRN-%s-%d", branchCode, time.Now().UnixNano()/int64(time.Millisecond))
}
