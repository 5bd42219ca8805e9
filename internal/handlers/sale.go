package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/rxstack/pharmgo/internal/models"
	"github.com/rxstack/pharmgo/internal/printer"
)

// SaleItemRequest is one line of a checkout request
type SaleItemRequest struct {
	MedicineID string `json:"medicine_id"`
	Quantity   int    `json:"quantity"`
}

// SaleRequest is a point-of-sale checkout
type SaleRequest struct {
	CustomerID    *string           `json:"customer_id,omitempty"`
	Items         []SaleItemRequest `json:"items"`
	Discount      float64           `json:"discount"`
	PaymentMethod string            `json:"payment_method"`
	SoldBy        string            `json:"sold_by"`
}

// listSales returns sales, optionally restricted to a date range
func (r *Router) listSales(w http.ResponseWriter, req *http.Request) {
	query := r.db.Model(&models.Sale{}).Preload("Items")

	if from := req.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			query = query.Where("sold_at >= ?", t)
		}
	}
	if to := req.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			query = query.Where("sold_at < ?", t.AddDate(0, 0, 1))
		}
	}

	var sales []models.Sale
	if err := query.Order("sold_at DESC").Find(&sales).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch sales")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sales": sales,
		"count": len(sales),
	})
}

// getSale returns a single sale with its line items
func (r *Router) getSale(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var sale models.Sale
	if err := r.db.Preload("Items.Medicine").Preload("Customer").
		First(&sale, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Sale not found")
		return
	}

	respondJSON(w, http.StatusOK, sale)
}

// createSale completes a checkout: it decrements stock, writes the sale and
// records everything for upload in a single transaction, so a crash can never
// leave a sale without its stock movement.
func (r *Router) createSale(w http.ResponseWriter, req *http.Request) {
	var body SaleRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(body.Items) == 0 {
		respondError(w, http.StatusBadRequest, "Sale must have at least one item")
		return
	}

	sale := models.Sale{
		InvoiceNumber: newInvoiceNumber(r.cfg.BranchCode),
		BranchCode:    r.cfg.BranchCode,
		CustomerID:    body.CustomerID,
		Discount:      body.Discount,
		PaymentMethod: body.PaymentMethod,
		SoldBy:        body.SoldBy,
		Status:        "completed",
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
			if med.Quantity < line.Quantity {
				return fmt.Errorf("insufficient stock for %s (have %d, need %d)", med.Name, med.Quantity, line.Quantity)
			}

			med.Quantity -= line.Quantity
			if err := tx.Save(&med).Error; err != nil {
				return err
			}
			touched = append(touched, med)

			lineTotal := float64(line.Quantity) * med.SalePrice
			lineTax := lineTotal * med.TaxPercent / 100
			sale.Items = append(sale.Items, models.SaleItem{
				MedicineID:  med.ID,
				BatchNumber: med.BatchNumber,
				Quantity:    line.Quantity,
				UnitPrice:   med.SalePrice,
				LineTotal:   lineTotal,
			})
			sale.Subtotal += lineTotal
			sale.Tax += lineTax
		}

		sale.Total = sale.Subtotal + sale.Tax - sale.Discount

		if err := tx.Create(&sale).Error; err != nil {
			return err
		}

		// Customer running totals ride along on the next customer upload
		if sale.CustomerID != nil {
			var customer models.Customer
			if err := tx.First(&customer, "id = ?", *sale.CustomerID).Error; err == nil {
				customer.TotalPurchases += sale.Total
				customer.LoyaltyPoints += int(sale.Total / 10)
				if err := tx.Save(&customer).Error; err != nil {
					return err
				}
				payload, err := json.Marshal(customer)
				if err != nil {
					return err
				}
				if err := r.tracker.Record(tx, models.EntityTypeCustomers, customer.ID, models.OpUpdate, payload); err != nil {
					return err
				}
			}
		}

		payload, err := json.Marshal(sale)
		if err != nil {
			return err
		}
		if err := r.tracker.Record(tx, models.EntityTypeSales, sale.ID, models.OpCreate, payload); err != nil {
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

	respondJSON(w, http.StatusCreated, sale)
}

// printReceipt renders the sale receipt as a PDF
func (r *Router) printReceipt(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var sale models.Sale
	if err := r.db.Preload("Items.Medicine").First(&sale, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Sale not found")
		return
	}

	pdfBytes, err := printer.GenerateReceiptPDF(&sale, r.cfg.BranchCode)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to generate PDF: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"receipt_%s.pdf\"", sale.InvoiceNumber))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.Write(pdfBytes)
}

// newInvoiceNumber builds a branch-scoped invoice number that stays unique
// across offline devices without a central sequence
func newInvoiceNumber(branchCode string) string {
	return fmt.Sprintf("INV-%s-%d", branchCode, time.Now().UnixNano()/int64(time.Millisecond))
}
