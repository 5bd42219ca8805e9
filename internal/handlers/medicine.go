package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/rxstack/pharmgo/internal/models"
	"github.com/rxstack/pharmgo/internal/printer"
)

// listMedicines returns inventory, optionally filtered by search text or category
func (r *Router) listMedicines(w http.ResponseWriter, req *http.Request) {
	query := r.db.Model(&models.Medicine{})

	if q := req.URL.Query().Get("q"); q != "" {
		like := "%" + q + "%"
		query = query.Where("name LIKE ? OR generic_name LIKE ? OR barcode = ?", like, like, q)
	}
	if category := req.URL.Query().Get("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var medicines []models.Medicine
	if err := query.Order("name").Find(&medicines).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch medicines")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"medicines": medicines,
		"count":     len(medicines),
	})
}

// listLowStock returns medicines at or below their minimum stock level
func (r *Router) listLowStock(w http.ResponseWriter, req *http.Request) {
	var medicines []models.Medicine
	if err := r.db.Where("quantity <= min_stock AND is_active = ?", true).
		Order("quantity").Find(&medicines).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch low stock list")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"medicines": medicines,
		"count":     len(medicines),
	})
}

// getMedicine returns a single medicine by ID
func (r *Router) getMedicine(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var medicine models.Medicine
	if err := r.db.First(&medicine, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Medicine not found")
		return
	}

	respondJSON(w, http.StatusOK, medicine)
}

// createMedicine adds a medicine and records the change for upload
func (r *Router) createMedicine(w http.ResponseWriter, req *http.Request) {
	var medicine models.Medicine
	if err := json.NewDecoder(req.Body).Decode(&medicine); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if medicine.Name == "" {
		respondError(w, http.StatusBadRequest, "Medicine name is required")
		return
	}

	err := r.store.WithTransaction(func(tx *gorm.DB) error {
		if err := tx.Create(&medicine).Error; err != nil {
			return err
		}
		payload, err := json.Marshal(medicine)
		if err != nil {
			return err
		}
		return r.tracker.Record(tx, models.EntityTypeMedicines, medicine.ID, models.OpCreate, payload)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create medicine")
		return
	}

	respondJSON(w, http.StatusCreated, medicine)
}

// updateMedicine updates a medicine and records the change for upload
func (r *Router) updateMedicine(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var medicine models.Medicine
	if err := r.db.First(&medicine, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Medicine not found")
		return
	}

	var updates models.Medicine
	if err := json.NewDecoder(req.Body).Decode(&updates); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	updates.ID = id

	err := r.store.WithTransaction(func(tx *gorm.DB) error {
		if err := tx.Model(&medicine).Updates(&updates).Error; err != nil {
			return err
		}
		if err := tx.First(&medicine, "id = ?", id).Error; err != nil {
			return err
		}
		payload, err := json.Marshal(medicine)
		if err != nil {
			return err
		}
		return r.tracker.Record(tx, models.EntityTypeMedicines, id, models.OpUpdate, payload)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update medicine")
		return
	}

	respondJSON(w, http.StatusOK, medicine)
}

// deleteMedicine soft-deletes a medicine and records the deletion for upload
func (r *Router) deleteMedicine(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var medicine models.Medicine
	if err := r.db.First(&medicine, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Medicine not found")
		return
	}

	err := r.store.WithTransaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&medicine).Error; err != nil {
			return err
		}
		return r.tracker.Record(tx, models.EntityTypeMedicines, id, models.OpDelete, nil)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete medicine")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Medicine deleted"})
}

// ShelfLabelRequest selects medicines and layout for a label sheet
type ShelfLabelRequest struct {
	MedicineIDs []string            `json:"medicineIds"`
	Layout      printer.LabelConfig `json:"layout"`
}

// printShelfLabels generates a PDF label sheet for the requested medicines
func (r *Router) printShelfLabels(w http.ResponseWriter, req *http.Request) {
	var body ShelfLabelRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(body.MedicineIDs) == 0 {
		respondError(w, http.StatusBadRequest, "At least one medicine ID is required")
		return
	}

	var medicines []models.Medicine
	if err := r.db.Where("id IN ?", body.MedicineIDs).Find(&medicines).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch medicines")
		return
	}
	if len(medicines) == 0 {
		respondError(w, http.StatusNotFound, "No matching medicines found")
		return
	}

	pdfBytes, err := printer.GenerateShelfLabelsPDF(body.Layout, medicines)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to generate PDF: %v", err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\"shelf_labels.pdf\"")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.Write(pdfBytes)
}
