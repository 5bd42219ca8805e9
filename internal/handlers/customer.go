package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/rxstack/pharmgo/internal/models"
)

// listCustomers returns customers, optionally filtered by name or phone
func (r *Router) listCustomers(w http.ResponseWriter, req *http.Request) {
	query := r.db.Model(&models.Customer{})

	if q := req.URL.Query().Get("q"); q != "" {
		like := "%" + q + "%"
		query = query.Where("name LIKE ? OR phone LIKE ?", like, like)
	}

	var customers []models.Customer
	if err := query.Order("name").Find(&customers).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch customers")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"customers": customers,
		"count":     len(customers),
	})
}

// getCustomer returns a single customer by ID
func (r *Router) getCustomer(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var customer models.Customer
	if err := r.db.First(&customer, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Customer not found")
		return
	}

	respondJSON(w, http.StatusOK, customer)
}

// createCustomer adds a customer and records the change for upload
func (r *Router) createCustomer(w http.ResponseWriter, req *http.Request) {
	var customer models.Customer
	if err := json.NewDecoder(req.Body).Decode(&customer); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if customer.Name == "" {
		respondError(w, http.StatusBadRequest, "Customer name is required")
		return
	}

	err := r.store.WithTransaction(func(tx *gorm.DB) error {
		if err := tx.Create(&customer).Error; err != nil {
			return err
		}
		payload, err := json.Marshal(customer)
		if err != nil {
			return err
		}
		return r.tracker.Record(tx, models.EntityTypeCustomers, customer.ID, models.OpCreate, payload)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create customer")
		return
	}

	respondJSON(w, http.StatusCreated, customer)
}

// updateCustomer updates a customer and records the change for upload
func (r *Router) updateCustomer(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var customer models.Customer
	if err := r.db.First(&customer, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Customer not found")
		return
	}

	var updates models.Customer
	if err := json.NewDecoder(req.Body).Decode(&updates); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	updates.ID = id

	err := r.store.WithTransaction(func(tx *gorm.DB) error {
		if err := tx.Model(&customer).Updates(&updates).Error; err != nil {
			return err
		}
		if err := tx.First(&customer, "id = ?", id).Error; err != nil {
			return err
		}
		payload, err := json.Marshal(customer)
		if err != nil {
			return err
		}
		return r.tracker.Record(tx, models.EntityTypeCustomers, id, models.OpUpdate, payload)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update customer")
		return
	}

	respondJSON(w, http.StatusOK, customer)
}

// deleteCustomer soft-deletes a customer and records the deletion for upload
func (r *Router) deleteCustomer(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var customer models.Customer
	if err := r.db.First(&customer, "id = ?", id).Error; err != nil {
		respondError(w, http.StatusNotFound, "Customer not found")
		return
	}

	err := r.store.WithTransaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&customer).Error; err != nil {
			return err
		}
		return r.tracker.Record(tx, models.EntityTypeCustomers, id, models.OpDelete, nil)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete customer")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Customer deleted"})
}
