package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rxstack/pharmgo/internal/config"
	"github.com/rxstack/pharmgo/internal/database"
	"github.com/rxstack/pharmgo/internal/middleware"
	"github.com/rxstack/pharmgo/internal/store"
	"github.com/rxstack/pharmgo/internal/sync"
	"github.com/rxstack/pharmgo/internal/tracker"
)

// Router wraps the mux router and the branch services
type Router struct {
	*mux.Router
	db      *database.DB
	store   *store.Adapter
	tracker *tracker.Tracker
	engine  *sync.Engine
	cfg     *config.Config
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(db *database.DB, adapter *store.Adapter, trk *tracker.Tracker, engine *sync.Engine, cfg *config.Config) *Router {
	r := &Router{
		Router:  mux.NewRouter(),
		db:      db,
		store:   adapter,
		tracker: trk,
		engine:  engine,
		cfg:     cfg,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/register", r.register).Methods("POST")
	auth.HandleFunc("/logout", r.logout).Methods("POST")

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(middleware.Auth(cfg.JWTSecret))

	// Medicine routes (protected)
	medicines := protected.PathPrefix("/medicines").Subrouter()
	medicines.HandleFunc("", r.listMedicines).Methods("GET")
	medicines.HandleFunc("", r.createMedicine).Methods("POST")
	medicines.HandleFunc("/low-stock", r.listLowStock).Methods("GET")
	medicines.HandleFunc("/labels", r.printShelfLabels).Methods("POST")
	medicines.HandleFunc("/{id}", r.getMedicine).Methods("GET")
	medicines.HandleFunc("/{id}", r.updateMedicine).Methods("PUT")
	medicines.HandleFunc("/{id}", r.deleteMedicine).Methods("DELETE")

	// Customer routes (protected)
	customers := protected.PathPrefix("/customers").Subrouter()
	customers.HandleFunc("", r.listCustomers).Methods("GET")
	customers.HandleFunc("", r.createCustomer).Methods("POST")
	customers.HandleFunc("/{id}", r.getCustomer).Methods("GET")
	customers.HandleFunc("/{id}", r.updateCustomer).Methods("PUT")
	customers.HandleFunc("/{id}", r.deleteCustomer).Methods("DELETE")

	// Supplier and purchasing routes (protected)
	protected.HandleFunc("/suppliers", r.listSuppliers).Methods("GET")
	purchases := protected.PathPrefix("/purchase-orders").Subrouter()
	purchases.HandleFunc("", r.listPurchaseOrders).Methods("GET")
	purchases.HandleFunc("/{id}", r.getPurchaseOrder).Methods("GET")
	receipts := protected.PathPrefix("/goods-receipts").Subrouter()
	receipts.HandleFunc("", r.listGoodsReceipts).Methods("GET")
	receipts.HandleFunc("", r.receiveGoods).Methods("POST")

	// Sale routes (protected)
	sales := protected.PathPrefix("/sales").Subrouter()
	sales.HandleFunc("", r.listSales).Methods("GET")
	sales.HandleFunc("", r.createSale).Methods("POST")
	sales.HandleFunc("/{id}", r.getSale).Methods("GET")
	sales.HandleFunc("/{id}/receipt", r.printReceipt).Methods("GET")

	// Sync routes (protected)
	syncRoutes := protected.PathPrefix("/sync").Subrouter()
	syncRoutes.HandleFunc("/status", r.getSyncStatus).Methods("GET")
	syncRoutes.HandleFunc("/server", r.setSyncServer).Methods("POST")
	syncRoutes.HandleFunc("/authenticate", r.authenticateSync).Methods("POST")
	syncRoutes.HandleFunc("/download", r.triggerDownload).Methods("POST")
	syncRoutes.HandleFunc("/download/full", r.triggerFullDownload).Methods("POST")
	syncRoutes.HandleFunc("/upload", r.triggerUpload).Methods("POST")
	syncRoutes.HandleFunc("/cancel", r.cancelSync).Methods("POST")
	syncRoutes.HandleFunc("/reset", r.resetSync).Methods("POST")
	syncRoutes.HandleFunc("/logout", r.logoutSync).Methods("POST")
	syncRoutes.HandleFunc("/progress", r.syncProgress).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"branch": r.cfg.BranchCode,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
