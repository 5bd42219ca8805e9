package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rxstack/pharmgo/internal/config"
	"github.com/rxstack/pharmgo/internal/database"
	"github.com/rxstack/pharmgo/internal/handlers"
	"github.com/rxstack/pharmgo/internal/models"
	"github.com/rxstack/pharmgo/internal/session"
	"github.com/rxstack/pharmgo/internal/store"
	"github.com/rxstack/pharmgo/internal/sync"
	"github.com/rxstack/pharmgo/internal/tracker"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize database (Detects Embedded vs External automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Auto-Migrate Schema (Critical for Zero-Config)
	log.Println("🚀 Synchronizing database schema...")
	err = db.AutoMigrate(
		&models.UserAuth{},

		// Branch domain models
		&models.Medicine{},
		&models.Customer{},
		&models.Supplier{},
		&models.PurchaseOrder{},
		&models.PurchaseOrderItem{},
		&models.GoodsReceipt{},
		&models.GoodsReceiptItem{},
		&models.Sale{},
		&models.SaleItem{},

		// Sync tables
		&models.SyncWatermark{},
		&models.PendingChange{},
		&models.SyncHistory{},
	)
	if err != nil {
		log.Printf("⚠️ Migration warning: %v\n", err)
	} else {
		log.Println("✅ Schema synchronized successfully")
	}

	// 4. Wire up the sync engine
	log.Println("🔄 Initializing Sync Engine...")
	syncCfg := config.LoadSyncConfig()

	adapter := store.New(db)
	trk := tracker.New(db)
	sessions := session.New(cfg.DataDir)

	syncEngine := sync.New(db, adapter, trk, sessions, syncCfg, cfg.BranchCode)

	if syncCfg.Enabled {
		if err := syncEngine.Start(); err != nil {
			log.Printf("⚠️ Sync Engine: Failed to start: %v", err)
		} else {
			log.Println("✅ Sync Engine: Started successfully")
		}
	}

	// 5. Set up HTTP router
	router := handlers.NewRouter(db, adapter, trk, syncEngine, cfg)

	// 6. Start server with graceful shutdown
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Branch server (%s) starting on port %s\n", cfg.BranchCode, cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("\n⚠️  Received signal: %v. Shutting down gracefully...\n", sig)

	// Create context with timeout for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Stop sync engine
	syncEngine.Stop()

	// Close database (this also stops embedded PostgreSQL)
	log.Println("🛑 Closing database connection...")
	if err := db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
