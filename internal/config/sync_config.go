package config

import (
	"encoding/json"
	"log"
	"os"
)

// SyncConfig holds synchronization configuration
type SyncConfig struct {
	// ============ BASIC SETTINGS ============
	Enabled bool `json:"enabled"`

	// ============ SCHEDULING ============
	AutoSyncEnabled  bool `json:"auto_sync_enabled"`
	AutoSyncInterval int  `json:"auto_sync_interval"` // seconds
	SyncOnStartup    bool `json:"sync_on_startup"`

	// ============ LIMITS ============
	DownloadPageSize int `json:"download_page_size"` // records per pull page
	UploadBatchSize  int `json:"upload_batch_size"`  // pending changes per push
	MaxRetries       int `json:"max_retries"`        // transient network retries per call
	RequestTimeout   int `json:"request_timeout"`    // seconds per cloud call

	// ============ RETENTION ============
	DeliveredRetentionHours int `json:"delivered_retention_hours"` // prune DELIVERED rows after this

	// ============ ENTITIES ============
	Entities map[string]EntitySyncConfig `json:"entities"`
}

// EntitySyncConfig holds sync configuration for a specific entity type
type EntitySyncConfig struct {
	Enabled bool `json:"enabled"`
}

// LoadSyncConfig loads sync configuration from a JSON file, falling back to defaults
func LoadSyncConfig() *SyncConfig {
	if configPath := os.Getenv("SYNC_CONFIG_PATH"); configPath != "" {
		if cfg, err := loadSyncConfigFromFile(configPath); err == nil {
			log.Printf("Sync config loaded from %s", configPath)
			return cfg
		} else {
			log.Printf("⚠️ Failed to load sync config from %s: %v, using defaults", configPath, err)
		}
	}
	return DefaultSyncConfig()
}

// loadSyncConfigFromFile loads sync config from JSON file
func loadSyncConfigFromFile(path string) (*SyncConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultSyncConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultSyncConfig returns the configuration used when no file is provided
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Enabled:          true,
		AutoSyncEnabled:  false,
		AutoSyncInterval: 300,
		SyncOnStartup:    false,

		DownloadPageSize: 200,
		UploadBatchSize:  50,
		MaxRetries:       3,
		RequestTimeout:   30,

		DeliveredRetentionHours: 72,

		Entities: map[string]EntitySyncConfig{
			"medicines":       {Enabled: true},
			"customers":       {Enabled: true},
			"suppliers":       {Enabled: true},
			"purchase_orders": {Enabled: true},
			"goods_receipts":  {Enabled: true},
			"sales":           {Enabled: true},
		},
	}
}
