package sync

import (
	"time"

	"github.com/rxstack/pharmgo/internal/cloud"
)

// Phase is the engine's position in the session state machine
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAuthenticating Phase = "authenticating"
	PhaseDownloading    Phase = "downloading"
	PhaseUploading      Phase = "uploading"
	PhaseFailed         Phase = "failed"
)

// DownloadStats reports how many server records were applied per entity type
type DownloadStats struct {
	Applied map[string]int `json:"applied"`
	Total   int            `json:"total"`
}

// NewDownloadStats creates an empty stats accumulator
func NewDownloadStats() *DownloadStats {
	return &DownloadStats{Applied: make(map[string]int)}
}

func (s *DownloadStats) add(entityType string, n int) {
	s.Applied[entityType] += n
	s.Total += n
}

// UploadStats reports delivery results per entity type. Rejections are kept
// individually so the UI can show which records need attention.
type UploadStats struct {
	Delivered map[string]int    `json:"delivered"`
	Failed    map[string]int    `json:"failed"`
	Rejected  []cloud.Rejection `json:"rejected,omitempty"`
}

// NewUploadStats creates an empty stats accumulator
func NewUploadStats() *UploadStats {
	return &UploadStats{
		Delivered: make(map[string]int),
		Failed:    make(map[string]int),
	}
}

// TotalDelivered sums deliveries across entity types
func (s *UploadStats) TotalDelivered() int {
	total := 0
	for _, n := range s.Delivered {
		total += n
	}
	return total
}

// TotalFailed sums failures across entity types
func (s *UploadStats) TotalFailed() int {
	total := 0
	for _, n := range s.Failed {
		total += n
	}
	return total
}

// Status is the read-only snapshot served to the UI. Computing it never
// touches the network.
type Status struct {
	IsOnline        bool       `json:"isOnline"`
	IsSyncing       bool       `json:"isSyncing"`
	Phase           Phase      `json:"phase"`
	LastSyncAt      *time.Time `json:"lastSyncAt,omitempty"`
	ServerURL       string     `json:"serverUrl"`
	BranchCode      string     `json:"branchCode"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	PendingChanges  int64      `json:"pendingChanges"`
}
