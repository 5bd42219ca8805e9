package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rxstack/pharmgo/internal/cloud"
	"github.com/rxstack/pharmgo/internal/sync"
)

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local UI only; the listener binds to localhost
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SetServerRequest points the engine at a central server
type SetServerRequest struct {
	ServerURL string `json:"serverUrl"`
}

// AuthenticateRequest carries branch credentials for the central server
type AuthenticateRequest struct {
	ServerURL string `json:"serverUrl"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// getSyncStatus returns the engine snapshot without touching the network
func (r *Router) getSyncStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  r.engine.Status(),
	})
}

// setSyncServer validates and stores the central server URL
func (r *Router) setSyncServer(w http.ResponseWriter, req *http.Request) {
	var body SetServerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := r.engine.SetServerURL(body.ServerURL); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  r.engine.Status(),
	})
}

// authenticateSync logs the branch in against the central server
func (r *Router) authenticateSync(w http.ResponseWriter, req *http.Request) {
	var body AuthenticateRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := r.engine.Authenticate(req.Context(), body.ServerURL, body.Email, body.Password); err != nil {
		status, msg := syncErrorStatus(err)
		respondError(w, status, msg)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  r.engine.Status(),
	})
}

// triggerDownload pulls server changes since the last watermark
func (r *Router) triggerDownload(w http.ResponseWriter, req *http.Request) {
	stats, err := r.engine.DownloadIncremental(req.Context())
	r.respondDownload(w, stats, err)
}

// triggerFullDownload resets watermarks and pulls everything again
func (r *Router) triggerFullDownload(w http.ResponseWriter, req *http.Request) {
	stats, err := r.engine.DownloadFull(req.Context())
	r.respondDownload(w, stats, err)
}

func (r *Router) respondDownload(w http.ResponseWriter, stats *sync.DownloadStats, err error) {
	if err != nil {
		status, msg := syncErrorStatus(err)
		respondJSON(w, status, map[string]interface{}{
			"success": false,
			"error":   msg,
			"stats":   stats,
		})
		return
	}

	message := "Already up to date"
	if stats.Total > 0 {
		message = fmt.Sprintf("%d records applied", stats.Total)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"stats":   stats,
	})
}

// triggerUpload pushes pending local changes to the central server
func (r *Router) triggerUpload(w http.ResponseWriter, req *http.Request) {
	results, err := r.engine.UploadPending(req.Context())
	if err != nil {
		status, msg := syncErrorStatus(err)
		respondJSON(w, status, map[string]interface{}{
			"success": false,
			"error":   msg,
			"results": results,
		})
		return
	}

	message := "Nothing to upload"
	switch {
	case results.TotalFailed() > 0:
		message = fmt.Sprintf("%d delivered, %d failed", results.TotalDelivered(), results.TotalFailed())
	case results.TotalDelivered() > 0:
		message = fmt.Sprintf("%d changes delivered", results.TotalDelivered())
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": results.TotalFailed() == 0,
		"message": message,
		"results": results,
	})
}

// cancelSync requests cancellation of the running session
func (r *Router) cancelSync(w http.ResponseWriter, req *http.Request) {
	r.engine.Cancel()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Cancellation requested; the session stops after the current batch",
	})
}

// resetSync clears all watermarks so the next download is a full one
func (r *Router) resetSync(w http.ResponseWriter, req *http.Request) {
	if err := r.engine.ResetWatermarks(); err != nil {
		status, msg := syncErrorStatus(err)
		respondError(w, status, msg)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Sync state reset; next download will fetch everything",
	})
}

// logoutSync forgets the stored cloud session
func (r *Router) logoutSync(w http.ResponseWriter, req *http.Request) {
	if err := r.engine.Logout(); err != nil {
		status, msg := syncErrorStatus(err)
		respondError(w, status, msg)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  r.engine.Status(),
	})
}

// syncProgress streams engine progress events over a websocket
func (r *Router) syncProgress(w http.ResponseWriter, req *http.Request) {
	conn, err := progressUpgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("⚠️ Progress websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, events := r.engine.Subscribe()
	defer r.engine.Unsubscribe(id)

	// Reader goroutine detects client disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// syncErrorStatus maps engine errors to HTTP responses
func syncErrorStatus(err error) (int, string) {
	var srvErr *cloud.ServerError
	switch {
	case errors.Is(err, sync.ErrNotAuthenticated):
		return http.StatusUnauthorized, "Not authenticated with the central server"
	case errors.Is(err, cloud.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid server credentials"
	case errors.Is(err, cloud.ErrAuthExpired):
		return http.StatusUnauthorized, "Server session expired; please authenticate again"
	case errors.Is(err, sync.ErrSyncInProgress):
		return http.StatusConflict, "A sync session is already running"
	case errors.Is(err, sync.ErrCancelled):
		return http.StatusOK, "Sync cancelled"
	case errors.Is(err, cloud.ErrTLS):
		return http.StatusBadGateway, "TLS error talking to the server; check the server certificate"
	case errors.Is(err, cloud.ErrServerUnreachable):
		return http.StatusBadGateway, "Central server is unreachable"
	case errors.Is(err, sync.ErrConfig):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, cloud.ErrBadRequest):
		return http.StatusBadGateway, fmt.Sprintf("Server rejected the request: %v", err)
	case errors.As(err, &srvErr):
		return http.StatusBadGateway, fmt.Sprintf("Server error: %v", srvErr)
	case sync.IsLocalStoreError(err):
		return http.StatusInternalServerError, fmt.Sprintf("Local store error: %v", err)
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
