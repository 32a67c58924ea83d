package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/savegress/fleetwatch/internal/tracker"
	"github.com/savegress/fleetwatch/pkg/models"
)

// Health check
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "fleetwatch",
		"time":    time.Now().UTC(),
	})
}

// Ingestion handlers

func (s *Server) ingestTelemetry(w http.ResponseWriter, r *http.Request) {
	var msg models.TelemetryMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		// Structurally unreadable bodies are the only error class
		// surfaced here; semantically invalid payloads are absorbed
		// into the FAULTY path by the tracker.
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.tracker.ProcessMessage(&msg)

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// Device handlers

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	filter := tracker.DeviceFilter{
		Status: models.DeviceStatus(r.URL.Query().Get("status")),
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			filter.Limit = l
		}
	}

	devices := s.tracker.Devices(filter)
	respondJSON(w, http.StatusOK, devices)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	device, ok := s.tracker.Device(id)
	if !ok {
		respondError(w, http.StatusNotFound, "Device not found")
		return
	}
	respondJSON(w, http.StatusOK, device)
}

// Queue handlers

func (s *Server) listQueueStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.tracker.QueueStats())
}

func (s *Server) getQueueStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stats, ok := s.tracker.QueueStats()[name]
	if !ok {
		respondError(w, http.StatusNotFound, "Queue not found")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Metrics handlers

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.tracker.Metrics())
}

// Trigger handlers

func (s *Server) triggerSweep(w http.ResponseWriter, r *http.Request) {
	transitioned := s.tracker.CheckOfflineDevices()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "swept",
		"transitioned": transitioned,
	})
}

func (s *Server) triggerRetryDrain(w http.ResponseWriter, r *http.Request) {
	drained := s.tracker.ProcessFallbackRetries()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "drained",
		"dequeued": drained,
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
