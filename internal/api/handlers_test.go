package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/savegress/fleetwatch/internal/config"
	"github.com/savegress/fleetwatch/internal/tracker"
	"github.com/savegress/fleetwatch/pkg/models"
)

func newTestServer() *Server {
	cfg := &config.TrackerConfig{
		MinVoltage:       50,
		OfflineThreshold: 5 * time.Minute,
		FlapWindow:       2 * time.Minute,
		SweepInterval:    time.Minute,
		RetryInterval:    30 * time.Second,
		RetryMaxAttempts: 3,
		RetryDrainLimit:  100,
		RetryStagger:     time.Second,
	}
	return NewServer(tracker.New(cfg))
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func telemetryBody(t *testing.T, deviceID string, ts time.Time, voltage float64) []byte {
	t.Helper()
	body, err := json.Marshal(models.TelemetryMessage{
		DeviceID:  deviceID,
		Timestamp: ts.Format(time.RFC3339),
		PowerKW:   1.2,
		Voltage:   voltage,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
}

func TestIngestTelemetry(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodPost, "/api/v1/telemetry",
		telemetryBody(t, "d1", time.Now().UTC(), 230))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/devices/d1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var dev models.DeviceState
	if err := json.NewDecoder(w.Body).Decode(&dev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dev.Status != models.DeviceStatusOnline {
		t.Errorf("status = %s, want ONLINE", dev.Status)
	}
}

func TestIngestTelemetry_UnreadableBody(t *testing.T) {
	s := newTestServer()

	// A structurally unreadable body is the only error class the
	// ingestion boundary surfaces
	w := doRequest(s, http.MethodPost, "/api/v1/telemetry", []byte("{not json"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestIngestTelemetry_FaultyPayloadAccepted(t *testing.T) {
	s := newTestServer()

	// Semantically invalid payloads are absorbed into the FAULTY path,
	// not reported as boundary errors
	w := doRequest(s, http.MethodPost, "/api/v1/telemetry",
		telemetryBody(t, "d1", time.Now().UTC(), 10))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/devices/d1", nil)
	var dev models.DeviceState
	if err := json.NewDecoder(w.Body).Decode(&dev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dev.Status != models.DeviceStatusFaulty {
		t.Errorf("status = %s, want FAULTY", dev.Status)
	}

	w = doRequest(s, http.MethodGet, "/api/v1/queues/quarantine", nil)
	var stats models.QueueStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Pending != 1 {
		t.Errorf("quarantine pending = %d, want 1", stats.Pending)
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodGet, "/api/v1/devices/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListDevices_StatusFilter(t *testing.T) {
	s := newTestServer()

	now := time.Now().UTC()
	doRequest(s, http.MethodPost, "/api/v1/telemetry", telemetryBody(t, "d1", now, 230))
	doRequest(s, http.MethodPost, "/api/v1/telemetry", telemetryBody(t, "d2", now, 10))

	w := doRequest(s, http.MethodGet, "/api/v1/devices/?status=FAULTY", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var devices []models.DeviceState
	if err := json.NewDecoder(w.Body).Decode(&devices); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(devices) != 1 || devices[0].ID != "d2" {
		t.Errorf("expected only d2, got %+v", devices)
	}
}

func TestListQueueStats(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodGet, "/api/v1/queues/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var stats map[string]models.QueueStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, name := range []string{"fallback", "tamper_check", "quarantine"} {
		if _, ok := stats[name]; !ok {
			t.Errorf("missing queue %s", name)
		}
	}
}

func TestGetQueueStats_NotFound(t *testing.T) {
	s := newTestServer()

	w := doRequest(s, http.MethodGet, "/api/v1/queues/dead_letter", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetMetricsEndpoint(t *testing.T) {
	s := newTestServer()

	doRequest(s, http.MethodPost, "/api/v1/telemetry",
		telemetryBody(t, "d1", time.Now().UTC(), 230))

	w := doRequest(s, http.MethodGet, "/api/v1/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var m models.MetricsSnapshot
	if err := json.NewDecoder(w.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.TotalMessages != 1 {
		t.Errorf("total_messages = %d, want 1", m.TotalMessages)
	}
	if m.DeviceCount != 1 {
		t.Errorf("device_count = %d, want 1", m.DeviceCount)
	}
}

func TestTriggerSweep(t *testing.T) {
	s := newTestServer()

	// A reading stamped well in the past leaves the device silent
	// relative to the sweep's wall clock
	doRequest(s, http.MethodPost, "/api/v1/telemetry",
		telemetryBody(t, "d1", time.Now().UTC().Add(-10*time.Minute), 230))

	w := doRequest(s, http.MethodPost, "/api/v1/sweep", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["transitioned"] != float64(1) {
		t.Errorf("transitioned = %v, want 1", resp["transitioned"])
	}
}

func TestTriggerRetryDrain(t *testing.T) {
	s := newTestServer()

	doRequest(s, http.MethodPost, "/api/v1/telemetry",
		telemetryBody(t, "d1", time.Now().UTC().Add(-10*time.Minute), 230))
	doRequest(s, http.MethodPost, "/api/v1/sweep", nil)

	w := doRequest(s, http.MethodPost, "/api/v1/retries/drain", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["dequeued"] != float64(1) {
		t.Errorf("dequeued = %v, want 1", resp["dequeued"])
	}
}
