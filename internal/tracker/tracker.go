package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/savegress/fleetwatch/internal/clockwork"
	"github.com/savegress/fleetwatch/internal/config"
	"github.com/savegress/fleetwatch/internal/queue"
	"github.com/savegress/fleetwatch/internal/schedule"
	"github.com/savegress/fleetwatch/pkg/models"
)

// Remediation queue names
const (
	QueueFallback    = "fallback"
	QueueTamperCheck = "tamper_check"
	QueueQuarantine  = "quarantine"
)

// Reasons recorded on sweep- and flap-generated queue items
const (
	ReasonDeviceSilent = "device_silent"
	ReasonRapidCycling = "rapid_cycling"
)

// TransitionCallback is invoked whenever a device changes status
type TransitionCallback func(deviceID string, oldStatus, newStatus models.DeviceStatus)

// Tracker owns the device-state table and the three remediation
// queues. It validates inbound telemetry, runs the liveness state
// machine, sweeps for silent devices, and drains the fallback queue
// with bounded retries.
type Tracker struct {
	config *config.TrackerConfig
	clock  clockwork.Clock
	sched  *schedule.Scheduler

	fallback    *queue.Queue
	tamperCheck *queue.Queue
	quarantine  *queue.Queue

	devices map[string]*models.DeviceState

	totalMessages int64
	fallbacks     int64
	flapping      int64
	faulty        int64
	startedAt     time.Time

	onTransition TransitionCallback
	mu           sync.RWMutex
	running      bool
	stopCh       chan struct{}
}

// New creates a tracker driven by the wall clock
func New(cfg *config.TrackerConfig) *Tracker {
	return NewWithClock(cfg, clockwork.Real())
}

// NewWithClock creates a tracker with an injected clock for tests
func NewWithClock(cfg *config.TrackerConfig, clk clockwork.Clock) *Tracker {
	return &Tracker{
		config:      cfg,
		clock:       clk,
		sched:       schedule.New(clk),
		fallback:    queue.New(QueueFallback),
		tamperCheck: queue.New(QueueTamperCheck),
		quarantine:  queue.New(QueueQuarantine),
		devices:     make(map[string]*models.DeviceState),
		startedAt:   clk.Now(),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the periodic sweep and retry-drain loops
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	t.mu.Unlock()

	go t.sweepLoop(ctx)
	go t.retryLoop(ctx)
	return nil
}

// Stop halts the loops and cancels all pending retry re-enqueues
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.running {
		close(t.stopCh)
		t.running = false
	}
	t.mu.Unlock()

	t.sched.Stop()
}

// SetTransitionCallback sets a callback for device status changes
func (t *Tracker) SetTransitionCallback(cb TransitionCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTransition = cb
}

func (t *Tracker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(t.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.CheckOfflineDevices()
		}
	}
}

func (t *Tracker) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(t.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.ProcessFallbackRetries()
		}
	}
}

// ProcessMessage runs one telemetry message through validation and
// the state machine. It never returns an error: a message that fails
// validation marks the device FAULTY and lands on the quarantine
// queue instead of surfacing to the caller.
func (t *Tracker) ProcessMessage(msg *models.TelemetryMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalMessages++

	msgTime, fault := Validate(msg, t.config.MinVoltage)
	dev := t.upsertDevice(msg.DeviceID)

	if fault != models.FaultNone {
		t.setStatus(dev, models.DeviceStatusFaulty, t.clock.Now())
		t.quarantine.Enqueue(models.QueueItem{
			DeviceID:  dev.ID,
			Reason:    string(fault),
			Timestamp: msg.Timestamp,
		})
		t.faulty++
		return
	}

	dev.LastMessage = msg
	seen := msgTime
	dev.LastSeen = &seen

	if dev.Status == models.DeviceStatusOffline && dev.StatusChangedAt != nil {
		elapsed := msgTime.Sub(*dev.StatusChangedAt)
		if elapsed <= t.config.FlapWindow {
			// Back within the flap window: the device is cycling, not
			// recovering. Route it for tamper inspection.
			t.setStatus(dev, models.DeviceStatusFlapping, t.clock.Now())
			t.tamperCheck.Enqueue(models.QueueItem{
				DeviceID:  dev.ID,
				Reason:    ReasonRapidCycling,
				Timestamp: msg.Timestamp,
			})
			t.flapping++
			return
		}

		t.setStatus(dev, models.DeviceStatusOnline, msgTime)
		return
	}

	// Every non-OFFLINE status recovers directly to ONLINE. Unlike the
	// OFFLINE recovery above, StatusChangedAt is stamped only on the
	// first-ever valid message; recovery from FAULTY or FLAPPING leaves
	// the old change time in place. Inherited behavior, kept as is.
	old := dev.Status
	dev.Status = models.DeviceStatusOnline
	if dev.StatusChangedAt == nil {
		changed := msgTime
		dev.StatusChangedAt = &changed
	}
	if old != models.DeviceStatusOnline && t.onTransition != nil {
		go t.onTransition(dev.ID, old, models.DeviceStatusOnline)
	}
}

// CheckOfflineDevices sweeps the device table at wall-clock time and
// transitions every silent device to OFFLINE, routing it onto the
// fallback queue. A device with no valid message on record (nil
// LastSeen) counts as older than any threshold and goes OFFLINE on
// the first sweep after creation. Returns the number of transitions.
func (t *Tracker) CheckOfflineDevices() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	transitioned := 0

	for _, dev := range t.devices {
		if dev.Status == models.DeviceStatusOffline {
			continue
		}
		if dev.LastSeen != nil && now.Sub(*dev.LastSeen) <= t.config.OfflineThreshold {
			continue
		}

		t.setStatus(dev, models.DeviceStatusOffline, now)
		t.fallback.Enqueue(models.QueueItem{
			DeviceID:  dev.ID,
			Reason:    ReasonDeviceSilent,
			Timestamp: now.Format(time.RFC3339),
		})
		t.fallbacks++
		transitioned++
	}

	return transitioned
}

// ProcessFallbackRetries drains up to RetryDrainLimit items from the
// fallback queue. Items still under the per-device attempt cap are
// re-enqueued after a delay staggered by attempt number; the
// scheduled re-enqueue re-checks the cap at execution time. Items
// past the cap are dropped. Returns the number of items dequeued.
func (t *Tracker) ProcessFallbackRetries() int {
	drained := 0

	for drained < t.config.RetryDrainLimit {
		item, ok := t.fallback.Dequeue()
		if !ok {
			break
		}
		drained++

		if !t.fallback.Retry(item.DeviceID, t.config.RetryMaxAttempts) {
			continue
		}

		retry := item
		retry.Attempt = t.fallback.RetryCount(item.DeviceID)
		delay := time.Duration(retry.Attempt) * t.config.RetryStagger

		t.sched.Schedule(delay, func() {
			if t.fallback.RetryCount(retry.DeviceID) < t.config.RetryMaxAttempts {
				t.fallback.Enqueue(retry)
			}
		})
	}

	return drained
}

// Device retrieves a device by id
func (t *Tracker) Device(id string) (*models.DeviceState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dev, ok := t.devices[id]
	return dev, ok
}

// DeviceFilter defines filters for device queries
type DeviceFilter struct {
	Status models.DeviceStatus
	Limit  int
}

// Devices lists tracked devices with optional filters
func (t *Tracker) Devices(filter DeviceFilter) []*models.DeviceState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var results []*models.DeviceState
	for _, dev := range t.devices {
		if filter.Status != "" && dev.Status != filter.Status {
			continue
		}
		results = append(results, dev)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results
}

// DeviceStatusCounts returns the number of devices in each status
func (t *Tracker) DeviceStatusCounts() map[models.DeviceStatus]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.statusCountsLocked()
}

func (t *Tracker) statusCountsLocked() map[models.DeviceStatus]int {
	counts := make(map[models.DeviceStatus]int, len(models.DeviceStatuses))
	for _, status := range models.DeviceStatuses {
		counts[status] = 0
	}
	for _, dev := range t.devices {
		counts[dev.Status]++
	}
	return counts
}

// QueueStats returns aggregate statistics for all three queues
func (t *Tracker) QueueStats() map[string]models.QueueStats {
	return map[string]models.QueueStats{
		QueueFallback:    t.fallback.Stats(),
		QueueTamperCheck: t.tamperCheck.Stats(),
		QueueQuarantine:  t.quarantine.Stats(),
	}
}

// Metrics returns an on-demand snapshot of tracker counters, device
// counts by status, and per-queue statistics
func (t *Tracker) Metrics() models.MetricsSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return models.MetricsSnapshot{
		TotalMessages:      t.totalMessages,
		Fallbacks:          t.fallbacks,
		Flapping:           t.flapping,
		Faulty:             t.faulty,
		Runtime:            t.clock.Now().Sub(t.startedAt).Round(time.Second).String(),
		DeviceCount:        len(t.devices),
		DeviceStatusCounts: t.statusCountsLocked(),
		QueueStats:         t.QueueStats(),
	}
}

// ResetMetrics zeroes the event counters. Not routed at the HTTP
// boundary; intended for operational tooling.
func (t *Tracker) ResetMetrics() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalMessages = 0
	t.fallbacks = 0
	t.flapping = 0
	t.faulty = 0
	t.startedAt = t.clock.Now()
}

// upsertDevice creates the device record on first contact, even when
// that contact is a faulty message. Caller holds t.mu.
func (t *Tracker) upsertDevice(id string) *models.DeviceState {
	dev, ok := t.devices[id]
	if !ok {
		dev = &models.DeviceState{
			ID:     id,
			Status: models.DeviceStatusUnknown,
		}
		t.devices[id] = dev
	}
	return dev
}

// setStatus assigns a status and stamps StatusChangedAt. Caller holds t.mu.
func (t *Tracker) setStatus(dev *models.DeviceState, status models.DeviceStatus, at time.Time) {
	old := dev.Status
	dev.Status = status
	changed := at
	dev.StatusChangedAt = &changed

	if old != status && t.onTransition != nil {
		go t.onTransition(dev.ID, old, status)
	}
}
