package models

import (
	"time"
)

// DeviceStatus represents the liveness/quality state of a device
type DeviceStatus string

const (
	DeviceStatusUnknown  DeviceStatus = "UNKNOWN"
	DeviceStatusOnline   DeviceStatus = "ONLINE"
	DeviceStatusOffline  DeviceStatus = "OFFLINE"
	DeviceStatusFlapping DeviceStatus = "FLAPPING"
	DeviceStatusFaulty   DeviceStatus = "FAULTY"
)

// DeviceStatuses lists every valid status, in reporting order
var DeviceStatuses = []DeviceStatus{
	DeviceStatusUnknown,
	DeviceStatusOnline,
	DeviceStatusOffline,
	DeviceStatusFlapping,
	DeviceStatusFaulty,
}

// CorruptedTimestamp is the sentinel value devices emit when their
// clock source failed and the timestamp field could not be populated.
const CorruptedTimestamp = "CORRUPTED"

// TelemetryMessage is a single reading pushed by a field device.
//
// Timestamp and Voltage are deliberately loosely typed: devices with
// corrupted firmware send non-string timestamps and non-numeric
// voltages, and those payloads must survive JSON decoding so they can
// be routed to the quarantine queue instead of failing at the boundary.
type TelemetryMessage struct {
	DeviceID  string      `json:"device_id"`
	Timestamp interface{} `json:"timestamp"`
	PowerKW   float64     `json:"power_kw"`
	Voltage   interface{} `json:"voltage"`
}

// DeviceState tracks the last known state of a single device.
// LastSeen and StatusChangedAt are nil until the first valid message
// and the first status assignment respectively.
type DeviceState struct {
	ID              string            `json:"id"`
	Status          DeviceStatus      `json:"status"`
	LastSeen        *time.Time        `json:"last_seen,omitempty"`
	StatusChangedAt *time.Time        `json:"status_changed_at,omitempty"`
	LastMessage     *TelemetryMessage `json:"last_message,omitempty"`
}

// FaultReason classifies why a telemetry message failed validation
type FaultReason string

const (
	FaultNone               FaultReason = ""
	FaultInvalidVoltage     FaultReason = "invalid_voltage"
	FaultLowVoltage         FaultReason = "low_voltage"
	FaultCorruptedTimestamp FaultReason = "corrupted_timestamp"
	FaultInvalidTimestamp   FaultReason = "invalid_timestamp"
)

// QueueItem is an entry in a remediation queue. ID is generated at
// enqueue time and is used for tracing only, never for business logic.
type QueueItem struct {
	ID         string      `json:"id"`
	DeviceID   string      `json:"device_id"`
	Reason     string      `json:"reason"`
	Timestamp  interface{} `json:"timestamp,omitempty"`
	Attempt    int         `json:"attempt,omitempty"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// QueueStats contains aggregate statistics for a single queue.
// RetryCount is the number of distinct keys ever retried, not the
// total number of attempts.
type QueueStats struct {
	Name       string `json:"name"`
	Pending    int    `json:"pending"`
	Processed  int    `json:"processed"`
	RetryCount int    `json:"retry_count"`
}

// MetricsSnapshot is the on-demand metrics view of the tracker
type MetricsSnapshot struct {
	TotalMessages      int64                 `json:"total_messages"`
	Fallbacks          int64                 `json:"fallbacks"`
	Flapping           int64                 `json:"flapping"`
	Faulty             int64                 `json:"faulty"`
	Runtime            string                `json:"runtime"`
	DeviceCount        int                   `json:"device_count"`
	DeviceStatusCounts map[DeviceStatus]int  `json:"device_status_counts"`
	QueueStats         map[string]QueueStats `json:"queue_stats"`
}
