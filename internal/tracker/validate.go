package tracker

import (
	"time"

	"github.com/savegress/fleetwatch/pkg/models"
)

// Validate classifies a telemetry message as valid or faulty. Checks
// run in a fixed order and short-circuit on the first failure:
// voltage must be numeric, voltage must be at or above minVoltage,
// the timestamp must be a string other than the corruption sentinel,
// and the timestamp must parse as RFC 3339. On success it returns the
// parsed instant and FaultNone.
func Validate(msg *models.TelemetryMessage, minVoltage float64) (time.Time, models.FaultReason) {
	voltage, ok := numericValue(msg.Voltage)
	if !ok {
		return time.Time{}, models.FaultInvalidVoltage
	}
	if voltage < minVoltage {
		return time.Time{}, models.FaultLowVoltage
	}

	raw, ok := msg.Timestamp.(string)
	if !ok || raw == models.CorruptedTimestamp {
		return time.Time{}, models.FaultCorruptedTimestamp
	}

	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, models.FaultInvalidTimestamp
	}

	return ts, models.FaultNone
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
