package remote

import (
	"encoding/json"
	"fmt"
	"time"
)

// cycleNumericFields are the Cycle fields spec §4.3 calls out by name:
// "for cycle creation specifically, the recognized numeric fields are
// coerced to floating point (defaulting to 0.0 on coercion failure)".
var cycleNumericFields = map[string]bool{
	"open_price":               true,
	"lower_bound":              true,
	"upper_bound":              true,
	"threshold_lower":          true,
	"threshold_upper":          true,
	"initial_threshold_price":  true,
	"zone_base_price":          true,
	"recovery_zone_base_price": true,
	"initial_stop_loss_price":  true,
	"total_volume":             true,
	"total_profit":             true,
	"accumulated_loss":         true,
}

// Serialize applies spec §4.3's field-by-field serialization rules before
// a record is sent to the remote store: temporal values become ISO-8601
// strings, compound values (slices/maps) become JSON strings, and any
// value that fails a trial JSON marshal falls back to its string form.
func Serialize(record Record) Record {
	out := make(Record, len(record))
	for key, value := range record {
		out[key] = serializeField(key, value)
	}
	return out
}

func serializeField(key string, value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(time.RFC3339)
	case string, bool, int, int64, float64, float32:
		if cycleNumericFields[key] {
			return coerceFloat(value)
		}
		return v
	}

	// Compound values (slices, maps, structs implementing their own JSON
	// shape) are sent as JSON strings rather than nested objects.
	if b, err := json.Marshal(value); err == nil {
		return string(b)
	}

	return fmt.Sprintf("%v", value)
}

// coerceFloat implements the cycle-creation numeric coercion rule,
// defaulting to 0.0 when the value cannot be interpreted as a number.
func coerceFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return 0.0
}
