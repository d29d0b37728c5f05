package connection

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"unshub/internal/api"
)

// DecodePayload turns a raw wire payload into leaf data points. JSON objects
// are flattened: every nested key extends the topic with a "/" segment, and
// every scalar becomes one data point. Arrays contribute index segments.
// An object with exactly the keys "value" and "timestamp" (any casing) is a
// timestamped leaf, not a branch. Payloads that are not valid JSON yield a
// single data point carrying the payload as a string.
func DecodePayload(topic string, payload []byte, receivedAt time.Time) []api.DataPoint {
	parsed, ok := parseJSON(payload)
	if !ok {
		decodeFallbacks.Inc()
		return []api.DataPoint{{
			Topic:     topic,
			Value:     string(payload),
			Timestamp: receivedAt,
			Quality:   api.QualityGood,
		}}
	}

	var points []api.DataPoint
	flatten(topic, parsed, receivedAt, &points)
	return points
}

// parseJSON decodes the payload as a single JSON document. A valid JSON
// prefix followed by trailing text ("22.4 degrees") is not JSON.
func parseJSON(payload []byte) (interface{}, bool) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var parsed interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, false
	}
	var trailing interface{}
	if err := dec.Decode(&trailing); err != io.EOF {
		return nil, false
	}
	return parsed, true
}

func flatten(topic string, v interface{}, ts time.Time, out *[]api.DataPoint) {
	switch val := v.(type) {
	case map[string]interface{}:
		if leaf, leafTS, ok := timestampedLeaf(val, ts); ok {
			*out = append(*out, api.DataPoint{
				Topic:     topic,
				Value:     leaf,
				Timestamp: leafTS,
				Quality:   api.QualityGood,
			})
			return
		}
		for key, child := range val {
			flatten(topic+"/"+key, child, ts, out)
		}
	case []interface{}:
		for i, child := range val {
			flatten(topic+"/"+strconv.Itoa(i), child, ts, out)
		}
	default:
		*out = append(*out, api.DataPoint{
			Topic:     topic,
			Value:     scalarValue(val),
			Timestamp: ts,
			Quality:   api.QualityGood,
		})
	}
}

// timestampedLeaf recognises the {value, timestamp} convention. The match is
// strict on key count so objects that merely contain a "value" branch keep
// flattening normally.
func timestampedLeaf(obj map[string]interface{}, fallback time.Time) (interface{}, time.Time, bool) {
	if len(obj) != 2 {
		return nil, time.Time{}, false
	}
	var value interface{}
	var rawTS interface{}
	haveValue, haveTS := false, false
	for k, v := range obj {
		switch strings.ToLower(k) {
		case "value":
			value, haveValue = v, true
		case "timestamp":
			rawTS, haveTS = v, true
		}
	}
	if !haveValue || !haveTS {
		return nil, time.Time{}, false
	}
	return scalarValue(value), parseTimestamp(rawTS, fallback), true
}

// parseTimestamp accepts epoch milliseconds or RFC 3339 strings; anything
// else falls back to the receive time.
func parseTimestamp(raw interface{}, fallback time.Time) time.Time {
	switch ts := raw.(type) {
	case json.Number:
		if millis, err := ts.Int64(); err == nil {
			return time.UnixMilli(millis).UTC()
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t.UTC()
		}
		if millis, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return time.UnixMilli(millis).UTC()
		}
	}
	return fallback
}

// scalarValue maps a decoded JSON scalar to its natural Go type: whole
// numbers become int64, fractions float64, the rest pass through (including
// nil for JSON null).
func scalarValue(v interface{}) interface{} {
	num, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := num.Int64(); err == nil {
		return i
	}
	if f, err := num.Float64(); err == nil {
		return f
	}
	return num.String()
}
