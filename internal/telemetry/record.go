// Package telemetry implements the fusion core: decoding producer datagrams,
// merging them into per-entity state with exponential smoothing, and serving
// consistent snapshots to concurrent readers.
package telemetry

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// TelemetryRecord is one validated producer report. It is transient: records
// are decoded from the wire, merged into the store, and discarded.
type TelemetryRecord struct {
	ID      uint32
	X       float32
	Y       float32
	Z       float32
	Battery float32
	Status  string
	TsMs    uint64 // producer-supplied clock, not synchronized with the receiver
}

// wireRecord mirrors the JSON wire schema with pointer fields so that a
// missing key is distinguishable from a zero value. Unknown keys are ignored.
type wireRecord struct {
	ID      *uint32  `json:"id"`
	X       *float32 `json:"x"`
	Y       *float32 `json:"y"`
	Z       *float32 `json:"z"`
	Battery *float32 `json:"battery"`
	Status  *string  `json:"status"`
	TsMs    *uint64  `json:"ts_ms"`
}

// DecodeRecord parses one datagram payload into a TelemetryRecord. All seven
// fields are required and must carry the right JSON type; anything else
// invalidates the whole datagram. Value ranges are not checked: implausible
// coordinates or battery levels are the producer's problem, not ours.
func DecodeRecord(payload []byte) (TelemetryRecord, error) {
	if !utf8.Valid(payload) {
		return TelemetryRecord{}, fmt.Errorf("payload is not valid UTF-8")
	}

	var w wireRecord
	if err := json.Unmarshal(payload, &w); err != nil {
		return TelemetryRecord{}, fmt.Errorf("malformed telemetry payload: %w", err)
	}

	for name, ok := range map[string]bool{
		"id":      w.ID != nil,
		"x":       w.X != nil,
		"y":       w.Y != nil,
		"z":       w.Z != nil,
		"battery": w.Battery != nil,
		"status":  w.Status != nil,
		"ts_ms":   w.TsMs != nil,
	} {
		if !ok {
			return TelemetryRecord{}, fmt.Errorf("missing required field %q", name)
		}
	}

	return TelemetryRecord{
		ID:      *w.ID,
		X:       *w.X,
		Y:       *w.Y,
		Z:       *w.Z,
		Battery: *w.Battery,
		Status:  *w.Status,
		TsMs:    *w.TsMs,
	}, nil
}
