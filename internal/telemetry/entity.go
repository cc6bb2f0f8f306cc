package telemetry

import "time"

// TrailPoint is one smoothed position sample with its local receive instant.
type TrailPoint struct {
	X  float32
	Y  float32
	At time.Time
}

// EntityState is the fused view of a single producer. Raw fields always hold
// the latest record verbatim; SmoothedX/SmoothedY are the exponentially
// smoothed position used for display and trails. LastSeen is the local receive
// clock and is the only timestamp freshness or eviction decisions may use.
// TsMs comes from an unsynchronized producer clock and is metadata only.
type EntityState struct {
	ID      uint32
	X       float32
	Y       float32
	Z       float32
	Battery float32
	Status  string
	TsMs    uint64

	SmoothedX float32
	SmoothedY float32
	LastSeen  time.Time

	// Trail is append-only at the tail and evicted from the head; it is
	// bounded both by count and by the age of its oldest point.
	Trail []TrailPoint
}

// clone returns a deep copy sharing no memory with the receiver.
func (e *EntityState) clone() EntityState {
	out := *e
	out.Trail = make([]TrailPoint, len(e.Trail))
	copy(out.Trail, e.Trail)
	return out
}
