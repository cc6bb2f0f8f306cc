package telemetry

import "time"

// Freshness classifies an entity by the age of its last received record.
type Freshness string

const (
	Fresh Freshness = "fresh"
	Stale Freshness = "stale"
)

// Classify derives an entity's freshness from now and its LastSeen instant.
// Ages strictly below the threshold are fresh; at or above it, stale. The
// result is never cached on the entity: consumers recompute it from snapshot
// data at observation time.
func Classify(now, lastSeen time.Time, staleAfter time.Duration) Freshness {
	if now.Sub(lastSeen) < staleAfter {
		return Fresh
	}
	return Stale
}
