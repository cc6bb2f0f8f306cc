package telemetry

import (
	"sync"
	"time"

	"github.com/banshee-data/fusion.report/internal/timeutil"
)

// Default tuning values for the fusion store.
const (
	// DefaultAlpha is the exponential smoothing factor. Lower values track
	// slower but smoother; higher values follow raw positions more closely.
	DefaultAlpha = 0.25
	// DefaultTrailMaxPoints bounds the trail length per entity.
	DefaultTrailMaxPoints = 600
	// DefaultTrailMaxAge bounds the age of the oldest retained trail point.
	DefaultTrailMaxAge = 20 * time.Second
	// DefaultStaleAfter is the age at which an entity counts as stale.
	DefaultStaleAfter = 2 * time.Second
)

// StoreConfig holds tuning parameters for the fusion store.
type StoreConfig struct {
	Alpha          float32       // smoothing factor, must be in (0, 1)
	TrailMaxPoints int           // maximum trail points kept per entity
	TrailMaxAge    time.Duration // maximum age of the oldest trail point
	StaleAfter     time.Duration // freshness classification threshold
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Alpha:          DefaultAlpha,
		TrailMaxPoints: DefaultTrailMaxPoints,
		TrailMaxAge:    DefaultTrailMaxAge,
		StaleAfter:     DefaultStaleAfter,
	}
}

// sanitize replaces out-of-range values with defaults so a zero or partially
// filled config never produces a store that cannot smooth or evict.
func (c StoreConfig) sanitize() StoreConfig {
	if c.Alpha <= 0 || c.Alpha >= 1 {
		c.Alpha = DefaultAlpha
	}
	if c.TrailMaxPoints <= 0 {
		c.TrailMaxPoints = DefaultTrailMaxPoints
	}
	if c.TrailMaxAge <= 0 {
		c.TrailMaxAge = DefaultTrailMaxAge
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	return c
}

// Store is the single source of truth for fused entity state. One writer (the
// UDP listener) calls Update; any number of readers call Snapshot. The entity
// map and the global packet counters form one shared resource guarded by a
// single mutex, so a snapshot never observes a half-applied update.
//
// Entities are never removed once created; only trail points are pruned. An
// entity that stops reporting is surfaced through its LastSeen age instead.
type Store struct {
	mu           sync.Mutex
	entities     map[uint32]*EntityState
	totalPackets uint64
	lastPacketAt time.Time

	config StoreConfig
	clock  timeutil.Clock
}

// NewStore creates an empty fusion store. A nil clock defaults to the real one.
func NewStore(config StoreConfig, clock timeutil.Clock) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{
		entities: make(map[uint32]*EntityState),
		config:   config.sanitize(),
		clock:    clock,
	}
}

// Config returns the sanitized configuration the store runs with.
func (s *Store) Config() StoreConfig {
	return s.config
}

// Update merges one validated record into the store. The first record for an
// id creates its entity with the smoothed position seeded from the raw one;
// later records overwrite the raw fields and blend the smoothed position with
// the configured alpha. The whole merge, including trail append, trail
// eviction and the global counters, happens under one lock acquisition.
//
// Update cannot fail: any numeric or string values are accepted, including
// physically implausible ones.
func (s *Store) Update(rec TelemetryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	e, ok := s.entities[rec.ID]
	if !ok {
		e = &EntityState{
			ID:        rec.ID,
			SmoothedX: rec.X,
			SmoothedY: rec.Y,
		}
		s.entities[rec.ID] = e
	} else {
		// Convex combination of the previous smoothed value and the new raw
		// one, so finite inputs keep the smoothed position finite.
		e.SmoothedX += s.config.Alpha * (rec.X - e.SmoothedX)
		e.SmoothedY += s.config.Alpha * (rec.Y - e.SmoothedY)
	}

	e.X = rec.X
	e.Y = rec.Y
	e.Z = rec.Z
	e.Battery = rec.Battery
	e.Status = rec.Status
	e.TsMs = rec.TsMs
	e.LastSeen = now

	e.Trail = append(e.Trail, TrailPoint{X: e.SmoothedX, Y: e.SmoothedY, At: now})
	s.pruneTrail(e, now)

	s.totalPackets++
	s.lastPacketAt = now
}

// pruneTrail enforces both trail bounds independently: the count bound and
// the age bound each evict from the head until satisfied.
func (s *Store) pruneTrail(e *EntityState, now time.Time) {
	for len(e.Trail) > s.config.TrailMaxPoints {
		e.Trail = e.Trail[1:]
	}
	for len(e.Trail) > 0 && now.Sub(e.Trail[0].At) > s.config.TrailMaxAge {
		e.Trail = e.Trail[1:]
	}
}

// Snapshot is an independently owned copy of the store taken at one instant.
// Because updates and the copy share one mutex, no snapshot can contain a
// half-applied update. LastPacketAt is the zero time until the first packet
// arrives.
type Snapshot struct {
	Entities     map[uint32]EntityState
	TotalPackets uint64
	LastPacketAt time.Time
}

// Snapshot copies every entity plus the global counters under one lock
// acquisition and returns the copy. The copy is the only work done while
// holding the lock; callers do their own processing afterwards.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		Entities:     make(map[uint32]EntityState, len(s.entities)),
		TotalPackets: s.totalPackets,
		LastPacketAt: s.lastPacketAt,
	}
	for id, e := range s.entities {
		out.Entities[id] = e.clone()
	}
	return out
}
