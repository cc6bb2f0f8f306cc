// Package api serves the read-side HTTP surface over fusion store snapshots.
// Every handler works on an independent snapshot copy; none of them can block
// or observe the ingestion path mid-update.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/fusion.report/internal/httputil"
	"github.com/banshee-data/fusion.report/internal/monitoring"
	"github.com/banshee-data/fusion.report/internal/telemetry"
	"github.com/banshee-data/fusion.report/internal/timeutil"
	"github.com/banshee-data/fusion.report/internal/version"
)

// SnapshotSource is the read path of the fusion store.
type SnapshotSource interface {
	Snapshot() telemetry.Snapshot
}

// Server exposes snapshot data as JSON endpoints.
type Server struct {
	store  SnapshotSource
	config telemetry.StoreConfig
	clock  timeutil.Clock
}

// NewServer creates an API server over the given snapshot source. A nil clock
// defaults to the real one.
func NewServer(store SnapshotSource, config telemetry.StoreConfig, clock timeutil.Clock) *Server {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{store: store, config: config, clock: clock}
}

// ServeMux returns the route table for the API server.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/entities", s.handleEntities)
	mux.HandleFunc("/api/entities/stats", s.handleEntityStats)
	mux.HandleFunc("/api/healthz", s.handleHealthz)
	return mux
}

// LoggingMiddleware logs method, path, status, and duration for each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("[%d] %s %s %.1fms",
			lrw.statusCode, r.Method, r.RequestURI,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// trailPointJSON is one trail sample on the wire.
type trailPointJSON struct {
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	AgeMs int64   `json:"age_ms"`
}

// entityJSON is the full per-entity view served by /api/snapshot.
type entityJSON struct {
	ID        uint32           `json:"id"`
	X         float32          `json:"x"`
	Y         float32          `json:"y"`
	Z         float32          `json:"z"`
	Battery   float32          `json:"battery"`
	Status    string           `json:"status"`
	TsMs      uint64           `json:"ts_ms"`
	SmoothedX float32          `json:"smoothed_x"`
	SmoothedY float32          `json:"smoothed_y"`
	AgeMs     int64            `json:"age_ms"`
	Freshness string           `json:"freshness"`
	Trail     []trailPointJSON `json:"trail"`
}

// entitySummaryJSON is the trail-less view served by /api/entities.
type entitySummaryJSON struct {
	ID        uint32  `json:"id"`
	SmoothedX float32 `json:"smoothed_x"`
	SmoothedY float32 `json:"smoothed_y"`
	Battery   float32 `json:"battery"`
	Status    string  `json:"status"`
	AgeMs     int64   `json:"age_ms"`
	Freshness string  `json:"freshness"`
	TrailLen  int     `json:"trail_len"`
}

type snapshotJSON struct {
	Entities        map[uint32]entityJSON `json:"entities"`
	TotalPackets    uint64                `json:"total_packets"`
	LastPacketAgeMs *int64                `json:"last_packet_age_ms"`
}

func (s *Server) entityJSON(e telemetry.EntityState, now time.Time) entityJSON {
	trail := make([]trailPointJSON, len(e.Trail))
	for i, p := range e.Trail {
		trail[i] = trailPointJSON{X: p.X, Y: p.Y, AgeMs: now.Sub(p.At).Milliseconds()}
	}
	return entityJSON{
		ID:        e.ID,
		X:         e.X,
		Y:         e.Y,
		Z:         e.Z,
		Battery:   e.Battery,
		Status:    e.Status,
		TsMs:      e.TsMs,
		SmoothedX: e.SmoothedX,
		SmoothedY: e.SmoothedY,
		AgeMs:     now.Sub(e.LastSeen).Milliseconds(),
		Freshness: string(telemetry.Classify(now, e.LastSeen, s.config.StaleAfter)),
		Trail:     trail,
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.store.Snapshot()
	now := s.clock.Now()

	out := snapshotJSON{
		Entities:     make(map[uint32]entityJSON, len(snap.Entities)),
		TotalPackets: snap.TotalPackets,
	}
	if !snap.LastPacketAt.IsZero() {
		age := now.Sub(snap.LastPacketAt).Milliseconds()
		out.LastPacketAgeMs = &age
	}
	for id, e := range snap.Entities {
		out.Entities[id] = s.entityJSON(e, now)
	}

	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.store.Snapshot()
	now := s.clock.Now()

	out := make([]entitySummaryJSON, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		out = append(out, entitySummaryJSON{
			ID:        e.ID,
			SmoothedX: e.SmoothedX,
			SmoothedY: e.SmoothedY,
			Battery:   e.Battery,
			Status:    e.Status,
			AgeMs:     now.Sub(e.LastSeen).Milliseconds(),
			Freshness: string(telemetry.Classify(now, e.LastSeen, s.config.StaleAfter)),
			TrailLen:  len(e.Trail),
		})
	}

	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleEntityStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	idParam := r.URL.Query().Get("id")
	id, err := strconv.ParseUint(idParam, 10, 32)
	if err != nil {
		httputil.BadRequest(w, "invalid or missing id parameter")
		return
	}

	snap := s.store.Snapshot()
	e, ok := snap.Entities[uint32(id)]
	if !ok {
		httputil.NotFound(w, "unknown entity")
		return
	}

	stats, ok := telemetry.ComputeSpeedStats(e)
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"id":      e.ID,
			"samples": 0,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":        e.ID,
		"samples":   stats.Samples,
		"latest":    stats.Latest,
		"mean":      stats.Mean,
		"p50":       stats.P50,
		"p95":       stats.P95,
		"peak":      stats.Peak,
		"trail_len": len(e.Trail),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap := s.store.Snapshot()
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"version":       version.String(),
		"entities":      len(snap.Entities),
		"total_packets": snap.TotalPackets,
	})
}
