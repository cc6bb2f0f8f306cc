package telemetry

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SpeedStats summarises an entity's ground speed over its retained trail,
// in world units per second.
type SpeedStats struct {
	Samples int
	Latest  float64
	Mean    float64
	P50     float64
	P95     float64
	Peak    float64
}

// TrailSpeeds derives one speed sample per consecutive trail segment. Segment
// durations are clamped to 1ms so bursts arriving within the clock resolution
// do not divide by zero.
func TrailSpeeds(e EntityState) []float64 {
	if len(e.Trail) < 2 {
		return nil
	}
	speeds := make([]float64, 0, len(e.Trail)-1)
	for i := 1; i < len(e.Trail); i++ {
		p1, p2 := e.Trail[i-1], e.Trail[i]
		dt := p2.At.Sub(p1.At).Seconds()
		if dt < 1e-3 {
			dt = 1e-3
		}
		dx := float64(p2.X - p1.X)
		dy := float64(p2.Y - p1.Y)
		speeds = append(speeds, math.Hypot(dx, dy)/dt)
	}
	return speeds
}

// ComputeSpeedStats summarises the trail's speed samples. The second return
// is false when the trail is too short to derive any speed.
func ComputeSpeedStats(e EntityState) (SpeedStats, bool) {
	speeds := TrailSpeeds(e)
	if len(speeds) == 0 {
		return SpeedStats{}, false
	}

	sorted := make([]float64, len(speeds))
	copy(sorted, speeds)
	sort.Float64s(sorted)

	return SpeedStats{
		Samples: len(speeds),
		Latest:  speeds[len(speeds)-1],
		Mean:    stat.Mean(speeds, nil),
		P50:     stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:     stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Peak:    sorted[len(sorted)-1],
	}, true
}
