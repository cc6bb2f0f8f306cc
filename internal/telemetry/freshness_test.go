package telemetry

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	threshold := 2 * time.Second

	tests := []struct {
		name string
		age  time.Duration
		want Freshness
	}{
		{"just received", 0, Fresh},
		{"well within threshold", time.Second, Fresh},
		{"1ms below threshold", threshold - time.Millisecond, Fresh},
		{"exactly at threshold", threshold, Stale},
		{"1ms past threshold", threshold + time.Millisecond, Stale},
		{"long silent", time.Hour, Stale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(base.Add(tt.age), base, threshold)
			if got != tt.want {
				t.Errorf("Classify(age=%v) = %q, want %q", tt.age, got, tt.want)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	// Same inputs, same answer; nothing is cached anywhere.
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	lastSeen := now.Add(-3 * time.Second)

	for i := 0; i < 5; i++ {
		if got := Classify(now, lastSeen, 2*time.Second); got != Stale {
			t.Fatalf("Classify = %q on call %d, want %q", got, i, Stale)
		}
	}
}
