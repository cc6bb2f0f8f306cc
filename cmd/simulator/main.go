// Command simulator broadcasts synthetic drone telemetry over UDP for testing
// the dashboard without real producers. Each simulated drone does a random
// walk, drains its battery slowly, and flips to LOW_BAT below 15 percent.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

var (
	drones   = flag.Int("drones", 8, "Number of drones to simulate")
	target   = flag.String("target", "127.0.0.1:5000", "Target UDP address (host:port)")
	interval = flag.Duration("interval", 200*time.Millisecond, "Send interval per sweep over all drones")
	spread   = flag.Float64("spread", 100.0, "Initial spread radius for x/y (world units)")
)

type telemetryJSON struct {
	ID      uint32  `json:"id"`
	X       float32 `json:"x"`
	Y       float32 `json:"y"`
	Z       float32 `json:"z"`
	Battery float32 `json:"battery"`
	Status  string  `json:"status"`
	TsMs    uint64  `json:"ts_ms"`
}

func main() {
	flag.Parse()

	conn, err := net.Dial("udp", *target)
	if err != nil {
		log.Fatalf("failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	log.Printf("simulator: sending %d drones to %s every %v", *drones, *target, *interval)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	fleet := make([]telemetryJSON, *drones)
	for i := range fleet {
		fleet[i] = telemetryJSON{
			ID:      uint32(i),
			X:       float32((rng.Float64()*2 - 1) * *spread),
			Y:       float32((rng.Float64()*2 - 1) * *spread),
			Z:       float32(rng.Float64() * 50),
			Battery: float32(60 + rng.Float64()*40),
			Status:  "OK",
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One sweep over the whole fleet per interval.
	limiter := rate.NewLimiter(rate.Every(*interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			log.Printf("simulator stopping: %v", err)
			return
		}

		for i := range fleet {
			d := &fleet[i]

			d.X += float32((rng.Float64()*2 - 1) * 1.5)
			d.Y += float32((rng.Float64()*2 - 1) * 1.5)
			d.Z = clamp(d.Z+float32((rng.Float64()*2-1)*0.8), 0, 120)

			d.Battery = max32(d.Battery-float32(0.02+rng.Float64()*0.06), 0)
			if d.Battery < 15 {
				d.Status = "LOW_BAT"
			} else {
				d.Status = "OK"
			}

			d.TsMs = uint64(time.Now().UnixMilli())

			payload, err := json.Marshal(d)
			if err != nil {
				log.Printf("failed to marshal telemetry: %v", err)
				continue
			}
			if _, err := conn.Write(payload); err != nil {
				log.Printf("failed to send telemetry: %v", err)
			}
		}
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
