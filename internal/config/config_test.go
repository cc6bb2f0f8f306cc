package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/fusion.report/internal/telemetry"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dashboard.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := &Config{}

	if got := cfg.GetListenUDP(); got != "127.0.0.1:5000" {
		t.Errorf("GetListenUDP() = %q", got)
	}
	if got := cfg.GetListenHTTP(); got != ":8080" {
		t.Errorf("GetListenHTTP() = %q", got)
	}
	if got := cfg.GetRcvBuf(); got != 1<<20 {
		t.Errorf("GetRcvBuf() = %d", got)
	}
	if got := cfg.GetAlpha(); got != float32(telemetry.DefaultAlpha) {
		t.Errorf("GetAlpha() = %v", got)
	}
	if got := cfg.GetTrailMaxPoints(); got != telemetry.DefaultTrailMaxPoints {
		t.Errorf("GetTrailMaxPoints() = %d", got)
	}
	if got := cfg.GetTrailMaxAge(); got != telemetry.DefaultTrailMaxAge {
		t.Errorf("GetTrailMaxAge() = %v", got)
	}
	if got := cfg.GetStaleAfter(); got != telemetry.DefaultStaleAfter {
		t.Errorf("GetStaleAfter() = %v", got)
	}
	if got := cfg.GetArchivePath(); got != "" {
		t.Errorf("GetArchivePath() = %q", got)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, `{"alpha": 0.5, "trail_max_age": "45s", "listen_udp": ":6000"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if got := cfg.GetAlpha(); got != 0.5 {
		t.Errorf("GetAlpha() = %v, want 0.5", got)
	}
	if got := cfg.GetTrailMaxAge(); got != 45*time.Second {
		t.Errorf("GetTrailMaxAge() = %v, want 45s", got)
	}
	if got := cfg.GetListenUDP(); got != ":6000" {
		t.Errorf("GetListenUDP() = %q, want :6000", got)
	}
	// Unnamed fields keep defaults.
	if got := cfg.GetTrailMaxPoints(); got != telemetry.DefaultTrailMaxPoints {
		t.Errorf("GetTrailMaxPoints() = %d, want default", got)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"alpha too high", `{"alpha": 1.5}`},
		{"alpha zero", `{"alpha": 0}`},
		{"negative trail points", `{"trail_max_points": -10}`},
		{"bad duration", `{"stale_after": "two seconds"}`},
		{"negative rcv_buf", `{"rcv_buf": -1}`},
		{"not json", `alpha = 0.25`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.contents)
			if _, err := Load(path); err == nil {
				t.Errorf("Load accepted %q", tt.contents)
			}
		})
	}
}

func TestLoadRejectsWrongExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted a non-.json file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Load accepted a missing file")
	}
}

func TestStoreConfig(t *testing.T) {
	path := writeConfig(t, `{"alpha": 0.1, "trail_max_points": 50, "trail_max_age": "5s", "stale_after": "1s"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	sc := cfg.StoreConfig()
	if sc.Alpha != 0.1 {
		t.Errorf("Alpha = %v, want 0.1", sc.Alpha)
	}
	if sc.TrailMaxPoints != 50 {
		t.Errorf("TrailMaxPoints = %d, want 50", sc.TrailMaxPoints)
	}
	if sc.TrailMaxAge != 5*time.Second {
		t.Errorf("TrailMaxAge = %v, want 5s", sc.TrailMaxAge)
	}
	if sc.StaleAfter != time.Second {
		t.Errorf("StaleAfter = %v, want 1s", sc.StaleAfter)
	}
}
