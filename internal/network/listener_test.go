package network

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fusion.report/internal/monitoring"
	"github.com/banshee-data/fusion.report/internal/telemetry"
	"github.com/banshee-data/fusion.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func TestNewUDPListener_Defaults(t *testing.T) {
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), nil)
	l := NewUDPListener(ListenerConfig{Address: ":5000"}, store)

	if l == nil {
		t.Fatal("NewUDPListener returned nil")
	}
	if l.address != ":5000" {
		t.Errorf("address = %q, want \":5000\"", l.address)
	}
	if l.pollInterval != 10*time.Millisecond {
		t.Errorf("pollInterval = %v, want 10ms", l.pollInterval)
	}
	if l.errorBackoff != 5*time.Millisecond {
		t.Errorf("errorBackoff = %v, want 5ms", l.errorBackoff)
	}
	if l.rcvBuf != 1<<20 {
		t.Errorf("rcvBuf = %d, want 1MiB", l.rcvBuf)
	}
	if l.clock == nil {
		t.Error("clock not defaulted")
	}
	if l.LocalAddr() != nil {
		t.Error("LocalAddr should be nil before Start")
	}
}

func TestNewUDPListener_Overrides(t *testing.T) {
	clock := timeutil.NewMockClock(time.Now())
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), clock)
	l := NewUDPListener(ListenerConfig{
		Address:      ":5001",
		RcvBuf:       4096,
		PollInterval: 25 * time.Millisecond,
		ErrorBackoff: time.Millisecond,
		Clock:        clock,
	}, store)

	if l.rcvBuf != 4096 {
		t.Errorf("rcvBuf = %d, want 4096", l.rcvBuf)
	}
	if l.pollInterval != 25*time.Millisecond {
		t.Errorf("pollInterval = %v, want 25ms", l.pollInterval)
	}
	if l.errorBackoff != time.Millisecond {
		t.Errorf("errorBackoff = %v, want 1ms", l.errorBackoff)
	}
}

// startListener runs a listener on an ephemeral port and returns a sender
// connected to it.
func startListener(t *testing.T, store RecordSink) (*UDPListener, net.Conn, context.CancelFunc) {
	t.Helper()

	l := NewUDPListener(ListenerConfig{Address: "127.0.0.1:0"}, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	require.Eventually(t, func() bool { return l.LocalAddr() != nil },
		2*time.Second, 5*time.Millisecond, "listener never bound")

	conn, err := net.Dial("udp", l.LocalAddr().String())
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		conn.Close()
		select {
		case err := <-done:
			assert.True(t, errors.Is(err, context.Canceled), "Start returned %v", err)
		case <-time.After(2 * time.Second):
			t.Error("listener did not stop after cancellation")
		}
	})

	return l, conn, cancel
}

func TestUDPListener_ReceivesTelemetry(t *testing.T) {
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), nil)
	_, conn, _ := startListener(t, store)

	_, err := conn.Write([]byte(`{"id":1,"x":5,"y":6,"z":7,"battery":80,"status":"OK","ts_ms":1000}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.Snapshot().TotalPackets == 1
	}, 2*time.Second, 5*time.Millisecond)

	snap := store.Snapshot()
	require.Contains(t, snap.Entities, uint32(1))
	e := snap.Entities[1]
	assert.Equal(t, float32(5), e.X)
	assert.Equal(t, float32(6), e.Y)
	assert.Equal(t, "OK", e.Status)
	assert.False(t, snap.LastPacketAt.IsZero())
}

func TestUDPListener_MalformedDatagramsDiscarded(t *testing.T) {
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), nil)
	_, conn, _ := startListener(t, store)

	// One well-formed record, then assorted garbage.
	_, err := conn.Write([]byte(`{"id":9,"x":1,"y":2,"z":3,"battery":50,"status":"OK","ts_ms":42}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.Snapshot().TotalPackets == 1
	}, 2*time.Second, 5*time.Millisecond)

	for _, garbage := range [][]byte{
		[]byte("definitely not json"),
		{0xff, 0xfe, 0x00, 0x01},
		[]byte(`{"id":10,"x":1}`),
		[]byte(`{"id":"bad","x":1,"y":2,"z":3,"battery":50,"status":"OK","ts_ms":42}`),
	} {
		_, err := conn.Write(garbage)
		require.NoError(t, err)
	}

	// Give the loop time to (not) process the garbage.
	time.Sleep(100 * time.Millisecond)

	snap := store.Snapshot()
	assert.Equal(t, uint64(1), snap.TotalPackets)
	assert.Len(t, snap.Entities, 1)
	assert.Contains(t, snap.Entities, uint32(9))
}

func TestUDPListener_MultipleProducersOneEndpoint(t *testing.T) {
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), nil)
	l, _, _ := startListener(t, store)

	// Two independent sockets share the endpoint; entities are keyed by the
	// id field, not by source address.
	for _, id := range []string{"1", "2"} {
		conn, err := net.Dial("udp", l.LocalAddr().String())
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Write([]byte(`{"id":` + id + `,"x":0,"y":0,"z":0,"battery":100,"status":"OK","ts_ms":1}`))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		return snap.TotalPackets == 2 && len(snap.Entities) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUDPListener_BindFailure(t *testing.T) {
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), nil)

	// Occupy a port, then try to bind it again.
	occupied, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	l := NewUDPListener(ListenerConfig{Address: occupied.LocalAddr().String()}, store)
	err = l.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestUDPListener_ResolveFailure(t *testing.T) {
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), nil)
	l := NewUDPListener(ListenerConfig{Address: "host.invalid:99999"}, store)

	err := l.Start(context.Background())
	require.Error(t, err)
}

func TestUDPListener_CloseWithoutStart(t *testing.T) {
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), nil)
	l := NewUDPListener(ListenerConfig{Address: ":0"}, store)

	if err := l.Close(); err != nil {
		t.Errorf("Close without Start returned error: %v", err)
	}
}

// archiveRecorder records archived calls for assertions.
type archiveRecorder struct {
	records  []telemetry.TelemetryRecord
	instants []time.Time
	err      error
}

func (a *archiveRecorder) RecordTelemetry(rec telemetry.TelemetryRecord, receivedAt time.Time) error {
	a.records = append(a.records, rec)
	a.instants = append(a.instants, receivedAt)
	return a.err
}

func TestUDPListener_ArchiverReceivesAcceptedRecords(t *testing.T) {
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), nil)
	rec := &archiveRecorder{}

	l := NewUDPListener(ListenerConfig{Archiver: rec}, store)

	l.handleDatagram([]byte(`{"id":3,"x":1,"y":1,"z":1,"battery":90,"status":"OK","ts_ms":7}`))
	l.handleDatagram([]byte(`garbage`))

	require.Len(t, rec.records, 1, "only accepted records are archived")
	assert.Equal(t, uint32(3), rec.records[0].ID)
	assert.False(t, rec.instants[0].IsZero())
}

func TestUDPListener_ArchiveFailureDoesNotDropUpdate(t *testing.T) {
	store := telemetry.NewStore(telemetry.DefaultStoreConfig(), nil)
	rec := &archiveRecorder{err: errors.New("disk full")}

	l := NewUDPListener(ListenerConfig{Archiver: rec}, store)
	l.handleDatagram([]byte(`{"id":4,"x":1,"y":1,"z":1,"battery":90,"status":"OK","ts_ms":7}`))

	snap := store.Snapshot()
	assert.Equal(t, uint64(1), snap.TotalPackets)
	assert.Contains(t, snap.Entities, uint32(4))
}
