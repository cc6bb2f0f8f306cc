// Package network drives the UDP receive loop feeding the fusion store.
package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/fusion.report/internal/monitoring"
	"github.com/banshee-data/fusion.report/internal/telemetry"
	"github.com/banshee-data/fusion.report/internal/timeutil"
)

// RecordSink receives validated telemetry records. The listener is the only
// writer; it holds the sole reference that ever calls Update.
type RecordSink interface {
	Update(rec telemetry.TelemetryRecord)
}

// RecordArchiver persists accepted records for later analysis. Archive
// failures are logged and otherwise ignored: the live view must not stall on
// a slow or broken disk.
type RecordArchiver interface {
	RecordTelemetry(rec telemetry.TelemetryRecord, receivedAt time.Time) error
}

// ListenerConfig contains configuration options for the UDP listener.
type ListenerConfig struct {
	Address      string
	RcvBuf       int
	PollInterval time.Duration // read deadline on an idle socket before re-checking
	ErrorBackoff time.Duration // pause after a transient receive error
	Clock        timeutil.Clock
	Archiver     RecordArchiver
}

// UDPListener reads telemetry datagrams from a bound endpoint and merges the
// valid ones into the store. Malformed datagrams are dropped without a trace;
// transient receive errors back off briefly and the loop keeps going. The only
// error surfaced from Start before cancellation is a failed bind.
type UDPListener struct {
	address      string
	rcvBuf       int
	pollInterval time.Duration
	errorBackoff time.Duration
	clock        timeutil.Clock
	archiver     RecordArchiver
	store        RecordSink

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDPListener creates a new UDP listener feeding the given sink.
func NewUDPListener(config ListenerConfig, store RecordSink) *UDPListener {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	pollInterval := config.PollInterval
	if pollInterval == 0 {
		pollInterval = 10 * time.Millisecond
	}
	errorBackoff := config.ErrorBackoff
	if errorBackoff == 0 {
		errorBackoff = 5 * time.Millisecond
	}
	rcvBuf := config.RcvBuf
	if rcvBuf == 0 {
		rcvBuf = 1 << 20
	}

	return &UDPListener{
		address:      config.Address,
		rcvBuf:       rcvBuf,
		pollInterval: pollInterval,
		errorBackoff: errorBackoff,
		clock:        clock,
		archiver:     config.Archiver,
		store:        store,
	}
}

// LocalAddr returns the bound address, or nil before Start has bound the
// socket. Useful when listening on port 0.
func (l *UDPListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Start binds the endpoint and runs the receive loop until ctx is cancelled.
// A bind failure is returned immediately; nothing else stops the loop.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %q: %w", l.address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address %q: %w", l.address, err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
		monitoring.Logf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
	}

	monitoring.Logf("telemetry listener started on %s", conn.LocalAddr())

	buffer := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("telemetry listener stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		// The read deadline doubles as the idle poll interval, bounding how
		// long an empty socket can delay the cancellation check.
		conn.SetReadDeadline(time.Now().Add(l.pollInterval))

		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.clock.Sleep(l.errorBackoff)
			continue
		}

		l.handleDatagram(buffer[:n])
	}
}

// handleDatagram decodes one payload and applies it. Producers are identified
// solely by the id field in the payload, never by source address.
func (l *UDPListener) handleDatagram(payload []byte) {
	rec, err := telemetry.DecodeRecord(payload)
	if err != nil {
		// Malformed datagrams are discarded; the store is untouched.
		return
	}

	l.store.Update(rec)

	if l.archiver != nil {
		if err := l.archiver.RecordTelemetry(rec, l.clock.Now()); err != nil {
			monitoring.Logf("failed to archive telemetry record: %v", err)
		}
	}
}

// Close closes the listener socket if it is open.
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
