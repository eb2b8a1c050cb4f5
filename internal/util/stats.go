package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide link counter.
var Stats = &stats{}

type stats struct {
	Accepted    atomic.Int64 // peers that passed identification
	Rejected    atomic.Int64 // peers closed by the identification gate
	Disconnects atomic.Int64 // identified peers that went away (sentinel, EOF, error)
	BytesSent   atomic.Int64 // bytes written to the board socket
	BytesRecv   atomic.Int64 // bytes read from the board socket
}

func (s *stats) AddAccepted()   { s.Accepted.Add(1) }
func (s *stats) AddRejected()   { s.Rejected.Add(1) }
func (s *stats) AddDisconnect() { s.Disconnects.Add(1) }
func (s *stats) AddSent(n int)  { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int)  { s.BytesRecv.Add(int64(n)) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Accepted, Rejected, Disconnects int64
	BytesSent, BytesRecv            int64
}

func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		Accepted:    s.Accepted.Load(),
		Rejected:    s.Rejected.Load(),
		Disconnects: s.Disconnects.Load(),
		BytesSent:   s.BytesSent.Load(),
		BytesRecv:   s.BytesRecv.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs link statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		prev := Stats.Snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.Snapshot()
				if cur != prev {
					pterm.DefaultLogger.Info(formatStats(cur, prev, 10))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func FormatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns the rates over the last period plus the totals.
func formatStats(cur, prev Snapshot, seconds float64) string {
	out := float64(cur.BytesSent-prev.BytesSent) / seconds
	in := float64(cur.BytesRecv-prev.BytesRecv) / seconds
	return fmt.Sprintf("Out: %s/s | In: %s/s | Peers: %d ok, %d rejected, %d dropped",
		FormatBytes(out),
		FormatBytes(in),
		cur.Accepted,
		cur.Rejected,
		cur.Disconnects,
	)
}
