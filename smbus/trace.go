package smbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"

	"smbmux/logging"
)

// TraceRingSize is the number of recent transfers kept for post-mortem
const TraceRingSize = 32

// TraceEntry records one completed Transfer
type TraceEntry struct {
	ID       xid.ID
	Addr     uint16
	Protocol Protocol
	Dir      Direction
	Command  uint8
	Attempts int
	Err      error
	Start    time.Time
	Duration time.Duration
}

func (e TraceEntry) String() string {
	result := "ok"
	if e.Err != nil {
		result = e.Err.Error()
	}
	return fmt.Sprintf("%s 0x%02x %s %s cmd=0x%02x attempts=%d %v: %s",
		e.ID, e.Addr, e.Dir, e.Protocol, e.Command, e.Attempts, e.Duration, result)
}

type traceRing struct {
	mu      sync.Mutex
	entries [TraceRingSize]TraceEntry
	head    int // next write position
	n       int
}

func (r *traceRing) record(e TraceEntry) {
	r.mu.Lock()
	r.entries[r.head] = e
	r.head = (r.head + 1) % TraceRingSize
	if r.n < TraceRingSize {
		r.n++
	}
	r.mu.Unlock()
}

// snapshot returns the entries oldest first
func (r *traceRing) snapshot() []TraceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEntry, 0, r.n)
	start := (r.head - r.n + TraceRingSize) % TraceRingSize
	for i := 0; i < r.n; i++ {
		out = append(out, r.entries[(start+i)%TraceRingSize])
	}
	return out
}

// Trace returns the most recent transfers, oldest first
func (c *Controller) Trace() []TraceEntry {
	return c.trace.snapshot()
}

// DumpTrace writes the trace ring to w, one line per transfer
func (c *Controller) DumpTrace(w logging.Writer) {
	entries := c.trace.snapshot()
	w(fmt.Sprintf("=== %s: last %d transfers ===", c.cfg.Name, len(entries)))
	for _, e := range entries {
		w(e.String())
	}
}
