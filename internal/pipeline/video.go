package pipeline

import (
	"sync"
	"time"

	"github.com/breeze-rmm/streamgate/internal/logging"
	"github.com/breeze-rmm/streamgate/internal/transport"
)

var log = logging.L("pipeline")

// DecodeUnit is one host-encoded video access unit handed to the forwarder
// by the GameStream collaborator's decode callback.
type DecodeUnit struct {
	Timestamp uint32
	Data      []byte
}

// VideoForwarder owns the single goroutine that drains host-encoded decode
// units onto a Transport. It keeps at most one unit in flight and at most
// one pending behind it — a newer pending unit displaces an older one
// rather than queueing, so the forwarder never falls behind a burst of
// frames (mirrors the capture loop's "newer frame displaces older"
// discipline and the WebSocket stream's "send; drop silently if busy"
// idiom, combined: nothing is ever queued more than one deep).
type VideoForwarder struct {
	transport transport.Transport
	metrics   *StreamMetrics

	mu      sync.Mutex
	pending *DecodeUnit

	wake chan struct{}
	done chan struct{}
	stop sync.Once
}

// NewVideoForwarder starts the forwarder's send loop.
func NewVideoForwarder(t transport.Transport, metrics *StreamMetrics) *VideoForwarder {
	f := &VideoForwarder{
		transport: t,
		metrics:   metrics,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

// Enqueue hands the forwarder the latest decode unit. If a previous unit is
// still waiting to be sent, it is replaced — the forwarder never holds more
// than one pending unit.
func (f *VideoForwarder) Enqueue(unit DecodeUnit) {
	f.metrics.RecordUnitReceived()

	f.mu.Lock()
	if f.pending != nil {
		f.metrics.RecordUnitDropped()
	}
	f.pending = &unit
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *VideoForwarder) run() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}

		f.mu.Lock()
		unit := f.pending
		f.pending = nil
		f.mu.Unlock()
		if unit == nil {
			continue
		}

		t0 := time.Now()
		if err := f.transport.SendDecodeUnit(unit.Timestamp, unit.Data); err != nil {
			log.Warn("video forward failed", "error", err)
			f.metrics.RecordUnitDropped()
			continue
		}
		f.metrics.RecordUnitSent(time.Since(t0), len(unit.Data))
	}
}

// Close stops the forwarder's send loop. Any unit still pending is dropped.
func (f *VideoForwarder) Close() {
	f.stop.Do(func() { close(f.done) })
}
