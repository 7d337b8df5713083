package pipeline

import (
	"sync"
	"time"
)

// StreamMetrics tracks per-session forwarding performance, the same
// counters the single-process capture pipeline tracked, now measuring
// host-to-client forwarding instead of local capture/encode.
type StreamMetrics struct {
	mu sync.RWMutex

	UnitsReceived uint64
	UnitsSent     uint64
	UnitsDropped  uint64

	AudioSamplesSent    uint64
	AudioSamplesDropped uint64

	LastForwardTime time.Duration
	LastUnitSize    int
	TotalBytesSent  uint64

	startTime time.Time
}

// NewStreamMetrics starts a metrics accumulator with its clock at now.
func NewStreamMetrics() *StreamMetrics {
	return &StreamMetrics{startTime: time.Now()}
}

func (m *StreamMetrics) RecordUnitReceived() {
	m.mu.Lock()
	m.UnitsReceived++
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordUnitSent(d time.Duration, size int) {
	m.mu.Lock()
	m.UnitsSent++
	m.LastForwardTime = d
	m.LastUnitSize = size
	m.TotalBytesSent += uint64(size)
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordUnitDropped() {
	m.mu.Lock()
	m.UnitsDropped++
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordAudioSent() {
	m.mu.Lock()
	m.AudioSamplesSent++
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordAudioDropped() {
	m.mu.Lock()
	m.AudioSamplesDropped++
	m.mu.Unlock()
}

// Snapshot is a point-in-time copy of the metrics for logging/stats export.
type Snapshot struct {
	UnitsReceived       uint64
	UnitsSent           uint64
	UnitsDropped        uint64
	AudioSamplesSent    uint64
	AudioSamplesDropped uint64
	ForwardMs           float64
	LastUnitSize        int
	BandwidthKBps       float64
	Uptime              time.Duration
}

// LossFraction returns UnitsDropped as a fraction of UnitsReceived — a
// local backpressure proxy for loss, for transports (WebTransport) that
// don't expose a transport-level loss stat the way WebRTC's RTCP receiver
// reports do.
func (m *StreamMetrics) LossFraction() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.UnitsReceived == 0 {
		return 0
	}
	return float64(m.UnitsDropped) / float64(m.UnitsReceived)
}

func (m *StreamMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	bw := float64(0)
	if uptime.Seconds() > 0 {
		bw = float64(m.TotalBytesSent) / uptime.Seconds() / 1024.0
	}

	return Snapshot{
		UnitsReceived:       m.UnitsReceived,
		UnitsSent:           m.UnitsSent,
		UnitsDropped:        m.UnitsDropped,
		AudioSamplesSent:    m.AudioSamplesSent,
		AudioSamplesDropped: m.AudioSamplesDropped,
		ForwardMs:           float64(m.LastForwardTime.Microseconds()) / 1000.0,
		LastUnitSize:        m.LastUnitSize,
		BandwidthKBps:       bw,
		Uptime:              uptime,
	}
}
