package pipeline

import (
	"sync"
	"time"

	"github.com/breeze-rmm/streamgate/internal/transport"
)

// audioEnqueueWait is how long Enqueue blocks trying to make room before
// discarding the oldest queued sample — "block briefly, then discard
// oldest" rather than dropping the newest sample outright, since audio
// gaps are worse than brief extra latency.
const audioEnqueueWait = 5 * time.Millisecond

// AudioForwarder drains Opus samples from the GameStream collaborator
// toward a Transport's reliable audio carrier, in order.
type AudioForwarder struct {
	transport transport.Transport
	metrics   *StreamMetrics

	queue chan []byte
	done  chan struct{}
	stop  sync.Once
}

// NewAudioForwarder starts the forwarder's send loop with a bounded queue
// of depth queueSize, matching the client's requested audio_sample_queue_size.
func NewAudioForwarder(t transport.Transport, metrics *StreamMetrics, queueSize int) *AudioForwarder {
	if queueSize <= 0 {
		queueSize = 8
	}
	f := &AudioForwarder{
		transport: t,
		metrics:   metrics,
		queue:     make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

// Enqueue adds a sample to the send queue, blocking briefly under
// backpressure before discarding the oldest queued sample to make room.
func (f *AudioForwarder) Enqueue(sample []byte) {
	select {
	case f.queue <- sample:
		return
	default:
	}

	timer := time.NewTimer(audioEnqueueWait)
	defer timer.Stop()
	select {
	case f.queue <- sample:
		return
	case <-timer.C:
	}

	select {
	case <-f.queue:
		f.metrics.RecordAudioDropped()
	default:
	}
	select {
	case f.queue <- sample:
	default:
		f.metrics.RecordAudioDropped()
	}
}

func (f *AudioForwarder) run() {
	for {
		select {
		case <-f.done:
			return
		case sample := <-f.queue:
			if err := f.transport.SendAudioSample(sample); err != nil {
				log.Warn("audio forward failed", "error", err)
				f.metrics.RecordAudioDropped()
				continue
			}
			f.metrics.RecordAudioSent()
		}
	}
}

// Close stops the forwarder's send loop.
func (f *AudioForwarder) Close() {
	f.stop.Do(func() { close(f.done) })
}
