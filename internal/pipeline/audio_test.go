package pipeline

import (
	"sync"
	"testing"
	"time"
)

type fakeAudioTransport struct {
	fakeTransport
	samples [][]byte
	amu     sync.Mutex
}

func (f *fakeAudioTransport) SendAudioSample(sample []byte) error {
	f.amu.Lock()
	f.samples = append(f.samples, sample)
	f.amu.Unlock()
	return nil
}

func (f *fakeAudioTransport) count() int {
	f.amu.Lock()
	defer f.amu.Unlock()
	return len(f.samples)
}

func TestAudioForwarderDeliversInOrder(t *testing.T) {
	ft := &fakeAudioTransport{}
	metrics := NewStreamMetrics()
	fwd := NewAudioForwarder(ft, metrics, 4)
	defer fwd.Close()

	fwd.Enqueue([]byte("one"))
	fwd.Enqueue([]byte("two"))

	deadline := time.Now().Add(time.Second)
	for ft.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	ft.amu.Lock()
	defer ft.amu.Unlock()
	if len(ft.samples) != 2 || string(ft.samples[0]) != "one" || string(ft.samples[1]) != "two" {
		t.Fatalf("got %v", ft.samples)
	}
}

func TestAudioForwarderDiscardsOldestUnderSustainedBackpressure(t *testing.T) {
	ft := &fakeAudioTransport{}
	metrics := NewStreamMetrics()
	fwd := NewAudioForwarder(ft, metrics, 1)

	// Fill the queue without letting the send loop drain it by stopping it
	// immediately — Enqueue must not block the caller forever even so.
	fwd.Close()

	done := make(chan struct{})
	go func() {
		fwd.Enqueue([]byte("first"))
		fwd.Enqueue([]byte("second"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked indefinitely under backpressure")
	}

	if metrics.Snapshot().AudioSamplesDropped == 0 {
		t.Fatal("expected at least one dropped sample under backpressure")
	}
}
