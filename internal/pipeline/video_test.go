package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/breeze-rmm/streamgate/internal/channel"
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/transport"
)

type fakeTransport struct {
	mu    sync.Mutex
	units [][]byte
	block chan struct{}
}

func (f *fakeTransport) SetupVideo(transport.VideoConfig) error { return nil }
func (f *fakeTransport) SetupAudio(transport.AudioConfig) error { return nil }

func (f *fakeTransport) SendDecodeUnit(_ uint32, unit []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.units = append(f.units, unit)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendAudioSample([]byte) error         { return nil }
func (f *fakeTransport) Send(channel.ID, []byte) error        { return nil }
func (f *fakeTransport) OnIPCMessage(*ipc.Envelope)           {}
func (f *fakeTransport) Events() <-chan transport.Event       { return nil }
func (f *fakeTransport) Close() error                         { return nil }

func (f *fakeTransport) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.units)
}

func TestVideoForwarderDeliversUnit(t *testing.T) {
	ft := &fakeTransport{}
	metrics := NewStreamMetrics()
	fwd := NewVideoForwarder(ft, metrics)
	defer fwd.Close()

	fwd.Enqueue(DecodeUnit{Timestamp: 1, Data: []byte("frame")})

	deadline := time.Now().Add(time.Second)
	for ft.sent() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ft.sent() != 1 {
		t.Fatalf("sent = %d, want 1", ft.sent())
	}
	if metrics.Snapshot().UnitsSent != 1 {
		t.Fatalf("metrics UnitsSent = %d, want 1", metrics.Snapshot().UnitsSent)
	}
}

func TestVideoForwarderDisplacesPendingUnit(t *testing.T) {
	ft := &fakeTransport{block: make(chan struct{})}
	metrics := NewStreamMetrics()
	fwd := NewVideoForwarder(ft, metrics)
	defer fwd.Close()

	// First unit is picked up by the send loop and blocks inside SendDecodeUnit.
	fwd.Enqueue(DecodeUnit{Timestamp: 1, Data: []byte("a")})
	time.Sleep(20 * time.Millisecond)

	// Two more units arrive while the first is still in flight — only the
	// last should survive as pending.
	fwd.Enqueue(DecodeUnit{Timestamp: 2, Data: []byte("b")})
	fwd.Enqueue(DecodeUnit{Timestamp: 3, Data: []byte("c")})

	close(ft.block)

	deadline := time.Now().Add(time.Second)
	for ft.sent() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ft.sent() != 2 {
		t.Fatalf("sent = %d, want 2 (first unit + displaced survivor)", ft.sent())
	}
	snap := metrics.Snapshot()
	if snap.UnitsDropped != 1 {
		t.Fatalf("UnitsDropped = %d, want 1", snap.UnitsDropped)
	}
}
