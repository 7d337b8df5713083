// Package gamestream defines the seam between the gateway and the
// GameStream-protocol host (Sunshine or similar). The pairing/control wire
// protocol itself is out of scope — this package is the collaborator
// contract the rest of the gateway programs against, plus an in-memory
// fake for tests.
package gamestream

import (
	"fmt"
	"sync"

	"github.com/breeze-rmm/streamgate/internal/channel"
)

// AppInfo describes one app/game entry the host can launch.
type AppInfo struct {
	ID   string
	Name string
}

// DecodeCallback receives one encoded video access unit from the host,
// tagged with its capture timestamp (host's 90kHz clock).
type DecodeCallback func(timestamp uint32, unit []byte)

// AudioCallback receives one Opus sample from the host.
type AudioCallback func(sample []byte)

// Client is the host-side collaborator contract: pairing, app launch, and
// the bidirectional media/input bridge. The real implementation speaks the
// GameStream/Moonlight wire protocol; that protocol is explicitly out of
// scope here.
type Client interface {
	// Pair authenticates against the host, returning an error if pairing
	// was revoked or never completed.
	Pair(hostID string) error

	// LaunchApp starts (or resumes) the named app on the host.
	LaunchApp(appID string) (AppInfo, error)

	// RegisterDecodeCallback installs the callback invoked for every video
	// access unit the host produces. Replaces any previous registration.
	RegisterDecodeCallback(cb DecodeCallback)

	// RegisterAudioCallback installs the callback invoked for every Opus
	// sample the host produces.
	RegisterAudioCallback(cb AudioCallback)

	// SendInput forwards one demultiplexed input packet to the host.
	SendInput(id channel.ID, payload []byte) error

	// RequestIDR asks the host's encoder for an immediate keyframe.
	RequestIDR() error

	// SetBitrate asks the host's encoder to retarget its output rate, in
	// kbps — driven by AdaptiveBitrate reacting to observed RTT/loss.
	SetBitrate(kbps int) error

	// Close tears down the pairing session.
	Close() error
}

// Fake is an in-memory Client double for session/pipeline tests: it never
// touches a network, and lets the test drive decode/audio callbacks and
// inspect forwarded input directly.
type Fake struct {
	mu sync.Mutex

	paired   bool
	launched []string
	input    []FakeInputCall
	idrCount int
	closed   bool

	decodeCB DecodeCallback
	audioCB  AudioCallback

	bitrateKbps []int

	PairErr  error
	LaunchErr error
}

// FakeInputCall records one SendInput invocation for assertions.
type FakeInputCall struct {
	Channel channel.ID
	Payload []byte
}

// NewFake returns a ready-to-use fake collaborator.
func NewFake() *Fake {
	return &Fake{}
}

// Unimplemented is the placeholder Client a running streamer process wires
// in until a real Moonlight/GameStream client exists: every call fails
// immediately with ErrNotImplemented rather than hanging or panicking.
type Unimplemented struct{}

// ErrNotImplemented is returned by every Unimplemented method.
var ErrNotImplemented = fmt.Errorf("gamestream: no GameStream client wired in")

func (Unimplemented) Pair(string) error                        { return ErrNotImplemented }
func (Unimplemented) LaunchApp(string) (AppInfo, error)         { return AppInfo{}, ErrNotImplemented }
func (Unimplemented) RegisterDecodeCallback(DecodeCallback)     {}
func (Unimplemented) RegisterAudioCallback(AudioCallback)       {}
func (Unimplemented) SendInput(channel.ID, []byte) error        { return ErrNotImplemented }
func (Unimplemented) RequestIDR() error                         { return ErrNotImplemented }
func (Unimplemented) SetBitrate(int) error                      { return ErrNotImplemented }
func (Unimplemented) Close() error                              { return nil }

var _ Client = Unimplemented{}

func (f *Fake) Pair(hostID string) error {
	if f.PairErr != nil {
		return f.PairErr
	}
	f.mu.Lock()
	f.paired = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) LaunchApp(appID string) (AppInfo, error) {
	if f.LaunchErr != nil {
		return AppInfo{}, f.LaunchErr
	}
	f.mu.Lock()
	if !f.paired {
		f.mu.Unlock()
		return AppInfo{}, fmt.Errorf("gamestream: not paired")
	}
	f.launched = append(f.launched, appID)
	f.mu.Unlock()
	return AppInfo{ID: appID, Name: "app-" + appID}, nil
}

func (f *Fake) RegisterDecodeCallback(cb DecodeCallback) {
	f.mu.Lock()
	f.decodeCB = cb
	f.mu.Unlock()
}

func (f *Fake) RegisterAudioCallback(cb AudioCallback) {
	f.mu.Lock()
	f.audioCB = cb
	f.mu.Unlock()
}

func (f *Fake) SendInput(id channel.ID, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("gamestream: client closed")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.input = append(f.input, FakeInputCall{Channel: id, Payload: cp})
	return nil
}

func (f *Fake) RequestIDR() error {
	f.mu.Lock()
	f.idrCount++
	f.mu.Unlock()
	return nil
}

func (f *Fake) SetBitrate(kbps int) error {
	f.mu.Lock()
	f.bitrateKbps = append(f.bitrateKbps, kbps)
	f.mu.Unlock()
	return nil
}

// BitrateChanges returns every SetBitrate call recorded so far.
func (f *Fake) BitrateChanges() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.bitrateKbps))
	copy(out, f.bitrateKbps)
	return out
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// EmitDecodeUnit drives the registered DecodeCallback, simulating the host
// producing one video access unit.
func (f *Fake) EmitDecodeUnit(timestamp uint32, unit []byte) {
	f.mu.Lock()
	cb := f.decodeCB
	f.mu.Unlock()
	if cb != nil {
		cb(timestamp, unit)
	}
}

// EmitAudioSample drives the registered AudioCallback.
func (f *Fake) EmitAudioSample(sample []byte) {
	f.mu.Lock()
	cb := f.audioCB
	f.mu.Unlock()
	if cb != nil {
		cb(sample)
	}
}

// Inputs returns every SendInput call recorded so far.
func (f *Fake) Inputs() []FakeInputCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeInputCall, len(f.input))
	copy(out, f.input)
	return out
}

// IDRRequests returns how many times RequestIDR was called.
func (f *Fake) IDRRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idrCount
}

// LaunchedApps returns every app ID passed to LaunchApp.
func (f *Fake) LaunchedApps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.launched))
	copy(out, f.launched)
	return out
}

var _ Client = (*Fake)(nil)
