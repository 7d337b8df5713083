// Package transport defines the media/data transport abstraction shared by
// the WebRTC and WebTransport implementations: a per-session peer connection
// that moves video/audio decode units and input packets in both directions
// without either side of the pipeline knowing which wire protocol is in use.
package transport

import (
	"github.com/breeze-rmm/streamgate/internal/channel"
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/logging"
)

var log = logging.L("transport")

// Kind tags an Event's payload with an integer enum, so dispatch is a switch
// over a closed set rather than a type assertion chain or a string compare.
type Kind int

const (
	KindConnected Kind = iota
	KindDisconnected
	KindInboundPacket
	KindStreamClosed
	KindNeedsIDR
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindInboundPacket:
		return "inbound_packet"
	case KindStreamClosed:
		return "stream_closed"
	case KindNeedsIDR:
		return "needs_idr"
	default:
		return "unknown"
	}
}

// Event is the single outbound notification type a Transport emits. Only
// the fields relevant to Kind are populated; callers switch on Kind first.
type Event struct {
	Kind        Kind
	ChannelID   channel.ID
	Payload     []byte
	CloseReason string
}

// VideoFormat describes the negotiated video codec, mirroring the bitmask
// values carried over signaling (internal/wire.VideoFormatH264 etc.).
type VideoFormat int

// AudioConfig describes the Opus stream the transport should carry.
type AudioConfig struct {
	SampleRate int
	Channels   int
}

// VideoConfig describes the video track/stream the transport should set up.
type VideoConfig struct {
	Format VideoFormat
	Width  int
	Height int
	FPS    int
}

// Transport is the contract a session.Machine drives regardless of which
// wire protocol negotiation settled on. Implementations own their own
// goroutines and report everything async through Events().
type Transport interface {
	// SetupVideo prepares the outbound video carriage (track or datagram
	// framing) ahead of the first SendDecodeUnit call.
	SetupVideo(cfg VideoConfig) error

	// SetupAudio prepares the outbound audio carriage ahead of the first
	// SendAudioSample call. Audio is optional; a Transport may no-op this
	// if the session has audio disabled.
	SetupAudio(cfg AudioConfig) error

	// SendDecodeUnit forwards one encoded video access unit (already
	// fragmented/framed internally as the transport requires) tagged with
	// its capture timestamp in the host's RTP-style 90kHz clock.
	SendDecodeUnit(timestamp uint32, unit []byte) error

	// SendAudioSample forwards one Opus frame.
	SendAudioSample(sample []byte) error

	// Send forwards an arbitrary payload on a logical channel (input ack,
	// controller rumble, stats, etc.) using that channel's configured
	// reliability.
	Send(id channel.ID, payload []byte) error

	// OnIPCMessage lets the streamer forward select host-originated IPC
	// notifications (e.g. ConnectionComplete) down to the transport layer
	// when it needs to react, such as disabling a track.
	OnIPCMessage(env *ipc.Envelope)

	// Events returns the transport's event stream. Closed when the
	// transport is closed.
	Events() <-chan Event

	// Close tears the transport down exactly once.
	Close() error
}
