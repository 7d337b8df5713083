package pipeline

import (
	"github.com/breeze-rmm/streamgate/internal/channel"
)

// InputPacket is one demultiplexed input payload, tagged with its logical
// channel so the GameStream collaborator can route it to the right host
// input queue (mouse, keyboard, a specific controller slot, ...).
type InputPacket struct {
	Channel channel.ID
	Payload []byte
}

// InputSink receives demultiplexed input packets, implemented by whatever
// owns the GameStream collaborator connection.
type InputSink interface {
	SendInput(id channel.ID, payload []byte) error
}

// InputDemux routes inbound transport.Event{Kind: KindInboundPacket} packets
// to one InputSink shared by every channel, passing each packet's channel ID
// so the sink can route it; the demux keeps no per-channel state.
type InputDemux struct {
	sink InputSink
}

// NewInputDemux builds a demux delivering every channel's packets to sink.
func NewInputDemux(sink InputSink) *InputDemux {
	return &InputDemux{sink: sink}
}

// Dispatch routes one inbound packet. Errors are logged, not propagated —
// a single bad input packet must never take down the session.
func (d *InputDemux) Dispatch(pkt InputPacket) {
	if err := d.sink.SendInput(pkt.Channel, pkt.Payload); err != nil {
		log.Warn("input dispatch failed", "channel", channel.Name(pkt.Channel), "error", err)
	}
}
