// Package webtransporttransport implements transport.Transport over an
// HTTP/3 WebTransport session: video rides the session's unreliable
// datagrams (fragmented per internal/wire), audio rides a length-framed
// stream, and input and stats ride dedicated streams opened per logical
// channel.
package webtransporttransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/webtransport-go"

	"github.com/breeze-rmm/streamgate/internal/channel"
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/logging"
	"github.com/breeze-rmm/streamgate/internal/transport"
	"github.com/breeze-rmm/streamgate/internal/wire"
)

var log = logging.L("webtransporttransport")

const videoMTU = 1200

// inputWriteWait bounds how long an unreliable channel's stream write may
// stall under backpressure before the packet is dropped, matching
// pipeline.AudioForwarder's short-wait-then-drop policy rather than letting
// a congested input stream stall the caller indefinitely.
const inputWriteWait = 5 * time.Millisecond

// Transport is a transport.Transport backed by one webtransport.Session
// carrying the "/main" path (video datagrams, audio stream, stats stream)
// — the "/input" session is a separate Transport sharing the same session
// token, constructed via NewInput.
type Transport struct {
	session *webtransport.Session
	ctx     context.Context
	cancel  context.CancelFunc

	audioStream io.WriteCloser
	streams     channel.Table[*webtransport.Stream]

	events    chan transport.Event
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New adopts an already-upgraded WebTransport session for the "/main" path
// and starts its datagram/stream read pumps.
func New(session *webtransport.Session) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		session: session,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan transport.Event, 64),
	}
	t.wg.Add(2)
	go func() { defer t.wg.Done(); t.readDatagrams() }()
	go func() { defer t.wg.Done(); t.acceptStreams() }()
	return t
}

func (t *Transport) readDatagrams() {
	r := wire.NewReassembler()
	for {
		data, err := t.session.ReceiveDatagram(t.ctx)
		if err != nil {
			t.emit(transport.Event{Kind: transport.KindDisconnected})
			return
		}
		h, err := wire.DecodeVideoHeader(data)
		if err != nil {
			continue
		}
		if unit, ok := r.Feed(h, data[wire.VideoHeaderSize:]); ok {
			t.emit(transport.Event{Kind: transport.KindInboundPacket, ChannelID: channel.HostVideo, Payload: unit})
		}
	}
}

// acceptStreams handles per-channel bidirectional streams the client opens
// for input and stats; each stream's first byte names the
// logical channel per internal/wire's input framing.
func (t *Transport) acceptStreams() {
	for {
		stream, err := t.session.AcceptStream(t.ctx)
		if err != nil {
			return
		}
		t.wg.Add(1)
		go func() { defer t.wg.Done(); t.pumpStream(stream) }()
	}
}

func (t *Transport) pumpStream(stream *webtransport.Stream) {
	buf := make([]byte, 0, 64*1024)
	readBuf := make([]byte, 16*1024)
	var id channel.ID
	idRead := false

	for {
		n, err := stream.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			if !idRead && len(buf) >= 1 {
				id = wire.DecodeInputStreamHeader(buf[0])
				buf = buf[1:]
				idRead = true
			}
			for idRead {
				payload, consumed, perr := wire.DecodeInputPacket(buf)
				if perr != nil {
					break
				}
				t.emit(transport.Event{Kind: transport.KindInboundPacket, ChannelID: id, Payload: payload})
				buf = buf[consumed:]
			}
		}
		if err != nil {
			return
		}
	}
}

func (t *Transport) SetupVideo(transport.VideoConfig) error { return nil }

func (t *Transport) SetupAudio(transport.AudioConfig) error {
	stream, err := t.session.OpenStream()
	if err != nil {
		return fmt.Errorf("webtransporttransport: open audio stream: %w", err)
	}
	t.audioStream = stream
	return nil
}

func (t *Transport) SendDecodeUnit(timestamp uint32, unit []byte) error {
	frags, err := wire.FragmentVideoUnit(unit, timestamp, videoMTU)
	if err != nil {
		return err
	}
	for _, f := range frags {
		if err := t.session.SendDatagram(f); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) SendAudioSample(sample []byte) error {
	if t.audioStream == nil {
		return fmt.Errorf("webtransporttransport: audio stream not set up")
	}
	framed, err := wire.EncodeAudioSample(sample)
	if err != nil {
		return err
	}
	_, err = t.audioStream.Write(framed)
	return err
}

func (t *Transport) Send(id channel.ID, payload []byte) error {
	stream := t.streams.Get(id)
	if stream == nil {
		s, err := t.session.OpenStream()
		if err != nil {
			return fmt.Errorf("webtransporttransport: open stream for %s: %w", channel.Name(id), err)
		}
		if _, err := s.Write([]byte{wire.EncodeInputStreamHeader(id)}); err != nil {
			return err
		}
		t.streams.Set(id, s)
		stream = s
	}
	framed, err := wire.EncodeInputPacket(payload)
	if err != nil {
		return err
	}
	if !channel.ReliabilityOf(id).Reliable {
		return t.writeUnreliable(stream, framed)
	}
	_, err = stream.Write(framed)
	return err
}

// writeUnreliable writes framed to an unreliable channel's stream under a
// short write deadline, matching pipeline.AudioForwarder's short-wait-then-
// drop policy: a brief stall is tolerated, but a stream that's still
// congested past inputWriteWait gets this packet dropped rather than
// blocking the caller or backing up behind a slow client.
func (t *Transport) writeUnreliable(stream *webtransport.Stream, framed []byte) error {
	if err := stream.SetWriteDeadline(time.Now().Add(inputWriteWait)); err != nil {
		return err
	}
	_, err := stream.Write(framed)
	_ = stream.SetWriteDeadline(time.Time{})
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			log.Warn("unreliable channel write dropped under backpressure")
			return nil
		}
		return err
	}
	return nil
}

func (t *Transport) OnIPCMessage(*ipc.Envelope) {}

func (t *Transport) Events() <-chan transport.Event { return t.events }

func (t *Transport) emit(ev transport.Event) {
	select {
	case t.events <- ev:
	default:
		log.Warn("transport event dropped, channel full", "kind", ev.Kind.String())
	}
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		// Cancel the context and close the session first: this unblocks
		// ReceiveDatagram/AcceptStream/stream reads so readDatagrams,
		// acceptStreams, and every pumpStream goroutine can return.
		t.cancel()
		err = t.session.CloseWithError(0, "session closed")

		// Wait for every producer goroutine to actually exit before
		// touching events, so no emit() call can race the close below.
		t.wg.Wait()

		select {
		case t.events <- transport.Event{Kind: transport.KindStreamClosed, CloseReason: "closed"}:
		default:
			log.Warn("transport event dropped, channel full", "kind", transport.KindStreamClosed.String())
		}
		close(t.events)
	})
	return err
}
