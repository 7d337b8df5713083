// Package webrtctransport implements transport.Transport over a pion
// WebRTC peer connection: one video track, one audio track, and one
// pre-created DataChannel per logical input/stats channel.
package webrtctransport

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/breeze-rmm/streamgate/internal/channel"
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/logging"
	"github.com/breeze-rmm/streamgate/internal/transport"
)

var log = logging.L("webrtctransport")

const keyframeRateLimit = 500 * time.Millisecond

// Config carries the negotiation inputs needed to build a peer connection.
type Config struct {
	ICEServers []webrtc.ICEServer
	Offer      string

	// PortMin/PortMax restrict the UDP ports pion's ICE agent binds to, so
	// an operator can open one firewall range for every streamer process
	// instead of the whole ephemeral range. Leave both zero to let the OS
	// pick.
	PortMin uint16
	PortMax uint16
}

// Transport is a transport.Transport backed by a single pion PeerConnection.
type Transport struct {
	pc *webrtc.PeerConnection

	videoTrack *webrtc.TrackLocalStaticSample
	audioTrack *webrtc.TrackLocalStaticSample

	dataChannels channel.Table[*webrtc.DataChannel]

	events    chan transport.Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu         sync.Mutex
	lastKeyfrm time.Time
}

// New creates the peer connection, registers default codecs, creates the
// video/audio tracks and one DataChannel per logical channel, sets the
// remote offer, and returns the SDP answer alongside the Transport.
func New(cfg Config) (t *Transport, answerSDP string, err error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, "", fmt.Errorf("webrtctransport: register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.PortMin != 0 && cfg.PortMax != 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, "", fmt.Errorf("webrtctransport: set udp port range: %w", err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settingEngine))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, "", fmt.Errorf("webrtctransport: new peer connection: %w", err)
	}

	t = &Transport{
		pc:     pc,
		events: make(chan transport.Event, 64),
		done:   make(chan struct{}),
	}

	defer func() {
		if err != nil {
			pc.Close()
		}
	}()

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
		"video", "streamgate",
	)
	if err != nil {
		return nil, "", fmt.Errorf("webrtctransport: video track: %w", err)
	}
	t.videoTrack = videoTrack
	sender, err := pc.AddTrack(videoTrack)
	if err != nil {
		return nil, "", fmt.Errorf("webrtctransport: add video track: %w", err)
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.drainRTCP(sender)
	}()

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "streamgate",
	)
	if err != nil {
		return nil, "", fmt.Errorf("webrtctransport: audio track: %w", err)
	}
	t.audioTrack = audioTrack
	if _, err := pc.AddTrack(audioTrack); err != nil {
		return nil, "", fmt.Errorf("webrtctransport: add audio track: %w", err)
	}

	if err := t.createDataChannels(); err != nil {
		return nil, "", err
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			t.emit(transport.Event{Kind: transport.KindConnected})
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			t.emit(transport.Event{Kind: transport.KindDisconnected})
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  cfg.Offer,
	}); err != nil {
		return nil, "", fmt.Errorf("webrtctransport: set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, "", fmt.Errorf("webrtctransport: create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, "", fmt.Errorf("webrtctransport: set local description: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gatherComplete:
	case <-time.After(20 * time.Second):
		return nil, "", fmt.Errorf("webrtctransport: ICE gathering timed out")
	}

	ld := pc.LocalDescription()
	if ld == nil {
		return nil, "", fmt.Errorf("webrtctransport: local description not available")
	}
	return t, ld.SDP, nil
}

// createDataChannels pre-creates one DataChannel per logical channel ID,
// matching ordered/maxRetransmits to channel.ReliabilityOf so the browser
// side sees stable, negotiated labels rather than a dynamic OnDataChannel
// race.
func (t *Transport) createDataChannels() error {
	for id := channel.ID(0); id < channel.NumChannels; id++ {
		if id == channel.HostVideo || id == channel.HostAudio {
			continue // carried on media tracks, not data channels
		}
		rel := channel.ReliabilityOf(id)
		init := &webrtc.DataChannelInit{Ordered: &rel.Ordered}
		if !rel.Reliable {
			zero := uint16(0)
			init.MaxRetransmits = &zero
		}
		dc, err := t.pc.CreateDataChannel(channel.Name(id), init)
		if err != nil {
			return fmt.Errorf("webrtctransport: create data channel %s: %w", channel.Name(id), err)
		}
		chID := id
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			t.emit(transport.Event{Kind: transport.KindInboundPacket, ChannelID: chID, Payload: msg.Data})
		})
		t.dataChannels.Set(id, dc)
	}
	return nil
}

func (t *Transport) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, p := range pkts {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				t.mu.Lock()
				rateLimited := time.Since(t.lastKeyfrm) < keyframeRateLimit
				if !rateLimited {
					t.lastKeyfrm = time.Now()
				}
				t.mu.Unlock()
				if !rateLimited {
					t.emit(transport.Event{Kind: transport.KindNeedsIDR})
				}
			}
		}
	}
}

func (t *Transport) SetupVideo(transport.VideoConfig) error { return nil }
func (t *Transport) SetupAudio(transport.AudioConfig) error { return nil }

func (t *Transport) SendDecodeUnit(_ uint32, unit []byte) error {
	return t.videoTrack.WriteSample(media.Sample{Data: unit, Duration: 16 * time.Millisecond})
}

func (t *Transport) SendAudioSample(sample []byte) error {
	return t.audioTrack.WriteSample(media.Sample{Data: sample, Duration: 20 * time.Millisecond})
}

func (t *Transport) Send(id channel.ID, payload []byte) error {
	dc := t.dataChannels.Get(id)
	if dc == nil {
		return fmt.Errorf("webrtctransport: no data channel for %s", channel.Name(id))
	}
	if dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("webrtctransport: data channel %s not open", channel.Name(id))
	}
	return dc.Send(payload)
}

func (t *Transport) OnIPCMessage(*ipc.Envelope) {}

func (t *Transport) Events() <-chan transport.Event { return t.events }

func (t *Transport) emit(ev transport.Event) {
	select {
	case <-t.done:
		return
	default:
	}
	select {
	case t.events <- ev:
	case <-t.done:
	default:
		log.Warn("transport event dropped, channel full", "kind", ev.Kind.String())
	}
}

// AddICECandidate relays a trickled remote ICE candidate.
func (t *Transport) AddICECandidate(candidate string) error {
	return t.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)

		// Close the peer connection first: this tears down the SCTP
		// association and RTP senders, which unblocks drainRTCP's
		// sender.Read and stops pion from invoking any further
		// OnMessage/OnConnectionStateChange callbacks.
		err = t.pc.Close()

		// Wait for drainRTCP to actually return before touching events,
		// so no emit() call can race the close below.
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
