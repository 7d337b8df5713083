package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/breeze-rmm/streamgate/internal/channel"
	"github.com/breeze-rmm/streamgate/internal/gamestream"
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/pipeline"
	"github.com/breeze-rmm/streamgate/internal/transport"
	"github.com/breeze-rmm/streamgate/internal/wire"
	"github.com/breeze-rmm/streamgate/internal/workerpool"
)

// callbackWorkers bounds the goroutines dispatching GameStream decode/audio
// callbacks into the forwarders, so a host callback never blocks on our
// queue's own backpressure (AudioForwarder.Enqueue can wait briefly for
// room).
const callbackWorkers = 2

const (
	connectTimeout    = 15 * time.Second
	wtHandshakeWait   = 5 * time.Second
	webrtcOfferWait   = 15 * time.Second
	callbackDrainWait = 2 * time.Second
)

// minAdaptiveBitrateKbps floors AdaptiveBitrate's range, so a session never
// gets throttled to unwatchable quality under sustained congestion. When the
// client's requested bitrate is at or below it, the floor is half the
// requested bitrate instead.
const minAdaptiveBitrateKbps = 1000

// Machine is one session's state machine actor: a single goroutine reading
// a bounded event queue, driving GameStream pairing, transport negotiation,
// and the forwarding pipeline in sequence. Nothing outside this package
// touches its transport or pipeline.
type Machine struct {
	mu    sync.Mutex
	state State
	token string

	cfg ipc.InitPayload

	host       gamestream.Client
	factory    TransportFactory
	reporter   Reporter
	iceServers []ipc.ICEServerInfo

	tr       transport.Transport
	inputTr  transport.Transport
	metrics  *pipeline.StreamMetrics
	videoFwd *pipeline.VideoForwarder
	audioFwd *pipeline.AudioForwarder
	demux    *pipeline.InputDemux
	cbPool   *workerpool.Pool
	adaptive *pipeline.AdaptiveBitrate

	events chan event
	done   chan struct{}
	once   sync.Once

	triedWebRTC       bool
	triedWebTransport bool
}

// New builds a Machine in StateInit. Call Start once the client's Init
// message has been decoded.
func New(host gamestream.Client, factory TransportFactory, reporter Reporter, iceServers []ipc.ICEServerInfo) *Machine {
	return &Machine{
		state:      StateInit,
		host:       host,
		factory:    factory,
		reporter:   reporter,
		iceServers: iceServers,
		events:     make(chan event, 32),
		done:       make(chan struct{}),
	}
}

// State reports the machine's current lifecycle phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the minted session token, valid once Preparing completes.
func (m *Machine) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Done returns a channel closed once the machine reaches StateClosed, so a
// caller (the streamer process's main loop) can wait for teardown to finish
// before exiting.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// MetricsSnapshot reports the forwarding pipeline's counters, valid once
// Streaming has started; zero-valued before that.
func (m *Machine) MetricsSnapshot() pipeline.Snapshot {
	m.mu.Lock()
	metrics := m.metrics
	m.mu.Unlock()
	if metrics == nil {
		return pipeline.Snapshot{}
	}
	return metrics.Snapshot()
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Start leaves Init and runs the machine on its own goroutine.
func (m *Machine) Start(cfg ipc.InitPayload) {
	m.mu.Lock()
	if m.state != StateInit {
		m.mu.Unlock()
		return
	}
	m.cfg = cfg
	m.state = StatePreparing
	m.mu.Unlock()
	go m.run()
}

// HandleClientMessage feeds one decoded signaling frame from the browser
// client into the machine. Safe from any goroutine.
func (m *Machine) HandleClientMessage(msg wire.ClientMessage) {
	m.post(clientEvent{msg: msg})
}

// HandleHostError reports a GameStream-layer failure interrupting stage.
func (m *Machine) HandleHostError(stage StageName, code ErrorCode) {
	m.post(hostErrorEvent{stage: stage, code: code})
}

// Close requests teardown, e.g. because the signaling socket closed.
func (m *Machine) Close(reason string) {
	m.post(closeEvent{reason: reason})
}

func (m *Machine) post(e event) {
	select {
	case m.events <- e:
	case <-m.done:
	}
}

func (m *Machine) run() {
	defer m.teardown()

	m.reporter.StageStarting(StageConnectToHost)
	if err := m.host.Pair(m.cfg.HostID); err != nil {
		m.fail(StageConnectToHost, ErrHostUnreachable)
		return
	}
	app, err := m.host.LaunchApp(m.cfg.AppID)
	if err != nil {
		m.fail(StageConnectToHost, ErrAppNotFound)
		return
	}
	m.reporter.StageComplete(StageConnectToHost)
	if appJSON, err := json.Marshal(app); err == nil {
		m.reporter.UpdateApp(appJSON)
	}

	token, err := newToken()
	if err != nil {
		m.fail(StageLaunchStreamer, ErrTokenTableFull)
		return
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	if err := m.negotiateTransport(token); err != nil {
		return // negotiateTransport already reported StageFailed
	}

	m.reporter.StageComplete(StageConnectTransport)

	if err := m.startStreaming(); err != nil {
		m.fail(StageStartStream, ErrDecoderFailure)
		return
	}

	m.eventLoop()
}

// negotiateTransport runs the Preparing -> Awaiting-transport steps: it
// advertises Setup, picks an initial transport kind, and falls back to the
// other implementation once if the client's policy is auto.
func (m *Machine) negotiateTransport(token string) error {
	kind := m.initialTransportKind()
	offer, offerErr := m.fetchOffer(kind, token)

	setup := SetupInfo{ICEServers: m.iceServers, SessionToken: token}
	if offerErr == nil && kind == wire.TransportWebTransport {
		setup.WebTransportURL = offer.URL
		setup.CertHash = offer.CertHash
		if m.cfg.HybridMode {
			setup.InputWebTransportURL = offer.InputURL
		}
	}
	m.reporter.Setup(setup)

	m.setState(StateAwaitingTransport)
	m.reporter.StageStarting(StageConnectTransport)

	usedKind, usedOffer := kind, offer
	tr, err := m.connectTransport(kind, offer, offerErr)
	if err != nil && m.cfg.PreferredTransport == wire.TransportAuto && !(m.triedWebRTC && m.triedWebTransport) {
		other := otherTransportKind(kind)
		log.Info("retrying other transport after failure", "failed", kind, "retry", other, "token", token)
		otherOffer, otherErr := m.fetchOffer(other, token)
		usedKind, usedOffer = other, otherOffer
		tr, err = m.connectTransport(other, otherOffer, otherErr)
	}
	if err != nil {
		m.fail(StageConnectTransport, classifyTransportError(kind, err))
		return err
	}

	m.tr = tr

	if usedKind == wire.TransportWebTransport && m.cfg.HybridMode {
		inputTr, err := m.awaitInputTransport(usedOffer)
		if err != nil {
			log.Warn("hybrid input transport not established, input channels will ride the main transport", "token", token, "error", err)
		} else {
			m.inputTr = inputTr
		}
	}

	return nil
}

// awaitInputTransport waits for the client's hybrid-mode "/input" session to
// attach, bounded by the same handshake window as the main transport.
func (m *Machine) awaitInputTransport(offer WebTransportOffer) (transport.Transport, error) {
	if offer.InputAttach == nil {
		return nil, fmt.Errorf("session: input webtransport was not offered")
	}
	deadline := time.After(wtHandshakeWait)
	select {
	case tr, ok := <-offer.InputAttach:
		if !ok {
			return nil, fmt.Errorf("session: input webtransport listener closed before client attached")
		}
		return tr, nil
	case <-deadline:
		return nil, fmt.Errorf("session: input webtransport handshake timed out")
	case <-m.done:
		return nil, fmt.Errorf("session: closing")
	}
}

// fetchOffer starts the WebTransport listener when kind calls for it; other
// kinds need no offer.
func (m *Machine) fetchOffer(kind, token string) (WebTransportOffer, error) {
	if kind != wire.TransportWebTransport {
		return WebTransportOffer{}, nil
	}
	return m.factory.StartWebTransport(token)
}

func (m *Machine) initialTransportKind() string {
	switch m.cfg.PreferredTransport {
	case wire.TransportWebRTC:
		return wire.TransportWebRTC
	case wire.TransportWebTransport:
		return wire.TransportWebTransport
	default:
		return wire.TransportWebTransport
	}
}

func otherTransportKind(kind string) string {
	if kind == wire.TransportWebRTC {
		return wire.TransportWebTransport
	}
	return wire.TransportWebRTC
}

func classifyTransportError(kind string, _ error) ErrorCode {
	if kind == wire.TransportWebTransport {
		return ErrWebTransportHandshake
	}
	return ErrICEGatherTimeout
}

func (m *Machine) connectTransport(kind string, wtOffer WebTransportOffer, offerErr error) (transport.Transport, error) {
	switch kind {
	case wire.TransportWebTransport:
		m.triedWebTransport = true
		if offerErr != nil {
			return nil, offerErr
		}
		return m.awaitWebTransport(wtOffer)
	default:
		m.triedWebRTC = true
		return m.awaitWebRTC()
	}
}

func (m *Machine) awaitWebTransport(offer WebTransportOffer) (transport.Transport, error) {
	if offer.Attach == nil {
		return nil, fmt.Errorf("session: webtransport was not offered")
	}
	deadline := time.After(wtHandshakeWait)
	select {
	case tr, ok := <-offer.Attach:
		if !ok {
			return nil, fmt.Errorf("session: webtransport listener closed before client attached")
		}
		if err := m.awaitConnected(tr, connectTimeout); err != nil {
			tr.Close()
			return nil, err
		}
		return tr, nil
	case <-deadline:
		return nil, fmt.Errorf("session: webtransport handshake timed out")
	case <-m.done:
		return nil, fmt.Errorf("session: closing")
	}
}

func (m *Machine) awaitWebRTC() (transport.Transport, error) {
	deadline := time.After(webrtcOfferWait)
	for {
		select {
		case e := <-m.events:
			if ce, ok := e.(clientEvent); ok {
				if desc, ok := ce.msg.(wire.WebRtcDescriptionMessage); ok && desc.SDPType == "offer" {
					tr, answer, err := m.factory.NewWebRTC(m.iceServers, desc.SDP)
					if err != nil {
						return nil, err
					}
					m.reporter.Signaling(wire.WebRtcDescriptionMessage{SDPType: "answer", SDP: answer})
					if err := m.awaitConnected(tr, connectTimeout); err != nil {
						tr.Close()
						return nil, err
					}
					return tr, nil
				}
			}
			if he, ok := e.(hostErrorEvent); ok {
				return nil, fmt.Errorf("session: host error while awaiting webrtc offer: %s", he.code)
			}
			if _, ok := e.(closeEvent); ok {
				return nil, fmt.Errorf("session: closing")
			}
		case <-deadline:
			return nil, fmt.Errorf("session: webrtc offer timed out")
		case <-m.done:
			return nil, fmt.Errorf("session: closing")
		}
	}
}

// awaitConnected drains both the transport's own events (for Connected) and
// the machine's inbound queue (for trickled ICE candidates, which must keep
// flowing to the transport while it is still gathering/negotiating).
func (m *Machine) awaitConnected(tr transport.Transport, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-tr.Events():
			if !ok {
				return fmt.Errorf("session: transport closed before connecting")
			}
			switch ev.Kind {
			case transport.KindConnected:
				return nil
			case transport.KindDisconnected, transport.KindStreamClosed:
				return fmt.Errorf("session: transport failed before connecting")
			}
		case e := <-m.events:
			if ce, ok := e.(clientEvent); ok {
				if ice, ok := ce.msg.(wire.WebRtcIceCandidateMessage); ok {
					if err := m.factory.AddICECandidate(tr, ice.Candidate); err != nil {
						log.Warn("add ice candidate failed", "error", err)
					}
				}
			}
			if _, ok := e.(closeEvent); ok {
				return fmt.Errorf("session: closing")
			}
		case <-deadline:
			return fmt.Errorf("session: connect timed out")
		case <-m.done:
			return fmt.Errorf("session: closing")
		}
	}
}

type hostInputSink struct {
	host gamestream.Client
}

func (h hostInputSink) SendInput(id channel.ID, payload []byte) error {
	return h.host.SendInput(id, payload)
}

func (m *Machine) startStreaming() error {
	videoCfg := transport.VideoConfig{
		Format: chooseVideoFormat(m.cfg.VideoSupportedFormats),
		Width:  m.cfg.Width,
		Height: m.cfg.Height,
		FPS:    m.cfg.FPS,
	}
	if err := m.tr.SetupVideo(videoCfg); err != nil {
		return err
	}
	audioCfg := transport.AudioConfig{SampleRate: 48000, Channels: 2}
	if err := m.tr.SetupAudio(audioCfg); err != nil {
		return err
	}

	m.metrics = pipeline.NewStreamMetrics()
	m.videoFwd = pipeline.NewVideoForwarder(m.tr, m.metrics)
	m.audioFwd = pipeline.NewAudioForwarder(m.tr, m.metrics, m.cfg.AudioSampleQueueSize)
	m.demux = pipeline.NewInputDemux(hostInputSink{host: m.host})
	m.cbPool = workerpool.New(callbackWorkers, 256)

	maxBitrate := m.cfg.Bitrate * 1000
	minBitrate := minAdaptiveBitrateKbps * 1000
	if minBitrate >= maxBitrate {
		minBitrate = maxBitrate / 2
	}
	m.adaptive = pipeline.NewAdaptiveBitrate(pipeline.AdaptiveConfig{
		InitialBitrate: maxBitrate,
		MinBitrate:     minBitrate,
		MaxBitrate:     maxBitrate,
		OnBitrateChange: func(kbps int) {
			if err := m.host.SetBitrate(kbps); err != nil {
				log.Warn("adaptive bitrate change rejected by host", "kbps", kbps, "error", err)
			}
		},
	})

	m.host.RegisterDecodeCallback(func(ts uint32, unit []byte) {
		m.cbPool.Submit(func() {
			m.videoFwd.Enqueue(pipeline.DecodeUnit{Timestamp: ts, Data: unit})
		})
	})
	m.host.RegisterAudioCallback(func(sample []byte) {
		m.cbPool.Submit(func() {
			m.audioFwd.Enqueue(sample)
		})
	})

	go m.drainTransportEvents()
	if m.inputTr != nil {
		go m.drainInputTransportEvents()
	}

	m.setState(StateStreaming)
	m.reporter.ConnectionComplete(ConnectionInfo{
		Format: videoCfg.Format,
		Width:  videoCfg.Width,
		Height: videoCfg.Height,
		FPS:    videoCfg.FPS,
	})
	return nil
}

// drainTransportEvents runs for the lifetime of the Streaming state,
// routing inbound data-channel packets to the input demux and keyframe
// requests to the host, and reporting a lost transport.
func (m *Machine) drainTransportEvents() {
	for ev := range m.tr.Events() {
		switch ev.Kind {
		case transport.KindInboundPacket:
			if ev.ChannelID == channel.Stats {
				m.handleStats(ev.Payload)
				continue
			}
			m.demux.Dispatch(pipeline.InputPacket{Channel: ev.ChannelID, Payload: ev.Payload})
		case transport.KindNeedsIDR:
			if err := m.host.RequestIDR(); err != nil {
				log.Warn("request idr failed", "error", err)
			}
		case transport.KindDisconnected, transport.KindStreamClosed:
			m.post(transportFailedEvent{reason: ev.CloseReason})
			return
		}
	}
}

// drainInputTransportEvents routes inbound packets from the hybrid-mode
// input transport the same way drainTransportEvents does for the main one;
// it carries no video/audio, so a lost input transport is logged but does
// not tear down a session whose main transport is still healthy.
func (m *Machine) drainInputTransportEvents() {
	for ev := range m.inputTr.Events() {
		switch ev.Kind {
		case transport.KindInboundPacket:
			m.demux.Dispatch(pipeline.InputPacket{Channel: ev.ChannelID, Payload: ev.Payload})
		case transport.KindDisconnected, transport.KindStreamClosed:
			log.Warn("hybrid input transport lost", "token", m.Token(), "reason", ev.CloseReason)
			return
		}
	}
}

// handleStats decodes one client-reported STATS channel frame and, for an
// RTT sample, feeds it into the adaptive bitrate controller alongside the
// forwarding pipeline's own drop-rate as a loss proxy.
func (m *Machine) handleStats(payload []byte) {
	kind, rtt, _, err := wire.DecodeStatsPayload(payload)
	if err != nil {
		log.Warn("decode stats payload failed", "error", err)
		return
	}
	if kind != wire.StatsKindRTT || rtt == nil || m.adaptive == nil {
		return
	}
	m.adaptive.Update(time.Duration(rtt.RTTMs*float64(time.Millisecond)), m.metrics.LossFraction())
}

func (m *Machine) eventLoop() {
	for {
		select {
		case e := <-m.events:
			switch ev := e.(type) {
			case closeEvent:
				return
			case transportFailedEvent:
				m.reporter.ConnectionTerminated(ErrTransportClosed)
				return
			case hostErrorEvent:
				m.reporter.ConnectionTerminated(ev.code)
				return
			case clientEvent:
				// Late signaling frames after Streaming (e.g. a trailing ICE
				// candidate) carry no action once the transport is live.
			}
		case <-m.done:
			return
		}
	}
}

func (m *Machine) fail(stage StageName, code ErrorCode) {
	m.setState(StateClosing)
	m.reporter.StageFailed(stage, code)
}

func (m *Machine) teardown() {
	m.setState(StateClosing)
	if m.tr != nil {
		m.tr.Close()
	}
	if m.inputTr != nil {
		m.inputTr.Close()
	}
	if m.cbPool != nil {
		m.cbPool.StopAccepting()
		ctx, cancel := context.WithTimeout(context.Background(), callbackDrainWait)
		m.cbPool.Drain(ctx)
		cancel()
	}
	if m.videoFwd != nil {
		m.videoFwd.Close()
	}
	if m.audioFwd != nil {
		m.audioFwd.Close()
	}
	m.setState(StateClosed)
	m.once.Do(func() { close(m.done) })
}

func chooseVideoFormat(mask int) transport.VideoFormat {
	switch {
	case mask&wire.VideoFormatH264 != 0:
		return transport.VideoFormat(wire.VideoFormatH264)
	case mask&wire.VideoFormatHEVC != 0:
		return transport.VideoFormat(wire.VideoFormatHEVC)
	case mask&wire.VideoFormatAV1 != 0:
		return transport.VideoFormat(wire.VideoFormatAV1)
	default:
		return transport.VideoFormat(wire.VideoFormatH264)
	}
}
