package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/breeze-rmm/streamgate/internal/audit"
	"github.com/breeze-rmm/streamgate/internal/config"
	"github.com/breeze-rmm/streamgate/internal/health"
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/signaling"
	"github.com/breeze-rmm/streamgate/internal/supervisor"
	"github.com/breeze-rmm/streamgate/internal/wire"
	"github.com/breeze-rmm/streamgate/internal/workerpool"
)

// Gateway owns the supervisor and the registry of signaling connections it
// relays streamer traffic into. One Gateway per web server process.
type Gateway struct {
	sv         *supervisor.Supervisor
	audit      *audit.Logger
	health     *health.Monitor
	relayPool  *workerpool.Pool
	stopRefresh chan struct{}

	iceMu      sync.RWMutex
	iceServers []ipc.ICEServerInfo

	mu    sync.RWMutex
	conns map[string]*signaling.Conn // session token -> signaling connection
}

// NewGateway builds a Gateway and its underlying Supervisor from loaded
// configuration.
func NewGateway(cfg *config.Config) *Gateway {
	g := &Gateway{
		iceServers:  iceServerInfos(cfg.ICEServers),
		conns:       make(map[string]*signaling.Conn),
		health:      health.NewMonitor(),
		relayPool:   workerpool.New(maxInt(cfg.WorkerPoolSize, 1), maxInt(cfg.SignalQueueSize, 1)),
		stopRefresh: make(chan struct{}),
	}

	if cfg.AuditEnabled {
		l, err := audit.NewLogger(cfg)
		if err != nil {
			log.Warn("audit logger unavailable, continuing without it", "error", err)
		} else {
			g.audit = l
		}
	}

	g.sv = supervisor.New(supervisor.Config{
		StreamerPath:            cfg.StreamerPath,
		StreamerIdleTimeout:     cfg.StreamerIdleTimeout(),
		MaxConcurrentStreams:    cfg.MaxConcurrentStreams,
		SignalRateLimitAttempts: cfg.SignalRateLimitAttempts,
		SignalRateLimitWindow:   durationMs(cfg.SignalRateLimitWindowMs),
		WebRTCPortMin:           cfg.WebRTCPortMin,
		WebRTCPortMax:           cfg.WebRTCPortMax,
		AdvertiseHost:           advertiseHost(cfg.ListenAddr),
		WebTransportCertFile:    cfg.WebTransportCertFile,
		WebTransportKeyFile:     cfg.WebTransportKeyFile,
	}, g.onStreamerMessage)

	g.audit.Log(audit.EventProcessStart, "", nil)
	g.health.Update("supervisor", health.Healthy, "")

	if cfg.ICEServersURL != "" {
		go g.refreshICEServersLoop(cfg.ICEServersURL, time.Duration(cfg.ICEServersRefreshMinutes)*time.Minute)
	}

	return g
}

// Handler returns the http.Handler for the signaling upgrade endpoint.
func (g *Gateway) Handler(queueSize int) http.Handler {
	return signaling.NewHandler(nil, queueSize, g.handleSignaling)
}

// HealthSummary reports the gateway's aggregate health for a liveness probe.
func (g *Gateway) HealthSummary() map[string]any {
	return g.health.Summary()
}

// Close shuts down every active streamer and background work.
func (g *Gateway) Close() {
	close(g.stopRefresh)
	g.sv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g.relayPool.StopAccepting()
	g.relayPool.Drain(ctx)

	g.audit.Log(audit.EventProcessStop, "", nil)
	g.audit.Close()
}

// refreshICEServersLoop periodically replaces the advertised ICE server set
// from an operator-configured endpoint; a failed fetch just keeps serving
// the last known-good list.
func (g *Gateway) refreshICEServersLoop(url string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopRefresh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			servers, err := config.FetchICEServers(ctx, client, url)
			cancel()
			if err != nil {
				log.Warn("ice server refresh failed, keeping previous list", "error", err)
				g.health.Update("ice-refresh", health.Degraded, err.Error())
				continue
			}
			g.iceMu.Lock()
			g.iceServers = iceServerInfos(servers)
			g.iceMu.Unlock()
			g.health.Update("ice-refresh", health.Healthy, "")
		}
	}
}

func iceServerInfos(servers []config.ICEServer) []ipc.ICEServerInfo {
	out := make([]ipc.ICEServerInfo, 0, len(servers))
	for _, s := range servers {
		out = append(out, ipc.ICEServerInfo{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}

func (g *Gateway) currentICEServers() []ipc.ICEServerInfo {
	g.iceMu.RLock()
	defer g.iceMu.RUnlock()
	return g.iceServers
}

func (g *Gateway) handleSignaling(conn *signaling.Conn, r *http.Request) {
	if !g.sv.AllowSignalAttempt(r.RemoteAddr) {
		log.Warn("signaling attempt rate limited", "remote", r.RemoteAddr)
		conn.Close()
		return
	}

	var token string
	conn.ReadLoop(func(msg wire.ClientMessage) {
		init, ok := msg.(wire.InitMessage)
		if !ok {
			if token != "" {
				g.relayPool.Submit(func() { g.relayToStreamer(token, msg) })
			}
			return
		}
		if token != "" {
			return // a session is already running on this connection
		}
		t, err := g.spawnSession(conn, init)
		if err != nil {
			log.Warn("failed to spawn session", "error", err, "hostId", init.HostID, "appId", init.AppID)
			g.audit.Log(audit.EventSessionError, "", map[string]any{"error": err.Error(), "hostId": init.HostID})
			conn.Close()
			return
		}
		token = t
	})

	if token != "" {
		g.forgetToken(token)
		if s := g.sv.SessionForToken(token); s != nil {
			s.Close()
			g.sv.Remove(token)
		}
		g.audit.Log(audit.EventSessionClosed, token, nil)
	}
}

func (g *Gateway) spawnSession(conn *signaling.Conn, m wire.InitMessage) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	init := ipc.InitPayload{
		HostID:                m.HostID,
		AppID:                 m.AppID,
		Bitrate:               m.Bitrate,
		PacketSize:            m.PacketSize,
		FPS:                   m.FPS,
		Width:                 m.Width,
		Height:                m.Height,
		VideoFrameQueueSize:   m.VideoFrameQueueSize,
		PlayAudioLocal:        m.PlayAudioLocal,
		AudioSampleQueueSize:  m.AudioSampleQueueSize,
		VideoSupportedFormats: m.VideoSupportedFormats,
		VideoColorspace:       m.VideoColorspace,
		VideoColorRangeFull:   m.VideoColorRangeFull,
		HybridMode:            m.HybridMode,
		PreferredTransport:    m.PreferredTransport,
		ICEServers:            g.currentICEServers(),
	}

	if _, err := g.sv.Spawn(token, init); err != nil {
		return "", err
	}

	g.mu.Lock()
	g.conns[token] = conn
	g.mu.Unlock()

	g.audit.Log(audit.EventSessionCreated, token, map[string]any{"hostId": m.HostID, "appId": m.AppID})
	g.audit.Log(audit.EventStreamerSpawned, token, nil)
	g.health.Update("streamer:"+token, health.Healthy, "spawned")
	return token, nil
}

func (g *Gateway) relayToStreamer(token string, msg wire.ClientMessage) {
	s := g.sv.SessionForToken(token)
	if s == nil {
		return
	}
	body, err := wire.EncodeClientMessage(msg)
	if err != nil {
		log.Warn("failed to encode client message for relay", "error", err)
		return
	}
	if err := s.Notify("", ipc.TypeSignaling, ipc.SignalingPayload{Body: body}); err != nil {
		log.Warn("failed to relay client message to streamer", "error", err, "token", token)
	}
}

func (g *Gateway) connForToken(token string) *signaling.Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conns[token]
}

func (g *Gateway) forgetToken(token string) {
	g.mu.Lock()
	delete(g.conns, token)
	g.mu.Unlock()
}

// onStreamerMessage translates one unsolicited IPC envelope from a streamer
// into the corresponding client-facing signaling frame, or — for
// Signaling — forwards the already-tagged body unmodified.
func (g *Gateway) onStreamerMessage(s *supervisor.Streamer, env *ipc.Envelope) {
	conn := g.connForToken(s.SessionToken)
	if conn == nil {
		return
	}

	switch env.Type {
	case ipc.TypeSignaling:
		payload, err := supervisor.UnmarshalPayload[ipc.SignalingPayload](env)
		if err != nil {
			log.Warn("malformed signaling envelope from streamer", "error", err)
			return
		}
		_ = conn.SendRaw(payload.Body)

	case ipc.TypeStageStarting:
		payload, err := supervisor.UnmarshalPayload[ipc.StagePayload](env)
		if err == nil {
			_ = conn.Send(wire.StageStartingMessage{Stage: payload.Stage})
			g.audit.Log(audit.EventSessionStage, s.SessionToken, map[string]any{"stage": payload.Stage, "status": "starting"})
		}

	case ipc.TypeStageComplete:
		payload, err := supervisor.UnmarshalPayload[ipc.StagePayload](env)
		if err == nil {
			_ = conn.Send(wire.StageCompleteMessage{Stage: payload.Stage})
			g.audit.Log(audit.EventSessionStage, s.SessionToken, map[string]any{"stage": payload.Stage, "status": "complete"})
		}

	case ipc.TypeStageFailed:
		payload, err := supervisor.UnmarshalPayload[ipc.StagePayload](env)
		if err == nil {
			_ = conn.Send(wire.StageFailedMessage{Stage: payload.Stage, ErrorCode: payload.ErrorCode})
			g.audit.Log(audit.EventSessionError, s.SessionToken, map[string]any{"stage": payload.Stage, "errorCode": payload.ErrorCode})
			g.health.Update("streamer:"+s.SessionToken, health.Unhealthy, payload.Stage)
		}

	case ipc.TypeSetup:
		payload, err := supervisor.UnmarshalPayload[ipc.SetupPayload](env)
		if err == nil {
			ice := make([]wire.ICEServer, len(payload.ICEServers))
			for i, svr := range payload.ICEServers {
				ice[i] = wire.ICEServer{URLs: svr.URLs, Username: svr.Username, Credential: svr.Credential}
			}
			_ = conn.Send(wire.SetupMessage{
				ICEServers:           ice,
				SessionToken:         payload.SessionToken,
				WebTransportURL:      payload.WebTransportURL,
				CertHash:             payload.CertHash,
				InputWebTransportURL: payload.InputWebTransportURL,
			})
		}

	case ipc.TypeUpdateApp:
		payload, err := supervisor.UnmarshalPayload[ipc.UpdateAppPayload](env)
		if err == nil {
			_ = conn.Send(wire.UpdateAppMessage{App: payload.App})
		}

	case ipc.TypeConnectionComplete:
		payload, err := supervisor.UnmarshalPayload[ipc.ConnectionCompletePayload](env)
		if err == nil {
			_ = conn.Send(wire.ConnectionCompleteMessage{
				Format:       payload.Format,
				Width:        payload.Width,
				Height:       payload.Height,
				FPS:          payload.FPS,
				Capabilities: payload.Capabilities,
			})
			g.audit.Log(audit.EventTransportSelected, s.SessionToken, map[string]any{"format": payload.Format})
			g.health.Update("streamer:"+s.SessionToken, health.Healthy, "streaming")
		}

	case ipc.TypeConnectionTerminated:
		payload, err := supervisor.UnmarshalPayload[ipc.ConnectionTerminatedPayload](env)
		if err == nil {
			_ = conn.Send(wire.ConnectionTerminatedMessage{ErrorCode: payload.ErrorCode})
			g.audit.Log(audit.EventStreamerExited, s.SessionToken, map[string]any{"errorCode": payload.ErrorCode})
		}
		g.forgetToken(s.SessionToken)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
