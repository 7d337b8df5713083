// Package supervisor spawns and tracks the per-session streamer subprocess:
// one streamer per active session, communicating with the web server over a
// length-framed IPC channel on inherited stdio pipes.
package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/logging"
)

var log = logging.L("supervisor")

const (
	// launchGrace is how long a freshly spawned streamer has to report
	// StageStarting("Launch Streamer") before it is killed.
	launchGrace = 30 * time.Second

	// shutdownGrace is how long Close waits for a clean exit after sending
	// Shutdown before killing the process.
	shutdownGrace = 5 * time.Second

	// idleCheckInterval is how often the reaper scans for idle streamers.
	idleCheckInterval = 60 * time.Second
)

// MessageHandler is called for every envelope from a streamer that isn't a
// response to a pending SendCommand.
type MessageHandler func(s *Streamer, env *ipc.Envelope)

// Supervisor owns the token -> streamer registry and the signaling rate
// limiter. One Supervisor runs per web server process.
type Supervisor struct {
	streamerPath string
	idleTimeout  time.Duration
	maxConcurrent int

	rateLimiter *ipc.RateLimiter

	bootstrapEnv Config

	mu       sync.RWMutex
	sessions map[string]*Streamer // session token -> Streamer
	closed   bool

	onMessage MessageHandler

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Config bundles the supervisor's tunables, mirroring the relevant fields of
// the gateway's loaded configuration.
type Config struct {
	StreamerPath            string
	StreamerIdleTimeout     time.Duration
	MaxConcurrentStreams    int
	SignalRateLimitAttempts int
	SignalRateLimitWindow   time.Duration

	// Forwarded to every spawned streamer as bootstrap environment
	// variables (see spawn.go), since the child has no other channel to
	// learn them before it can open the IPC connection.
	WebRTCPortMin        uint16
	WebRTCPortMax        uint16
	AdvertiseHost        string
	WebTransportCertFile string
	WebTransportKeyFile  string
}

// New creates a Supervisor. onMessage is invoked (from the streamer's own
// goroutine) for every unsolicited envelope a streamer sends.
func New(cfg Config, onMessage MessageHandler) *Supervisor {
	sv := &Supervisor{
		streamerPath:  cfg.StreamerPath,
		idleTimeout:   cfg.StreamerIdleTimeout,
		maxConcurrent: cfg.MaxConcurrentStreams,
		rateLimiter:   ipc.NewRateLimiter(cfg.SignalRateLimitAttempts, cfg.SignalRateLimitWindow),
		sessions:      make(map[string]*Streamer),
		onMessage:     onMessage,
		stopCh:        make(chan struct{}),
		bootstrapEnv:  cfg,
	}
	go sv.idleReaper()
	return sv
}

// AllowSignalAttempt applies the signaling endpoint's rate limit to a remote
// identity (typically the client's IP address).
func (sv *Supervisor) AllowSignalAttempt(remote string) bool {
	return sv.rateLimiter.Allow(remote)
}

// Spawn launches a streamer for the given session token and sends it the
// Init message. It blocks until the streamer reports StageStarting or the
// launch grace period elapses.
func (sv *Supervisor) Spawn(token string, init ipc.InitPayload) (*Streamer, error) {
	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		return nil, ErrSupervisorClosed
	}
	if len(sv.sessions) >= sv.maxConcurrent {
		sv.mu.Unlock()
		return nil, ErrMaxConcurrent
	}
	sv.mu.Unlock()

	streamer, err := sv.launchStreamer(token)
	if err != nil {
		return nil, err
	}
	streamer.HostID = init.HostID
	streamer.AppID = init.AppID

	started := make(chan *ipc.Envelope, 1)
	go streamer.RecvLoop(func(s *Streamer, env *ipc.Envelope) {
		select {
		case started <- env:
		default:
		}
		if sv.onMessage != nil {
			sv.onMessage(s, env)
		}
	})

	if err := streamer.Notify(token, ipc.TypeInit, init); err != nil {
		streamer.Close()
		return nil, fmt.Errorf("supervisor: send init: %w", err)
	}

	select {
	case env := <-started:
		if env.Type != ipc.TypeStageStarting {
			// Any message at all counts as life signal even if the exact
			// first frame raced with a fast StageComplete; only a total
			// silence for launchGrace is treated as a launch failure.
			break
		}
	case <-time.After(launchGrace):
		streamer.Close()
		return nil, ErrLaunchTimeout
	}

	sv.mu.Lock()
	sv.sessions[token] = streamer
	sv.mu.Unlock()

	log.Info("streamer spawned", "token", token, "hostId", init.HostID, "appId", init.AppID)
	return streamer, nil
}

// SessionForToken returns the streamer attached to a session token, if any.
func (sv *Supervisor) SessionForToken(token string) *Streamer {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return sv.sessions[token]
}

// AllSessions returns a summary of every active streamer.
func (sv *Supervisor) AllSessions() []Info {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	infos := make([]Info, 0, len(sv.sessions))
	for _, s := range sv.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// SessionCount returns the number of active streamers.
func (sv *Supervisor) SessionCount() int {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return len(sv.sessions)
}

// Remove detaches a session token from the registry. Called once a
// streamer's RecvLoop returns (connection closed) or Close has run.
func (sv *Supervisor) Remove(token string) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	delete(sv.sessions, token)
}

// Close shuts down every tracked streamer and stops the idle reaper.
func (sv *Supervisor) Close() {
	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		return
	}
	sv.closed = true
	streamers := make([]*Streamer, 0, len(sv.sessions))
	for _, s := range sv.sessions {
		streamers = append(streamers, s)
	}
	sv.mu.Unlock()

	sv.stopOnce.Do(func() { close(sv.stopCh) })

	for _, s := range streamers {
		s.Close()
	}
	log.Info("supervisor closed")
}

func (sv *Supervisor) idleReaper() {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sv.reapIdle()
		case <-sv.stopCh:
			return
		}
	}
}

func (sv *Supervisor) reapIdle() {
	if sv.idleTimeout <= 0 {
		return
	}
	sv.mu.RLock()
	var stale []*Streamer
	for _, s := range sv.sessions {
		if s.IdleDuration() > sv.idleTimeout {
			stale = append(stale, s)
		}
	}
	sv.mu.RUnlock()

	for _, s := range stale {
		log.Info("closing idle streamer", "token", s.SessionToken, "idle", s.IdleDuration())
		s.Close()
		sv.Remove(s.SessionToken)
	}
}
