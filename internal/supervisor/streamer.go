package supervisor

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/breeze-rmm/streamgate/internal/ipc"
)

// Streamer is the supervisor's handle on one spawned streamer subprocess:
// the session token it was launched for, the length-framed IPC connection
// over its inherited stdio pipes, and the underlying process.
type Streamer struct {
	SessionToken string
	HostID       string
	AppID        string
	LaunchedAt   time.Time
	LastSeen     time.Time

	cmd  *exec.Cmd
	conn *ipc.Conn

	mu      sync.Mutex
	pending map[string]chan *ipc.Envelope
	stage   string
}

func newStreamer(token string, cmd *exec.Cmd, conn *ipc.Conn) *Streamer {
	return &Streamer{
		SessionToken: token,
		LaunchedAt:   time.Now(),
		LastSeen:     time.Now(),
		cmd:          cmd,
		conn:         conn,
		pending:      make(map[string]chan *ipc.Envelope),
	}
}

// SendCommand sends a request envelope to the streamer and waits for the
// correlated response (matched by envelope ID).
func (s *Streamer) SendCommand(id, msgType string, payload any, timeout time.Duration) (*ipc.Envelope, error) {
	ch := make(chan *ipc.Envelope, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.conn.SendTyped(id, msgType, payload); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, fmt.Errorf("supervisor: streamer closed while waiting for response")
		}
		return resp, nil
	case <-time.After(timeout):
		return nil, ErrCommandTimeout
	}
}

// Notify sends a fire-and-forget message (no response expected) — used for
// Init, Signaling and Shutdown.
func (s *Streamer) Notify(id, msgType string, payload any) error {
	return s.conn.SendTyped(id, msgType, payload)
}

// HandleResponse routes a received envelope to a pending command's channel.
// Returns true if the envelope was matched.
func (s *Streamer) HandleResponse(env *ipc.Envelope) bool {
	s.mu.Lock()
	ch, ok := s.pending[env.ID]
	s.mu.Unlock()

	if ok {
		select {
		case ch <- env:
		default:
			log.Warn("response channel full, dropping", "id", env.ID, "token", s.SessionToken)
		}
		return true
	}
	return false
}

func (s *Streamer) touch() {
	s.mu.Lock()
	s.LastSeen = time.Now()
	s.mu.Unlock()
}

// IdleDuration reports how long it has been since the streamer last sent
// anything.
func (s *Streamer) IdleDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastSeen)
}

// Stage returns the last reported stage name.
func (s *Streamer) Stage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Streamer) setStage(stage string) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

// Close sends Shutdown, waits briefly for exit, then kills. Calling it more
// than once is a no-op after the first call's cleanup has run.
func (s *Streamer) Close() error {
	s.mu.Lock()
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()

	_ = s.Notify("", ipc.TypeShutdown, ipc.ShutdownPayload{Reason: "session closing"})

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-done
	}

	return s.conn.Close()
}

// Info is a serializable summary of a streamer for status reporting.
type Info struct {
	SessionToken string    `json:"sessionToken"`
	HostID       string    `json:"hostId"`
	AppID        string    `json:"appId"`
	Stage        string    `json:"stage"`
	LaunchedAt   time.Time `json:"launchedAt"`
	LastSeen     time.Time `json:"lastSeen"`
}

func (s *Streamer) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		SessionToken: s.SessionToken,
		HostID:       s.HostID,
		AppID:        s.AppID,
		Stage:        s.stage,
		LaunchedAt:   s.LaunchedAt,
		LastSeen:     s.LastSeen,
	}
}

// RecvLoop reads envelopes from the streamer until the connection closes,
// dispatching anything that isn't a pending command's response to onMessage.
func (s *Streamer) RecvLoop(onMessage func(*Streamer, *ipc.Envelope)) {
	for {
		env, err := s.conn.Recv()
		if err != nil {
			log.Debug("streamer recv loop ended", "token", s.SessionToken, "error", err)
			return
		}
		s.touch()

		if env.Type == ipc.TypeStageStarting || env.Type == ipc.TypeStageComplete || env.Type == ipc.TypeStageFailed {
			var stage ipc.StagePayload
			if err := json.Unmarshal(env.Payload, &stage); err == nil {
				s.setStage(stage.Stage)
			}
		}

		if s.HandleResponse(env) {
			continue
		}
		onMessage(s, env)
	}
}

// UnmarshalPayload decodes an envelope's payload into a typed struct.
func UnmarshalPayload[T any](env *ipc.Envelope) (T, error) {
	var result T
	if err := json.Unmarshal(env.Payload, &result); err != nil {
		return result, err
	}
	return result, nil
}
