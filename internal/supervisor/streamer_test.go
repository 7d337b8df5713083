package supervisor

import (
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/breeze-rmm/streamgate/internal/ipc"
)

func newTestStreamerPair(t *testing.T) (*Streamer, *ipc.Conn) {
	t.Helper()
	a, b := net.Pipe()
	s := newStreamer("tok-1", &exec.Cmd{}, ipc.NewConn(a))
	return s, ipc.NewConn(b)
}

func TestStreamerSendCommandMatchesResponse(t *testing.T) {
	s, peer := newTestStreamerPair(t)
	go s.RecvLoop(func(*Streamer, *ipc.Envelope) {})

	done := make(chan struct{})
	go func() {
		defer close(done)
		env, err := peer.Recv()
		if err != nil {
			t.Errorf("peer recv: %v", err)
			return
		}
		_ = peer.SendTyped(env.ID, ipc.TypeStageComplete, ipc.StagePayload{Stage: "Launch Streamer"})
	}()

	resp, err := s.SendCommand("req-1", ipc.TypeStageStarting, ipc.StagePayload{Stage: "Launch Streamer"}, time.Second)
	<-done
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if resp.Type != ipc.TypeStageComplete {
		t.Fatalf("resp.Type = %q, want %q", resp.Type, ipc.TypeStageComplete)
	}
}

func TestStreamerSendCommandTimesOut(t *testing.T) {
	s, peer := newTestStreamerPair(t)
	go peer.Recv() // read the request so the pipe write completes, never answer
	_, err := s.SendCommand("req-1", ipc.TypeStageStarting, ipc.StagePayload{}, 10*time.Millisecond)
	if err != ErrCommandTimeout {
		t.Fatalf("err = %v, want ErrCommandTimeout", err)
	}
}

func TestStreamerHandleResponseUnmatchedReturnsFalse(t *testing.T) {
	s, _ := newTestStreamerPair(t)
	env := &ipc.Envelope{ID: "unknown", Type: ipc.TypeStatsUpdate}
	if s.HandleResponse(env) {
		t.Fatal("HandleResponse should return false for an ID with no pending command")
	}
}

func TestStreamerTouchAdvancesIdleDuration(t *testing.T) {
	s, _ := newTestStreamerPair(t)
	s.LastSeen = time.Now().Add(-time.Minute)
	if s.IdleDuration() < 30*time.Second {
		t.Fatal("expected IdleDuration to reflect backdated LastSeen")
	}
	s.touch()
	if s.IdleDuration() > time.Second {
		t.Fatal("touch should reset IdleDuration to ~0")
	}
}

func TestUnmarshalPayloadTyped(t *testing.T) {
	env := &ipc.Envelope{Payload: []byte(`{"error_code": 7}`)}
	got, err := UnmarshalPayload[ipc.ConnectionTerminatedPayload](env)
	if err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if got.ErrorCode != 7 {
		t.Fatalf("ErrorCode = %d, want 7", got.ErrorCode)
	}
}
