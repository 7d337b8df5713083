package supervisor

import (
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/breeze-rmm/streamgate/internal/ipc"
)

func testSupervisor() *Supervisor {
	return New(Config{
		StreamerPath:            "unused",
		StreamerIdleTimeout:     time.Hour,
		MaxConcurrentStreams:    4,
		SignalRateLimitAttempts: 2,
		SignalRateLimitWindow:   time.Minute,
	}, nil)
}

func TestSupervisorAllowSignalAttemptRateLimits(t *testing.T) {
	sv := testSupervisor()
	defer sv.Close()

	if !sv.AllowSignalAttempt("1.2.3.4") {
		t.Fatal("first attempt should be allowed")
	}
	if !sv.AllowSignalAttempt("1.2.3.4") {
		t.Fatal("second attempt should be allowed")
	}
	if sv.AllowSignalAttempt("1.2.3.4") {
		t.Fatal("third attempt should be rate limited")
	}
}

func TestSupervisorRegistryBookkeeping(t *testing.T) {
	sv := testSupervisor()
	defer sv.Close()

	a, _ := net.Pipe()
	s := newStreamer("tok-1", &exec.Cmd{}, ipc.NewConn(a))

	sv.mu.Lock()
	sv.sessions["tok-1"] = s
	sv.mu.Unlock()

	if sv.SessionCount() != 1 {
		t.Fatalf("SessionCount() = %d, want 1", sv.SessionCount())
	}
	if got := sv.SessionForToken("tok-1"); got != s {
		t.Fatal("SessionForToken did not return the registered streamer")
	}
	if len(sv.AllSessions()) != 1 {
		t.Fatal("AllSessions() should report one entry")
	}

	sv.Remove("tok-1")
	if sv.SessionCount() != 0 {
		t.Fatal("Remove should drop the session from the registry")
	}
	if sv.SessionForToken("tok-1") != nil {
		t.Fatal("SessionForToken should return nil after Remove")
	}
}

func TestSupervisorSpawnRejectsWhenClosed(t *testing.T) {
	sv := testSupervisor()
	sv.Close()

	_, err := sv.Spawn("tok-1", ipc.InitPayload{HostID: "h", AppID: "1"})
	if err != ErrSupervisorClosed {
		t.Fatalf("err = %v, want ErrSupervisorClosed", err)
	}
}

func TestSupervisorSpawnRejectsAtMaxConcurrent(t *testing.T) {
	sv := New(Config{
		StreamerPath:            "unused",
		StreamerIdleTimeout:     time.Hour,
		MaxConcurrentStreams:    0,
		SignalRateLimitAttempts: 10,
		SignalRateLimitWindow:   time.Minute,
	}, nil)
	defer sv.Close()

	_, err := sv.Spawn("tok-1", ipc.InitPayload{})
	if err != ErrMaxConcurrent {
		t.Fatalf("err = %v, want ErrMaxConcurrent", err)
	}
}
