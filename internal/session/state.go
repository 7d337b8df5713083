// Package session implements the per-client session state machine: the
// single-goroutine actor that drives one stream from the client's Init
// message through transport negotiation, live streaming, and teardown. It
// owns the session's transport and forwarding pipeline exclusively; nothing
// else reaches into them.
package session

import "github.com/breeze-rmm/streamgate/internal/logging"

var log = logging.L("session")

// State is one of the session's lifecycle phases.
type State int

const (
	StateInit State = iota
	StatePreparing
	StateAwaitingTransport
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePreparing:
		return "preparing"
	case StateAwaitingTransport:
		return "awaiting_transport"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
