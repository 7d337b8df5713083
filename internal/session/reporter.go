package session

import (
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/transport"
	"github.com/breeze-rmm/streamgate/internal/wire"
)

// Reporter is the streamer's IPC-facing collaborator: everything the state
// machine needs to tell the supervisor (and, through it, the browser
// client). Implemented by an adapter wrapping an *ipc.Conn; a fake in tests.
type Reporter interface {
	StageStarting(stage StageName)
	StageComplete(stage StageName)
	StageFailed(stage StageName, code ErrorCode)
	Setup(info SetupInfo)
	UpdateApp(app []byte)
	Signaling(msg wire.ServerMessage)
	ConnectionComplete(info ConnectionInfo)
	ConnectionTerminated(code ErrorCode)
}

// SetupInfo mirrors ipc.SetupPayload in the machine's vocabulary.
type SetupInfo struct {
	ICEServers      []ipc.ICEServerInfo
	SessionToken    string
	WebTransportURL string
	CertHash        string

	// InputWebTransportURL is set alongside WebTransportURL when the
	// client requested hybrid mode: the client opens a second session
	// here for input channels, correlated by SessionToken.
	InputWebTransportURL string
}

// ConnectionInfo mirrors ipc.ConnectionCompletePayload.
type ConnectionInfo struct {
	Format       transport.VideoFormat
	Width        int
	Height       int
	FPS          int
	Capabilities []string
}
