package session

import (
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/wire"
)

// IPCReporter is the production Reporter: it translates every machine
// callback into an IPC envelope and writes it to the supervisor over the
// length-framed Conn. Send errors are logged rather than returned, since the
// caller is deep inside the machine's single goroutine and has no useful
// recovery beyond letting the next Recv failure tear the session down.
type IPCReporter struct {
	conn *ipc.Conn
}

// NewIPCReporter wraps an authenticated IPC connection.
func NewIPCReporter(conn *ipc.Conn) *IPCReporter {
	return &IPCReporter{conn: conn}
}

func (r *IPCReporter) send(msgType string, payload any) {
	if err := r.conn.SendTyped("", msgType, payload); err != nil {
		log.Warn("ipc reporter: send failed", "type", msgType, "error", err)
	}
}

func (r *IPCReporter) StageStarting(stage StageName) {
	r.send(ipc.TypeStageStarting, ipc.StagePayload{Stage: string(stage)})
}

func (r *IPCReporter) StageComplete(stage StageName) {
	r.send(ipc.TypeStageComplete, ipc.StagePayload{Stage: string(stage)})
}

func (r *IPCReporter) StageFailed(stage StageName, code ErrorCode) {
	r.send(ipc.TypeStageFailed, ipc.StagePayload{Stage: string(stage), ErrorCode: int(code)})
}

func (r *IPCReporter) Setup(info SetupInfo) {
	r.send(ipc.TypeSetup, ipc.SetupPayload{
		ICEServers:           info.ICEServers,
		SessionToken:         info.SessionToken,
		WebTransportURL:      info.WebTransportURL,
		CertHash:             info.CertHash,
		InputWebTransportURL: info.InputWebTransportURL,
	})
}

func (r *IPCReporter) UpdateApp(app []byte) {
	r.send(ipc.TypeUpdateApp, ipc.UpdateAppPayload{App: app})
}

// Signaling re-encodes a server -> client frame and forwards it inside a
// SignalingPayload for the supervisor to relay to the browser socket
// unmodified; the supervisor never decodes Body itself.
func (r *IPCReporter) Signaling(msg wire.ServerMessage) {
	body, err := wire.EncodeServerMessage(msg)
	if err != nil {
		log.Warn("ipc reporter: encode signaling message failed", "error", err)
		return
	}
	r.send(ipc.TypeSignaling, ipc.SignalingPayload{Body: body})
}

func (r *IPCReporter) ConnectionComplete(info ConnectionInfo) {
	r.send(ipc.TypeConnectionComplete, ipc.ConnectionCompletePayload{
		Format:       int(info.Format),
		Width:        info.Width,
		Height:       info.Height,
		FPS:          info.FPS,
		Capabilities: info.Capabilities,
	})
}

func (r *IPCReporter) ConnectionTerminated(code ErrorCode) {
	r.send(ipc.TypeConnectionTerminated, ipc.ConnectionTerminatedPayload{ErrorCode: int(code)})
}

var _ Reporter = (*IPCReporter)(nil)
