package supervisor

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/secmem"
)

// Environment variables a spawned streamer reads at startup, before it can
// reach the supervisor over IPC to ask for anything.
const (
	envWebRTCPortMin        = "STREAMGATE_WEBRTC_PORT_MIN"
	envWebRTCPortMax        = "STREAMGATE_WEBRTC_PORT_MAX"
	envAdvertiseHost        = "STREAMGATE_ADVERTISE_HOST"
	envWebTransportCertFile = "STREAMGATE_WT_CERT_FILE"
	envWebTransportKeyFile  = "STREAMGATE_WT_KEY_FILE"
)

// launchStreamer starts the streamer binary for one session token, wires its
// stdin/stdout as the IPC pipe, and authenticates the channel with a fresh
// session key passed via environment variable — the child is ours by
// construction, so the key's job is tamper-evidence, not identity proof.
func (sv *Supervisor) launchStreamer(token string) (*Streamer, error) {
	key, err := ipc.GenerateSessionKey()
	if err != nil {
		return nil, fmt.Errorf("supervisor: generate session key: %w", err)
	}

	keyHex := secmem.NewSecureString(hex.EncodeToString(key))
	defer keyHex.Zero()

	cmd := exec.Command(sv.streamerPath, "stream", "--session-token", token)
	cmd.Env = append(os.Environ(),
		ipc.SessionKeyEnvVar+"="+keyHex.String(),
		envWebRTCPortMin+"="+strconv.Itoa(int(sv.bootstrapEnv.WebRTCPortMin)),
		envWebRTCPortMax+"="+strconv.Itoa(int(sv.bootstrapEnv.WebRTCPortMax)),
		envAdvertiseHost+"="+sv.bootstrapEnv.AdvertiseHost,
		envWebTransportCertFile+"="+sv.bootstrapEnv.WebTransportCertFile,
		envWebTransportKeyFile+"="+sv.bootstrapEnv.WebTransportKeyFile,
	)
	cmd.Stderr = os.Stderr

	childStdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdin pipe: %w", err)
	}
	childStdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start streamer: %w", err)
	}

	pipe := ipc.NewPipeConn(childStdout, childStdin, "streamer:"+token)
	conn := ipc.NewConn(pipe)
	conn.SetSessionKey(key)

	return newStreamer(token, cmd, conn), nil
}
