package ipc

import "encoding/json"

// Message type constants for supervisor <-> streamer IPC.
const (
	// Supervisor -> streamer
	TypeInit     = "init"
	TypeSignaling = "signaling"
	TypeShutdown  = "shutdown"

	// Streamer -> supervisor
	TypeStageStarting        = "stage_starting"
	TypeStageComplete        = "stage_complete"
	TypeStageFailed          = "stage_failed"
	TypeSetup                = "setup"
	TypeUpdateApp            = "update_app"
	TypeConnectionComplete   = "connection_complete"
	TypeConnectionTerminated = "connection_terminated"
	TypeStatsUpdate          = "stats_update"

	// Bidirectional housekeeping messages, used to keep the length-framed
	// Conn alive and to signal an orderly shutdown.
	TypePing       = "ping"
	TypePong       = "pong"
	TypeDisconnect = "disconnect"
)

// MaxMessageSize is the maximum size of a JSON IPC message (16MB). Large
// enough for a signaling SDP offer/answer plus trickled candidates batched
// into one frame, without admitting an unbounded payload.
const MaxMessageSize = 16 * 1024 * 1024

// MaxBinaryFrameSize is the maximum size of a binary channel frame (4MB).
const MaxBinaryFrameSize = 4 * 1024 * 1024

// ProtocolVersion is the current IPC protocol version.
const ProtocolVersion = 1

// Envelope is the wire-format wrapper for all IPC messages.
type Envelope struct {
	ID      string          `json:"id"`
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error,omitempty"`
	HMAC    string          `json:"hmac"`
}

// InitPayload carries the StreamConfig the client requested in its signaling
// Init frame, forwarded by the supervisor to the newly spawned streamer.
// Field names are kept stable so older/newer streamer builds stay
// wire-compatible.
type InitPayload struct {
	HostID   string `json:"host_id"`
	AppID    string `json:"app_id"`
	Bitrate  int    `json:"bitrate"`
	PacketSize int  `json:"packet_size"`
	FPS      int    `json:"fps"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`

	VideoFrameQueueSize  int  `json:"video_frame_queue_size"`
	PlayAudioLocal       bool `json:"play_audio_local"`
	AudioSampleQueueSize int  `json:"audio_sample_queue_size"`

	// VideoSupportedFormats is a bitmask: H264=1, HEVC=2, AV1=4.
	VideoSupportedFormats int    `json:"video_supported_formats"`
	VideoColorspace       string `json:"video_colorspace"`
	VideoColorRangeFull   bool   `json:"video_color_range_full"`

	HybridMode         bool   `json:"hybrid_mode"`
	PreferredTransport string `json:"preferred_transport"`

	// ICEServers is the gateway's configured STUN/TURN set, forwarded here
	// rather than looked up independently so every streamer process agrees
	// with what Setup already advertised to the client.
	ICEServers []ICEServerInfo `json:"ice_servers,omitempty"`
}

// SignalingPayload wraps an opaque client<->server signaling frame for
// proxying. The supervisor never interprets it; only the streamer's session
// state machine and the browser client decode Body.
type SignalingPayload struct {
	Body json.RawMessage `json:"body"`
}

// ShutdownPayload requests a graceful streamer exit.
type ShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}

// StagePayload reports a named stage transition. Code is populated only for
// StageFailed.
type StagePayload struct {
	Stage     string `json:"stage"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// SetupPayload is emitted once the streamer has obtained ICE servers, minted
// the session token, and (if WebTransport is eligible) bound its QUIC
// listener.
type SetupPayload struct {
	ICEServers           []ICEServerInfo `json:"ice_servers"`
	SessionToken         string          `json:"session_token"`
	WebTransportURL      string          `json:"webtransport_url,omitempty"`
	CertHash             string          `json:"cert_hash,omitempty"`
	InputWebTransportURL string          `json:"input_webtransport_url,omitempty"`
}

// ICEServerInfo mirrors the subset of RTCIceServer forwarded to the client.
type ICEServerInfo struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// UpdateAppPayload carries metadata about the app the host is launching,
// fetched from GameStream control (out of scope here; passed through).
type UpdateAppPayload struct {
	App json.RawMessage `json:"app"`
}

// ConnectionCompletePayload is sent once the transport reaches Connected and
// the forwarding pipeline is live.
type ConnectionCompletePayload struct {
	Format       int      `json:"format"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	FPS          int      `json:"fps"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ConnectionTerminatedPayload reports that an already-connected transport
// failed or was closed.
type ConnectionTerminatedPayload struct {
	ErrorCode int `json:"error_code"`
}

// StatsUpdatePayload carries periodic transport/runtime stats the streamer
// forwards to the supervisor for logging/telemetry. Individual fields are
// optional since RTT and video-timing stats arrive on independent cadences.
type StatsUpdatePayload struct {
	RTTMs           *float64 `json:"rtt_ms,omitempty"`
	RTTVarianceMs   *float64 `json:"rtt_variance_ms,omitempty"`
	HostProcessingLatencyMs *float64 `json:"host_processing_latency_ms,omitempty"`
	MinStreamerProcessingMs *float64 `json:"min_streamer_processing_time_ms,omitempty"`
	MaxStreamerProcessingMs *float64 `json:"max_streamer_processing_time_ms,omitempty"`
	AvgStreamerProcessingMs *float64 `json:"avg_streamer_processing_time_ms,omitempty"`
	VideoUnitsDropped       uint64   `json:"video_units_dropped,omitempty"`
}
