package wire

import (
	"encoding/json"
	"fmt"
)

// Client -> server and server -> client signaling frames are tagged unions:
// every concrete message type implements one of the two closed interfaces
// below so a handler's switch is exhaustive and the compiler flags a
// missing case, instead of dispatching on a bare string.

// ClientMessage is implemented by every client -> server signaling frame.
type ClientMessage interface {
	clientMessageType() string
}

// ServerMessage is implemented by every server -> client signaling frame.
type ServerMessage interface {
	serverMessageType() string
}

const (
	typeInit              = "init"
	typeWebRtcDescription = "webrtc_description"
	typeWebRtcIceCandidate = "webrtc_ice_candidate"
	typeFallbackToWebRtc  = "fallback_to_webrtc"
	typeInputSessionHello = "input_session_hello"

	typeStageStarting        = "stage_starting"
	typeStageComplete        = "stage_complete"
	typeStageFailed          = "stage_failed"
	typeSetup                = "setup"
	typeUpdateApp            = "update_app"
	typeConnectionComplete   = "connection_complete"
	typeConnectionTerminated = "connection_terminated"
)

// InitMessage is the client's opening frame, naming the host/app to stream
// and the client's display/codec/transport preferences.
type InitMessage struct {
	HostID                string `json:"host_id"`
	AppID                 string `json:"app_id"`
	Bitrate               int    `json:"bitrate"`
	PacketSize            int    `json:"packet_size"`
	FPS                   int    `json:"fps"`
	Width                 int    `json:"width"`
	Height                int    `json:"height"`
	VideoFrameQueueSize   int    `json:"video_frame_queue_size"`
	PlayAudioLocal        bool   `json:"play_audio_local"`
	AudioSampleQueueSize  int    `json:"audio_sample_queue_size"`
	VideoSupportedFormats int    `json:"video_supported_formats"`
	VideoColorspace       string `json:"video_colorspace"`
	VideoColorRangeFull   bool   `json:"video_color_range_full"`
	HybridMode            bool   `json:"hybrid_mode"`
	PreferredTransport    string `json:"preferred_transport"`
}

func (InitMessage) clientMessageType() string { return typeInit }

// Video format bitmask bits.
const (
	VideoFormatH264 = 1 << 0
	VideoFormatHEVC = 1 << 1
	VideoFormatAV1  = 1 << 2
)

// Colorspace values.
const (
	ColorspaceRec601  = "Rec601"
	ColorspaceRec709  = "Rec709"
	ColorspaceRec2020 = "Rec2020"
)

// Transport preference values.
const (
	TransportAuto        = "auto"
	TransportWebRTC      = "webrtc"
	TransportWebTransport = "webtransport"
)

// WebRtcDescriptionMessage carries an SDP offer or answer. Sent by either
// side, so it implements both ClientMessage and ServerMessage.
type WebRtcDescriptionMessage struct {
	SDPType string `json:"ty"`
	SDP     string `json:"sdp"`
}

func (WebRtcDescriptionMessage) clientMessageType() string { return typeWebRtcDescription }
func (WebRtcDescriptionMessage) serverMessageType() string { return typeWebRtcDescription }

// WebRtcIceCandidateMessage carries one trickled ICE candidate.
type WebRtcIceCandidateMessage struct {
	Candidate        string `json:"candidate"`
	SDPMid           string `json:"sdp_mid"`
	SDPMLineIndex    int    `json:"sdp_mline_index"`
	UsernameFragment string `json:"username_fragment"`
}

func (WebRtcIceCandidateMessage) clientMessageType() string { return typeWebRtcIceCandidate }
func (WebRtcIceCandidateMessage) serverMessageType() string { return typeWebRtcIceCandidate }

// FallbackToWebRtcMessage is sent by the client when its WebTransport
// attempt fails or times out and it is retrying over WebRTC instead.
type FallbackToWebRtcMessage struct {
	Reason string `json:"reason"`
}

func (FallbackToWebRtcMessage) clientMessageType() string { return typeFallbackToWebRtc }

// InputSessionHelloMessage is the first frame the client sends on a hybrid
// input transport, identifying which main session it belongs to.
type InputSessionHelloMessage struct {
	SessionToken string `json:"session_token"`
}

func (InputSessionHelloMessage) clientMessageType() string { return typeInputSessionHello }

// StageStartingMessage/StageCompleteMessage/StageFailedMessage report state
// machine stage transitions to the client UI.
type StageStartingMessage struct {
	Stage string `json:"stage"`
}

func (StageStartingMessage) serverMessageType() string { return typeStageStarting }

type StageCompleteMessage struct {
	Stage string `json:"stage"`
}

func (StageCompleteMessage) serverMessageType() string { return typeStageComplete }

type StageFailedMessage struct {
	Stage     string `json:"stage"`
	ErrorCode int    `json:"error_code"`
}

func (StageFailedMessage) serverMessageType() string { return typeStageFailed }

// SetupMessage delivers ICE servers, the session token, and (for
// WebTransport-eligible sessions) the bind URL and pinned certificate hash.
type SetupMessage struct {
	ICEServers           []ICEServer `json:"ice_servers"`
	SessionToken         string      `json:"session_token"`
	WebTransportURL      string      `json:"webtransport_url,omitempty"`
	CertHash             string      `json:"cert_hash,omitempty"`
	InputWebTransportURL string      `json:"input_webtransport_url,omitempty"`
}

func (SetupMessage) serverMessageType() string { return typeSetup }

// ICEServer mirrors RTCIceServer's wire shape.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// UpdateAppMessage reports metadata about the app GameStream is launching.
type UpdateAppMessage struct {
	App json.RawMessage `json:"app"`
}

func (UpdateAppMessage) serverMessageType() string { return typeUpdateApp }

// ConnectionCompleteMessage is sent once the transport is Connected and the
// forwarding pipeline is live.
type ConnectionCompleteMessage struct {
	Format       int      `json:"format"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	FPS          int      `json:"fps"`
	Capabilities []string `json:"capabilities,omitempty"`
}

func (ConnectionCompleteMessage) serverMessageType() string { return typeConnectionComplete }

// ConnectionTerminatedMessage reports that an already-connected transport
// failed or was closed.
type ConnectionTerminatedMessage struct {
	ErrorCode int `json:"error_code"`
}

func (ConnectionTerminatedMessage) serverMessageType() string { return typeConnectionTerminated }

type taggedFrame struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// EncodeClientMessage tags and marshals a ClientMessage for the wire.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal client message: %w", err)
	}
	return json.Marshal(taggedFrame{Type: msg.clientMessageType(), Body: body})
}

// DecodeClientMessage untags and unmarshals a client -> server frame.
func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var frame taggedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("wire: unmarshal client frame: %w", err)
	}

	switch frame.Type {
	case typeInit:
		var m InitMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeWebRtcDescription:
		var m WebRtcDescriptionMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeWebRtcIceCandidate:
		var m WebRtcIceCandidateMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeFallbackToWebRtc:
		var m FallbackToWebRtcMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeInputSessionHello:
		var m InputSessionHelloMessage
		return m, json.Unmarshal(frame.Body, &m)
	default:
		return nil, fmt.Errorf("wire: unknown client message type %q", frame.Type)
	}
}

// EncodeServerMessage tags and marshals a ServerMessage for the wire.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal server message: %w", err)
	}
	return json.Marshal(taggedFrame{Type: msg.serverMessageType(), Body: body})
}

// DecodeServerMessage untags and unmarshals a server -> client frame.
func DecodeServerMessage(raw []byte) (ServerMessage, error) {
	var frame taggedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("wire: unmarshal server frame: %w", err)
	}

	switch frame.Type {
	case typeStageStarting:
		var m StageStartingMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeStageComplete:
		var m StageCompleteMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeStageFailed:
		var m StageFailedMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeSetup:
		var m SetupMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeUpdateApp:
		var m UpdateAppMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeWebRtcDescription:
		var m WebRtcDescriptionMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeWebRtcIceCandidate:
		var m WebRtcIceCandidateMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeConnectionComplete:
		var m ConnectionCompleteMessage
		return m, json.Unmarshal(frame.Body, &m)
	case typeConnectionTerminated:
		var m ConnectionTerminatedMessage
		return m, json.Unmarshal(frame.Body, &m)
	default:
		return nil, fmt.Errorf("wire: unknown server message type %q", frame.Type)
	}
}
