package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// StatsKind discriminates the two stats payload shapes carried on the STATS
// channel. Sum type, not stringly-typed dispatch.
type StatsKind int

const (
	StatsKindRTT StatsKind = iota
	StatsKindVideo
)

// RTTStats reports round-trip latency as observed by the client.
type RTTStats struct {
	RTTMs         float64 `json:"rtt_ms"`
	RTTVarianceMs float64 `json:"rtt_variance_ms"`
}

// VideoStats reports host/streamer-side processing timing.
type VideoStats struct {
	HostProcessingLatencyMs *float64 `json:"host_processing_latency_ms,omitempty"`
	MinStreamerProcessingMs float64  `json:"min_streamer_processing_time_ms"`
	MaxStreamerProcessingMs float64  `json:"max_streamer_processing_time_ms"`
	AvgStreamerProcessingMs float64  `json:"avg_streamer_processing_time_ms"`
}

// statsEnvelope is the tagged-union wire shape: exactly one of Rtt/Video is
// set, discriminated by Kind.
type statsEnvelope struct {
	Kind  string      `json:"kind"`
	Rtt   *RTTStats   `json:"rtt,omitempty"`
	Video *VideoStats `json:"video,omitempty"`
}

// EncodeStatsPayload frames a stats message as u16 text_length | UTF-8 JSON.
func EncodeStatsPayload(kind StatsKind, rtt *RTTStats, video *VideoStats) ([]byte, error) {
	var env statsEnvelope
	switch kind {
	case StatsKindRTT:
		env = statsEnvelope{Kind: "rtt", Rtt: rtt}
	case StatsKindVideo:
		env = statsEnvelope{Kind: "video", Video: video}
	default:
		return nil, fmt.Errorf("wire: unknown stats kind %d", kind)
	}

	text, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal stats payload: %w", err)
	}
	if len(text) > 1<<16-1 {
		return nil, fmt.Errorf("wire: stats payload too large: %d bytes", len(text))
	}

	out := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(text)))
	copy(out[2:], text)
	return out, nil
}

// DecodeStatsPayload parses a u16 text_length | UTF-8 JSON stats frame and
// returns which variant was present.
func DecodeStatsPayload(buf []byte) (kind StatsKind, rtt *RTTStats, video *VideoStats, err error) {
	if len(buf) < 2 {
		return 0, nil, nil, fmt.Errorf("wire: stats payload too short for length prefix")
	}
	length := binary.BigEndian.Uint16(buf[0:2])
	need := 2 + int(length)
	if len(buf) < need {
		return 0, nil, nil, fmt.Errorf("wire: incomplete stats payload: have %d, need %d", len(buf), need)
	}

	var env statsEnvelope
	if err := json.Unmarshal(buf[2:need], &env); err != nil {
		return 0, nil, nil, fmt.Errorf("wire: unmarshal stats payload: %w", err)
	}

	switch env.Kind {
	case "rtt":
		if env.Rtt == nil {
			return 0, nil, nil, fmt.Errorf("wire: stats kind rtt missing rtt field")
		}
		return StatsKindRTT, env.Rtt, nil, nil
	case "video":
		if env.Video == nil {
			return 0, nil, nil, fmt.Errorf("wire: stats kind video missing video field")
		}
		return StatsKindVideo, nil, env.Video, nil
	default:
		return 0, nil, nil, fmt.Errorf("wire: unknown stats kind %q", env.Kind)
	}
}
