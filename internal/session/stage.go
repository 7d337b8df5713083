package session

// StageName is the symbolic phase name surfaced to the client UI via
// StageStarting/StageComplete/StageFailed. Fixed, compile-time-known set —
// never built from a format string.
type StageName string

const (
	StageLaunchStreamer   StageName = "Launch Streamer"
	StageConnectToHost    StageName = "Connect to Host"
	StageConnectTransport StageName = "Connect Transport"
	StageStartStream      StageName = "Start Stream"
)
