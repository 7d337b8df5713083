package supervisor

import "errors"

var (
	ErrCommandTimeout   = errors.New("supervisor: command timed out")
	ErrNoStreamerForToken = errors.New("supervisor: no streamer attached to session token")
	ErrSupervisorClosed = errors.New("supervisor: supervisor is closed")
	ErrMaxConcurrent    = errors.New("supervisor: max concurrent streams exceeded")
	ErrRateLimited      = errors.New("supervisor: signaling attempt rate limited")
	ErrHandshakeTimeout = errors.New("supervisor: streamer handshake timeout")
	ErrLaunchTimeout    = errors.New("supervisor: streamer did not report StageStarting in time")
	ErrStreamerExited   = errors.New("supervisor: streamer process exited")
)
