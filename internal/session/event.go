package session

import "github.com/breeze-rmm/streamgate/internal/wire"

// event is the machine's single inbound queue element: a closed sum type so
// run's dispatch switch is exhaustive rather than a type-assertion chain.
type event interface {
	eventKind() string
}

// clientEvent wraps one decoded signaling frame from the browser client.
type clientEvent struct {
	msg wire.ClientMessage
}

func (clientEvent) eventKind() string { return "client" }

// hostErrorEvent reports a GameStream-layer failure (pairing revoked, app
// not found, decoder error) tagged with the stage it interrupted.
type hostErrorEvent struct {
	stage StageName
	code  ErrorCode
}

func (hostErrorEvent) eventKind() string { return "host_error" }

// closeEvent requests teardown, e.g. because the signaling socket closed.
type closeEvent struct {
	reason string
}

func (closeEvent) eventKind() string { return "close" }

// transportFailedEvent reports that an already-connected transport was lost.
type transportFailedEvent struct {
	reason string
}

func (transportFailedEvent) eventKind() string { return "transport_failed" }
