package session

import (
	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/transport"
)

// TransportFactory builds the two transport.Transport implementations,
// keeping pion/quic-go types out of this package so the machine stays
// testable against fakes. One factory instance per streamer process.
type TransportFactory interface {
	// NewWebRTC builds a peer connection from the client's SDP offer and
	// returns the transport plus the SDP answer to relay back.
	NewWebRTC(iceServers []ipc.ICEServerInfo, offerSDP string) (tr transport.Transport, answerSDP string, err error)

	// AddICECandidate relays one trickled remote ICE candidate to an
	// already-built WebRTC transport.
	AddICECandidate(tr transport.Transport, candidate string) error

	// StartWebTransport binds (or reuses) this streamer's QUIC listener for
	// the given session token and returns the URL/cert-hash to advertise.
	// Attach fires exactly once, when the browser's "/main" session
	// connects with a matching token; InputAttach fires exactly once if
	// the browser opens a "/input" session for hybrid-mode input.
	StartWebTransport(token string) (offer WebTransportOffer, err error)
}

// WebTransportOffer is what Preparing advertises to the client in Setup,
// plus the channels that complete once the browser connects.
type WebTransportOffer struct {
	URL      string
	CertHash string
	Attach   <-chan transport.Transport

	// InputURL is the "/input?token=..." URL to advertise when the client
	// requested hybrid mode; empty otherwise. InputAttach fires once that
	// session attaches.
	InputURL    string
	InputAttach <-chan transport.Transport
}
