package main

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/pion/webrtc/v4"
	"github.com/quic-go/webtransport-go"

	"github.com/breeze-rmm/streamgate/internal/ipc"
	"github.com/breeze-rmm/streamgate/internal/session"
	"github.com/breeze-rmm/streamgate/internal/transport"
	"github.com/breeze-rmm/streamgate/internal/transport/webrtctransport"
	"github.com/breeze-rmm/streamgate/internal/transport/webtransporttransport"
)

// liveTransportFactory wires session.TransportFactory to the real pion
// WebRTC and QUIC/WebTransport stacks. One instance per streamer process,
// since a streamer only ever negotiates a single session's transport.
type liveTransportFactory struct {
	advertiseHost string
	portMin       uint16
	portMax       uint16
	cert          tls.Certificate
	certFingerprint string
}

func (f *liveTransportFactory) NewWebRTC(iceServers []ipc.ICEServerInfo, offerSDP string) (transport.Transport, string, error) {
	servers := make([]webrtc.ICEServer, 0, len(iceServers))
	for _, s := range iceServers {
		servers = append(servers, webrtc.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return webrtctransport.New(webrtctransport.Config{
		ICEServers: servers,
		Offer:      offerSDP,
		PortMin:    f.portMin,
		PortMax:    f.portMax,
	})
}

func (f *liveTransportFactory) AddICECandidate(tr transport.Transport, candidate string) error {
	wt, ok := tr.(*webrtctransport.Transport)
	if !ok {
		return fmt.Errorf("streamer: AddICECandidate on a non-webrtc transport")
	}
	return wt.AddICECandidate(candidate)
}

// StartWebTransport binds an ephemeral UDP port for this session's HTTP/3
// listener and returns the URL the client should connect its "/main"
// session to, plus a channel that fires once that session attaches.
func (f *liveTransportFactory) StartWebTransport(token string) (session.WebTransportOffer, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return session.WebTransportOffer{}, fmt.Errorf("streamer: bind webtransport port: %w", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port

	attach := make(chan transport.Transport, 1)
	inputAttach := make(chan transport.Transport, 1)
	server := webtransporttransport.NewServer(fmt.Sprintf(":%d", port), f.cert)
	server.OnMainSession = func(tok string, sess *webtransport.Session) {
		if tok != token {
			_ = sess.CloseWithError(0, "unknown session token")
			return
		}
		select {
		case attach <- webtransporttransport.New(sess):
		default:
			_ = sess.CloseWithError(0, "session already attached")
		}
	}
	server.OnInputSession = func(tok string, sess *webtransport.Session) {
		if tok != token {
			_ = sess.CloseWithError(0, "unknown session token")
			return
		}
		select {
		case inputAttach <- webtransporttransport.NewInput(sess):
		default:
			_ = sess.CloseWithError(0, "input session already attached")
		}
	}

	go func() {
		if err := server.Serve(conn); err != nil {
			log.Warn("webtransport listener stopped", "token", token, "error", err)
		}
	}()

	return session.WebTransportOffer{
		URL:         fmt.Sprintf("https://%s:%d/main?token=%s", f.advertiseHost, port, token),
		CertHash:    f.certFingerprint,
		Attach:      attach,
		InputURL:    fmt.Sprintf("https://%s:%d/input?token=%s", f.advertiseHost, port, token),
		InputAttach: inputAttach,
	}, nil
}

var _ session.TransportFactory = (*liveTransportFactory)(nil)
