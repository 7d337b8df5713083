package webtransporttransport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/breeze-rmm/streamgate/internal/transport"
)

// Server owns the HTTP/3 listener backing both WebTransport paths
// ("/main" for video/audio/stats, "/input" for the input-only session).
// Session admission (token lookup, rate limiting) is the caller's
// responsibility via the On*Session hooks.
type Server struct {
	wt  webtransport.Server
	h3  *http3.Server
	mux *http.ServeMux

	OnMainSession  func(token string, session *webtransport.Session)
	OnInputSession func(token string, session *webtransport.Session)
}

// NewServer builds a Server bound to addr using the given TLS certificate.
func NewServer(addr string, cert tls.Certificate) *Server {
	mux := http.NewServeMux()
	h3 := &http3.Server{
		Addr:      addr,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
		Handler:   mux,
	}
	s := &Server{
		wt:  webtransport.Server{H3: *h3},
		mux: mux,
		h3:  h3,
	}
	s.wt.H3.Handler = mux

	mux.HandleFunc("/main", s.handleMain)
	mux.HandleFunc("/input", s.handleInput)
	return s
}

// ListenAndServe starts serving HTTP/3 WebTransport connections on Addr.
// Blocks until the listener errors or is closed.
func (s *Server) ListenAndServe() error {
	return s.wt.ListenAndServe()
}

// Serve runs the listener on an already-bound UDP socket instead of Addr,
// for callers (one per streamer process) that need to pick an ephemeral
// port themselves and read back the bound port before advertising it.
func (s *Server) Serve(conn net.PacketConn) error {
	return s.h3.Serve(conn)
}

// Close tears down the HTTP/3 listener.
func (s *Server) Close() error {
	return s.wt.Close()
}

func (s *Server) handleMain(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	session, err := s.wt.Upgrade(w, r)
	if err != nil {
		log.Warn("webtransport main upgrade failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if s.OnMainSession != nil {
		s.OnMainSession(token, session)
	}
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	session, err := s.wt.Upgrade(w, r)
	if err != nil {
		log.Warn("webtransport input upgrade failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if s.OnInputSession != nil {
		s.OnInputSession(token, session)
	}
}

// NewInput adopts an upgraded WebTransport session for the "/input" path:
// no video datagrams, only the per-channel input streams.
func NewInput(session *webtransport.Session) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		session: session,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan transport.Event, 64),
	}
	t.wg.Add(1)
	go func() { defer t.wg.Done(); t.acceptStreams() }()
	return t
}
