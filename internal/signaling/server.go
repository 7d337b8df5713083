package signaling

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler accepts inbound signaling WebSocket connections and hands each
// upgraded Conn to onAccept. The caller is responsible for registering the
// returned http.Handler at the signaling path (e.g. "/signaling").
type Handler struct {
	upgrader  websocket.Upgrader
	onAccept  func(*Conn, *http.Request)
	queueSize int
}

// NewHandler builds a signaling Handler. checkOrigin is passed straight
// through to the underlying websocket.Upgrader; pass nil to accept any
// origin (the gateway is typically fronted by a reverse proxy that already
// enforces this). queueSize sizes each connection's outbound send buffer;
// 0 falls back to a sane default.
func NewHandler(checkOrigin func(*http.Request) bool, queueSize int, onAccept func(*Conn, *http.Request)) *Handler {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		onAccept:  onAccept,
		queueSize: queueSize,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("signaling upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	conn := newConn(ws, h.queueSize)
	h.onAccept(conn, r)
}
