// Package signaling implements the server side of the persistent JSON
// signaling channel between a browser/WebView client and the gateway: the
// WebSocket accept/upgrade, and the framing of wire.ClientMessage /
// wire.ServerMessage over it.
package signaling

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/breeze-rmm/streamgate/internal/logging"
	"github.com/breeze-rmm/streamgate/internal/wire"
)

var log = logging.L("signaling")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
)

// Conn is one client's signaling WebSocket, accept-oriented: there is no
// reconnect loop, since the browser owns reconnection and a dropped
// signaling socket just ends the session.
type Conn struct {
	ws       *websocket.Conn
	sendChan chan []byte
	done     chan struct{}
	closeOnce sync.Once
}

// newConn wraps a WebSocket already upgraded by the caller (Handler.ServeHTTP
// via upgrader.Upgrade) into a signaling Conn and starts its write pump.
func newConn(ws *websocket.Conn, queueSize int) *Conn {
	c := &Conn{
		ws:       ws,
		sendChan: make(chan []byte, queueSize),
		done:     make(chan struct{}),
	}
	ws.SetReadLimit(maxMessageSize)
	go c.writePump()
	return c
}

// Send marshals and queues a server -> client message. Non-blocking: if the
// send buffer is full the connection is considered wedged and closed, since
// signaling messages must not silently pile up (cf. forwarding pipeline's
// drop-don't-queue policy for video).
func (c *Conn) Send(msg wire.ServerMessage) error {
	raw, err := wire.EncodeServerMessage(msg)
	if err != nil {
		return fmt.Errorf("signaling: encode: %w", err)
	}
	return c.SendRaw(raw)
}

// SendRaw queues an already-tagged server -> client frame verbatim, for a
// caller (the supervisor's streamer relay) that decoded and re-encoding
// would be pure overhead for. Same non-blocking, close-on-full policy as
// Send.
func (c *Conn) SendRaw(raw []byte) error {
	select {
	case c.sendChan <- raw:
		return nil
	case <-c.done:
		return fmt.Errorf("signaling: connection closed")
	default:
		c.Close()
		return fmt.Errorf("signaling: send buffer full, closing connection")
	}
}

// ReadLoop reads client frames until the connection closes or errors,
// invoking onMessage for each decoded wire.ClientMessage. A malformed frame
// is logged and skipped rather than closing the connection; repeated
// offenses close it after maxBadFrames.
func (c *Conn) ReadLoop(onMessage func(wire.ClientMessage)) {
	defer c.Close()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	badFrames := 0
	const maxBadFrames = 10

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("signaling read error", "error", err)
			}
			return
		}

		msg, err := wire.DecodeClientMessage(data)
		if err != nil {
			badFrames++
			log.Warn("dropping malformed signaling frame", "error", err, "badFrames", badFrames)
			if badFrames >= maxBadFrames {
				log.Warn("closing signaling connection after repeated malformed frames")
				return
			}
			continue
		}

		onMessage(msg)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendChan:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("signaling write error", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close idempotently tears down the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}
