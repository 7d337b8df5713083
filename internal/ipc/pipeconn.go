package ipc

import (
	"io"
	"net"
	"time"
)

// pipeAddr is a placeholder net.Addr for connections that aren't actually
// sockets (inherited stdio pipes between a supervisor and its child).
type pipeAddr struct{ name string }

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return a.name }

// pipeConn adapts a pair of io.ReadCloser/io.WriteCloser (e.g. a child
// process's stdout/stdin) to the net.Conn interface Conn expects, so the
// same length-framed, HMAC-signed protocol runs unmodified over inherited
// pipes instead of a socket.
type pipeConn struct {
	r    io.ReadCloser
	w    io.WriteCloser
	name string
}

// NewPipeConn wraps a read side and a write side of an inherited pipe pair
// as a net.Conn suitable for NewConn.
func NewPipeConn(r io.ReadCloser, w io.WriteCloser, name string) net.Conn {
	return &pipeConn{r: r, w: w, name: name}
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }

func (p *pipeConn) Close() error {
	rerr := p.r.Close()
	werr := p.w.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

func (p *pipeConn) LocalAddr() net.Addr  { return pipeAddr{p.name} }
func (p *pipeConn) RemoteAddr() net.Addr { return pipeAddr{p.name} }

// Pipes carry no socket-level deadline support; these are accepted for
// net.Conn compatibility and ignored.
func (p *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (p *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (p *pipeConn) SetWriteDeadline(t time.Time) error { return nil }
