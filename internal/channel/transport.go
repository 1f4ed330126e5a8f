package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// StatusNormalClosure is the close code of a clean, intentional close
const StatusNormalClosure = int(ws.StatusNormalClosure)

// Conn is one open push connection
type Conn interface {
	// Read blocks until the next data frame arrives. A close handshake is
	// reported as *CloseError.
	Read() ([]byte, error)
	Write(data []byte) error
	Close(code int, reason string) error
}

// Dialer opens push connections
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// CloseError is returned by Conn.Read when the peer closed the connection
// with a close frame
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: %d %s", e.Code, e.Reason)
}

// IsNormalClosure reports whether err is a close handshake with status 1000
func IsNormalClosure(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce) && ce.Code == StatusNormalClosure
}

// closeCode returns the close code carried by err, or 1006 (abnormal closure)
func closeCode(err error) int {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return int(ws.StatusAbnormalClosure)
}

// WSDialer dials websocket servers with gobwas/ws
type WSDialer struct {
	Timeout time.Duration
	Header  http.Header
}

// Dial performs the websocket handshake against url (ws:// or wss://)
func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	if len(d.Header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(d.Header)
	}

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return newWSConn(conn, br), nil
}

type wsConn struct {
	conn    net.Conn
	rw      io.ReadWriter
	writeMu *sync.Mutex
}

// lockedWriter serializes the control replies wsutil writes while reading
// with frames written by Write.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newWSConn(conn net.Conn, br *bufio.Reader) *wsConn {
	// Bytes the server sent right after the handshake sit in br.
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	mu := new(sync.Mutex)
	return &wsConn{
		conn:    conn,
		writeMu: mu,
		rw: struct {
			io.Reader
			io.Writer
		}{r, lockedWriter{mu: mu, w: conn}},
	}
}

func (c *wsConn) Read() ([]byte, error) {
	data, _, err := wsutil.ReadServerData(c.rw)
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			return nil, &CloseError{Code: int(closed.Code), Reason: closed.Reason}
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

func (c *wsConn) Close(code int, reason string) error {
	c.writeMu.Lock()
	body := ws.NewCloseFrameBody(ws.StatusCode(code), reason)
	werr := wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
	c.writeMu.Unlock()

	if err := c.conn.Close(); err != nil {
		return err
	}
	return werr
}
