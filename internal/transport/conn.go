package transport

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeTimeout bounds the websocket close handshake
const closeTimeout = time.Second

// Conn is a connected endpoint raw bytes are written to
type Conn interface {
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dial opens the connection described by rawURL. Supported schemes are
// tcp, udp, ws, wss and stdout.
func Dial(ctx context.Context, rawURL string, timeout time.Duration) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid transport url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "tcp", "udp":
		d := net.Dialer{Timeout: timeout}
		c, err := d.DialContext(ctx, u.Scheme, u.Host)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
		}
		return &netConn{conn: c}, nil
	case "ws", "wss":
		dialer := websocket.Dialer{HandshakeTimeout: timeout}
		c, resp, err := dialer.DialContext(ctx, rawURL, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", rawURL, err)
		}
		return &wsConn{conn: c}, nil
	case "stdout":
		return NewDumpConn(os.Stdout), nil
	default:
		return nil, fmt.Errorf("unsupported transport scheme %q", u.Scheme)
	}
}

type netConn struct {
	conn net.Conn
}

func (c *netConn) Write(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *netConn) Close() error {
	return c.conn.Close()
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(closeTimeout))
	return c.conn.Close()
}

// DumpConn writes a hex dump of every packet, like the debug page's output view
type DumpConn struct {
	mu sync.Mutex
	w  io.Writer
}

// NewDumpConn returns a Conn that hex-dumps writes to w
func NewDumpConn(w io.Writer) *DumpConn {
	return &DumpConn{w: w}
}

func (c *DumpConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, hex.Dump(data))
	return err
}

func (c *DumpConn) Close() error {
	return nil
}
