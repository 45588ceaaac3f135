package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Conn is one established push connection. Read is called from a single
// goroutine; Write and Close may be called concurrently with it.
type Conn interface {
	// Read blocks for the next frame. A close frame from the peer is
	// reported as *CloseError.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials with github.com/coder/websocket.
type WebSocketDialer struct {
	// HTTPClient is used for the handshake (nil means http.DefaultClient).
	HTTPClient *http.Client

	// Header is sent with the handshake request.
	Header http.Header

	// ReadLimit caps inbound frames (0 means the package default).
	ReadLimit int64
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: d.Header,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)

	return &wsConn{c: conn}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		return nil, classifyReadErr(err)
	}
	return data, nil
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

// Close attempts the close handshake and drops the TCP connection if the
// peer does not answer within closeGrace.
func (w *wsConn) Close() error {
	done := make(chan error, 1)
	go func() { done <- w.c.Close(websocket.StatusNormalClosure, "bye") }()

	t := time.NewTimer(closeGrace)
	defer t.Stop()

	select {
	case err := <-done:
		return err
	case <-t.C:
		return w.c.CloseNow()
	}
}

// classifyReadErr turns a close frame into *CloseError and leaves every
// other error (reset, EOF, cancellation) as is.
func classifyReadErr(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: int(ce.Code), Reason: ce.Reason, Err: err}
	}
	return err
}
