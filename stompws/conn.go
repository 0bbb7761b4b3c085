package stompws

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// wsConn presents a WebSocket as the byte stream STOMP framing expects.
// Inbound WebSocket messages are concatenated; each Write is sent as one text
// message. It is used on both ends of the socket.
type wsConn struct {
	ws *websocket.Conn

	reader  io.Reader
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}

	mu      sync.Mutex
	readErr error
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws, done: make(chan struct{})}
}

// Read implements io.Reader. Only one goroutine may read at a time.
func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				c.recordReadErr(err)
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			c.recordReadErr(err)
		}
		return n, err
	}
}

// Write implements io.Writer
func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame when the socket is still writable and releases it.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()
		err = c.ws.Close()
		close(c.done)
	})
	return err
}

// recordReadErr keeps the first read failure and releases the socket; gorilla
// read errors are permanent.
func (c *wsConn) recordReadErr(err error) {
	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	c.mu.Unlock()
	_ = c.Close()
}

func (c *wsConn) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}
