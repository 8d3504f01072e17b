package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 16
	sendBuffer     = 32
)

// errSlowConsumer closes connections whose send buffer overflowed.
var errSlowConsumer = errors.New("live: send buffer full")

// Conn wraps a websocket with a buffered writer goroutine.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	send   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	c := &Conn{ws: ws, logger: logger, send: make(chan []byte, sendBuffer), closed: make(chan struct{})}
	c.wg.Add(1)
	go c.writePump()
	return c
}

// Send queues env for delivery. It never blocks; a full buffer closes the
// connection.
func (c *Conn) Send(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("live marshal error", slog.String("type", env.Type), slog.Any("error", err))
		return
	}
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- data:
	case <-c.closed:
	default:
		c.logger.Warn("live send buffer full", slog.Any("error", errSlowConsumer))
		c.Close()
	}
}

// ReadLoop decodes inbound messages until the peer disconnects or ctx ends.
func (c *Conn) ReadLoop(ctx context.Context, handle func(Message)) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("live read error", slog.Any("error", err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		handle(msg)
	}
}

// Close shuts the connection down and waits for the writer to exit.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

// Wait blocks until the writer goroutine has exited.
func (c *Conn) Wait() { c.wg.Wait() }

func (c *Conn) writePump() {
	defer c.wg.Done()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("live write error", slog.Any("error", err))
				c.Close()
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		}
	}
}
