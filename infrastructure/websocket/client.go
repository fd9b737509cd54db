package websocket

import (
	"collab-lab/contract"
	"collab-lab/domain"
	"collab-lab/domain/event"
	"collab-lab/errors"
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// client pumps frames between one websocket and the session core.
type client struct {
	id             domain.ConnectionID
	conn           *websocket.Conn
	sink           *Sink
	service        contract.ISessionService
	limiter        *rate.Limiter
	maxMessageSize int64
	log            *slog.Logger
}

// readPump owns the connection: when it returns the member has left.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.service.Disconnect(ctx, c.id)
		c.sink.Close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	rateLimitWarnings := 0
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Websocket closed unexpectedly", "connection", c.id, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				c.log.Warn("Rate limit exceeded", "connection", c.id, "warnings", rateLimitWarnings)
			}
			c.reject(ctx, "", errors.ErrRateLimited)
			continue
		}

		name, cmd, err := Decode(frame)
		if err != nil {
			c.log.Debug("Invalid frame", "connection", c.id, "event", name, "error", err)
			c.reject(ctx, name, err)
			continue
		}
		if err := c.service.Handle(ctx, c.id, cmd); err != nil {
			c.log.Debug("Event rejected", "connection", c.id, "event", name, "error", err)
			c.reject(ctx, name, err)
		}
		if _, ok := cmd.(domain.ExplicitDisconnectCommand); ok {
			return
		}
	}
}

// reject answers the sender only, bypassing the fanout since the
// connection may not be registered.
func (c *client) reject(ctx context.Context, name string, err error) {
	_ = c.sink.Consume(ctx, event.InvalidRequest{Event: name, Reason: err.Error()})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.sink.Frames():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed", "connection", c.id, "error", err)
				return
			}
		case <-c.sink.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
