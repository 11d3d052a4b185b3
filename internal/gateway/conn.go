package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/jobwars/internal/config"
	"github.com/cory-johannsen/jobwars/internal/observability"
	"github.com/cory-johannsen/jobwars/internal/protocol"
)

// wsConn adapts a gorilla WebSocket to session.Conn. Outbound envelopes are
// encoded by the caller and queued; writePump owns every socket write.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	cfg    config.HTTPConfig
	logger *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, cfg config.HTTPConfig, logger *zap.Logger) *wsConn {
	id := uuid.NewString()
	return &wsConn{
		id:     id,
		ws:     ws,
		cfg:    cfg,
		logger: logger.With(observability.Conn(id)),
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID implements session.Conn.
func (c *wsConn) ID() string { return c.id }

// Send implements session.Conn. It never blocks: envelopes for a closed or
// backed-up connection are dropped.
func (c *wsConn) Send(msg protocol.Outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Error("encoding outbound envelope", zap.String("type", string(msg.MessageType())), zap.Error(err))
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("outbound buffer full, dropping envelope", zap.String("type", string(msg.MessageType())))
		return false
	}
}

// Close implements session.Conn. Queued envelopes are flushed before the
// close frame is written.
func (c *wsConn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump feeds inbound frames to sessions until the socket fails, then
// reports the disconnect.
func (c *wsConn) readPump(sessions Sessions) {
	defer func() {
		sessions.Disconnect(c)
		c.Close()
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	c.extendReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Info("websocket read failed", zap.Error(err))
			}
			return
		}
		c.extendReadDeadline()
		if kind != websocket.TextMessage {
			continue
		}
		sessions.Deliver(c, frame)
	}
}

func (c *wsConn) extendReadDeadline() {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Debug("setting read deadline", zap.Error(err))
	}
}

// writePump writes queued frames and keeps the socket alive with control
// pings. It closes the socket when the connection is closed.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued, stopping at the first failure.
func (c *wsConn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(kind int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, data)
}
