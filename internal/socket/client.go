// internal/socket/client.go
package socket

import (
	"encoding/json"
	"time"

	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one browser watching one facility.
type Client struct {
	ID         string
	UserID     string
	FacilityID string

	hub  *Hub
	conn *websocket.Conn
	sub  *parking.Subscription
}

func (c *Client) run(snap models.Snapshot) {
	gone := make(chan struct{})
	go c.readLoop(gone)
	c.writeLoop(snap, gone)
}

// readLoop only exists to process control frames and notice the client leaving.
func (c *Client) readLoop(gone chan<- struct{}) {
	defer close(gone)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("unexpected websocket close", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
	}
}

// writeLoop is the only writer on the connection.
func (c *Client) writeLoop(snap models.Snapshot, gone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := c.send(Message{Type: TypeSnapshot, FacilityID: c.FacilityID, Snapshot: &snap}); err != nil {
		return
	}

	var dropped uint64
	for {
		select {
		case <-gone:
			return

		case <-c.hub.shutdown:
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return

		case ev, ok := <-c.sub.Events():
			if !ok {
				if err := c.sub.Err(); err != nil {
					_ = c.send(Message{Type: TypeClosed, FacilityID: c.FacilityID, Error: err.Error()})
					c.closeWith(websocket.CloseTryAgainLater, "too slow")
				}
				return
			}
			if d := c.sub.Dropped(); d != dropped {
				dropped = d
				fresh, err := c.hub.watcher.Snapshot(c.FacilityID)
				if err != nil {
					return
				}
				snap = fresh
				if err := c.send(Message{Type: TypeResync, FacilityID: c.FacilityID, Snapshot: &snap}); err != nil {
					return
				}
			}
			if snap.Stale(ev) {
				continue
			}
			if err := c.send(Message{Type: TypeEvent, FacilityID: c.FacilityID, Event: &ev}); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.hub.logger.Debug("websocket write failed", zap.String("client", c.ID), zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) closeWith(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}
