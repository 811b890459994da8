package core

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Conn is the server side of one session: a websocket joined to a single room
// under a single role.
type Conn struct {
	conn        *websocket.Conn
	id          int
	room        string
	role        Role
	writeStream chan *Event
	hub         *Hub
	ticker      *time.Ticker
	logger      *slog.Logger
}

func (c *Conn) ID() int {
	return c.id
}

func (c *Conn) Room() string {
	return c.room
}

func (c *Conn) Role() Role {
	return c.role
}

// close signals the write loop to send a close frame and exit.
// Only the hub goroutine calls it.
func (c *Conn) close() {
	close(c.writeStream)
}

func (c *Conn) readLoop() {
	c.logger.Debug("read loop started")
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
		c.logger.Debug("read loop stopped")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Warn(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Warn(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			c.logger.Warn(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var event Event
		if err := DecodeEvent(r, &event); err != nil {
			c.logger.Warn(err.Error())
			continue
		}
		event.Dispatcher = c.id
		event.Room = c.room

		c.logger.Debug(event.String())

		if !c.hub.pass(&event) {
			return
		}
	}
}

func (c *Conn) writeLoop() {
	c.logger.Debug("write loop started")
	var err error
	defer func() {
		c.ticker.Stop()
		// on a clean exit the read loop closes the socket once the peer answers the close frame
		if err != nil {
			c.conn.Close()
		}
		c.logger.Debug("write loop stopped")
	}()

	for {
		select {
		case e, ok := <-c.writeStream:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			var w io.WriteCloser
			w, err = c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Warn(fmt.Sprintf("getting next writer: %v", err))
				return
			}
			if encErr := EncodeEvent(w, e); encErr != nil {
				c.logger.Error(encErr.Error())
			}
			if err = w.Close(); err != nil {
				c.logger.Warn(fmt.Sprintf("flushing frame: %v", err))
				return
			}
		case <-c.ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn(fmt.Sprintf("writing ping: %v", err))
				return
			}
		}
	}
}
