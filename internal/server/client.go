package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-dmchat/internal/types"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
	// closeTimeout bounds the store writes made while a connection closes.
	closeTimeout = 5 * time.Second
)

type ClientState int32

const (
	StateConnecting ClientState = iota
	StateOpen
	StateClosed
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// session is the per-channel behaviour of a connection.
type session interface {
	open(c *Client) error
	// dispatch handles one decoded client event. A returned error closes
	// the connection.
	dispatch(c *Client, ev clientEvent) error
	close(ctx context.Context, c *Client)
	// acceptsInput reports whether client frames are decoded at all.
	acceptsInput() bool
}

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	session    session
	send       chan Event
	state      atomic.Int32
	// ctx is cancelled when the connection closes.
	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	id, err := shortid.Generate()
	if err != nil {
		id = fmt.Sprintf("c%d", time.Now().UnixNano())
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan Event, sendBufferSize),
		ctx:        ctx,
		cancel:     cancel,
		stop:       make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) User() types.User {
	return c.user
}

func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// Deliver queues ev for the write pump without blocking.
func (c *Client) Deliver(ev Event) bool {
	if c.State() == StateClosed {
		return false
	}

	select {
	case c.send <- ev:
		return true
	default:
		c.log.Printf("client %s: send queue full", c.id)
		return false
	}
}

// Stop asks both pumps to exit. Events still queued are dropped.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			bytes, err := serializeEvent(ev)
			if err != nil {
				c.log.Printf("client %s: serialize %s: %v", c.id, ev.EventType(), err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	opened := false
	defer func() {
		c.cleanup(opened)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	if err := c.session.open(c); err != nil {
		c.closeWithError(err)
		return
	}
	opened = true
	c.state.Store(int32(StateOpen))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("client %s: read: %v", c.id, err)
			}
			return
		}

		if !c.session.acceptsInput() {
			continue
		}

		ev, err := decodeClientEvent(raw)
		if err != nil {
			c.closeWithError(err)
			return
		}

		if err := c.session.dispatch(c, ev); err != nil {
			c.closeWithError(err)
			return
		}
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("client %s: write: %v", c.id, err)
		}
		return false
	}

	return true
}

// closeWithError sends a close frame describing err. Errors that are not
// protocol errors close with 1011.
func (c *Client) closeWithError(err error) {
	code, reason := websocket.CloseInternalServerErr, "internal error"
	var pe *protocolError
	if errors.As(err, &pe) {
		code, reason = pe.code, pe.reason
		c.chatServer.protocolError()
	}

	c.log.Printf("client %s: closing: %v", c.id, err)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.log.Printf("client %s: write close: %v", c.id, err)
	}
}

func (c *Client) cleanup(opened bool) {
	c.state.Store(int32(StateClosed))
	c.cancel()

	if opened {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), closeTimeout)
		c.session.close(ctx, c)
		cancel()
	}

	c.Stop()
	c.conn.Close()
	c.chatServer.unregisterClient(c)
}
