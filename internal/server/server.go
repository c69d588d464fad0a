package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-dmchat/internal/database"
	"github.com/npezzotti/go-dmchat/internal/messaging"
	"github.com/npezzotti/go-dmchat/internal/presence"
	"github.com/npezzotti/go-dmchat/internal/stats"
	"github.com/npezzotti/go-dmchat/internal/types"
)

// ChatServer owns the live connections of the process together with the
// broadcaster, presence registry and message engine they share.
type ChatServer struct {
	log         *log.Logger
	db          database.Repository
	stats       stats.StatsProvider
	broadcaster *Broadcaster
	presence    *presence.Registry
	engine      *messaging.Engine

	clients      map[*Client]struct{}
	clientsLock  sync.Mutex
	shuttingDown bool
	wg           sync.WaitGroup
}

func NewChatServer(logger *log.Logger, db database.Repository, su stats.StatsProvider, loc *time.Location) (*ChatServer, error) {
	if db == nil {
		return nil, fmt.Errorf("nil repository")
	}

	cs := &ChatServer{
		log:         logger,
		db:          db,
		stats:       su,
		broadcaster: NewBroadcaster(logger),
		presence:    presence.NewRegistry(logger, db, loc),
		engine:      messaging.NewEngine(logger, db),
		clients:     make(map[*Client]struct{}),
	}

	su.RegisterMetric(stats.NumActiveClients)
	su.RegisterMetric(stats.NumMessagesSent)
	su.RegisterMetric(stats.NumProtocolErrors)
	su.Observe(stats.NumOnlineUsers, func() int64 {
		return int64(len(cs.presence.OnlineUsers()))
	})
	su.Observe(stats.NumActiveGroups, func() int64 {
		return int64(cs.broadcaster.NumGroups())
	})

	return cs, nil
}

func (cs *ChatServer) Engine() *messaging.Engine {
	return cs.engine
}

func (cs *ChatServer) Presence() *presence.Registry {
	return cs.presence
}

func (cs *ChatServer) Broadcaster() *Broadcaster {
	return cs.broadcaster
}

// ResetPresence clears online flags left in the store by a previous process.
// It must run before the first connection is served.
func (cs *ChatServer) ResetPresence(ctx context.Context) error {
	if err := cs.db.ResetPresence(ctx); err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}
	return nil
}

// ServePresence starts the presence channel for an upgraded connection.
func (cs *ChatServer) ServePresence(conn *websocket.Conn, user types.User) *Client {
	return cs.serve(conn, user, presenceSession{})
}

// ServeConversation starts the conversation channel for roomName on an
// upgraded connection. An invalid room name closes the connection with
// 1008 once the client is running.
func (cs *ChatServer) ServeConversation(conn *websocket.Conn, user types.User, roomName string) *Client {
	return cs.serve(conn, user, newConversationSession(roomName))
}

func (cs *ChatServer) serve(conn *websocket.Conn, user types.User, s session) *Client {
	c := NewClient(user, conn, cs, cs.log)
	c.session = s

	if !cs.registerClient(c) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return nil
	}

	cs.log.Printf("client %s: connected as %q", c.id, user.Username)
	go c.Write()
	go c.Read()
	return c
}

// PublishUnreadCount sends receiverId the current number of unread
// messages from senderId.
func (cs *ChatServer) PublishUnreadCount(ctx context.Context, senderId, receiverId int) error {
	count, err := cs.engine.UnreadCount(ctx, senderId, receiverId)
	if err != nil {
		return err
	}

	cs.broadcaster.Publish(userGroup(receiverId), NewUnreadCountUpdate(senderId, count))
	return nil
}

func (cs *ChatServer) registerClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if cs.shuttingDown {
		return false
	}
	cs.clients[c] = struct{}{}
	cs.wg.Add(1)
	cs.stats.Incr(stats.NumActiveClients)
	return true
}

func (cs *ChatServer) unregisterClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}
	delete(cs.clients, c)
	cs.wg.Done()
	cs.stats.Decr(stats.NumActiveClients)
	cs.log.Printf("client %s: disconnected", c.id)
}

func (cs *ChatServer) protocolError() {
	cs.stats.Incr(stats.NumProtocolErrors)
}

// NumClients returns the number of live connections.
func (cs *ChatServer) NumClients() int {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	return len(cs.clients)
}

// Shutdown stops accepting connections, stops every live client and waits
// for their cleanup, which includes writing offline presence.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down chat server")

	cs.clientsLock.Lock()
	cs.shuttingDown = true
	for c := range cs.clients {
		c.Stop()
	}
	cs.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		cs.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
