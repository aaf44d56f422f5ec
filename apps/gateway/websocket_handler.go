package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mahaj/chat-delivery/pkg/auth"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Default maximum frame size allowed from peer; see WithMaxFrameBytes.
	defaultMaxFrameBytes = 64 * 1024

	// Outbound frames queued per connection before TrySend refuses.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is a middleman between the websocket connection and the router.
// It is the registry.Channel for its user while it is the live connection.
type Client struct {
	gw *Gateway

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames. Never closed; done signals
	// shutdown instead so a late TrySend cannot panic.
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	userID string
	connID string
}

func newClient(gw *Gateway, conn *websocket.Conn, userID string) *Client {
	return &Client{
		gw:     gw,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		userID: userID,
		connID: uuid.NewString(),
	}
}

// TrySend queues frame without blocking. It reports false once the client
// is closed or its queue is full.
func (c *Client) TrySend(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump feeds frames from the websocket connection to the router one at
// a time, which keeps each sender's messages in order.
func (c *Client) readPump() {
	defer func() {
		c.gw.unregister(c)
		c.close()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.gw.maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.gw.logger.Warn().Err(err).Str("user_id", c.userID).Msg("websocket read failed")
			}
			break
		}
		// Frames already handed to the mailbox finish even if the peer
		// disconnects meanwhile.
		c.gw.router.Handle(context.Background(), c.userID, c, message)
	}
}

// writePump pumps frames from the send queue to the websocket connection.
// Each frame is one JSON document, so frames are never coalesced.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// serveWs handles websocket requests from the peer. The credential comes
// from the Authorization header or the token query parameter; without a
// valid one the connection is closed with a policy violation before any
// frame is read.
func (g *Gateway) serveWs(w http.ResponseWriter, r *http.Request) {
	userID, authErr := g.auth.Authorize(auth.CredentialFromRequest(r))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if authErr != nil {
		g.logger.Info().Err(authErr).Str("remote_addr", r.RemoteAddr).Msg("rejected unauthenticated connection")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "UNAUTHORIZED"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client := newClient(g, conn, userID)
	g.register(client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go func() {
		// Backlog goes out before the first inbound frame is read.
		// A failed replay is logged by the replayer and retried on the
		// next connect; it never refuses the connection.
		if n, err := g.replayer.Replay(context.Background(), userID, client); err == nil && n > 0 {
			g.logger.Info().Str("user_id", userID).Int("count", n).Msg("replayed undelivered messages")
		}
		client.readPump()
	}()
}
