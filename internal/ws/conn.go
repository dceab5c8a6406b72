package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/auth"
	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/cache"
	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/relay"
)

const (
	sendBufferSize = 32
	presenceTTL    = 600 * time.Second
	verifyTimeout  = 1200 * time.Millisecond
)

// Protocol violations reported back to the sender as "error" frames.
var (
	errJoinRequired = errors.New("join required")
	errDocMismatch  = errors.New("document id mismatch")
	errUnknownType  = errors.New("unknown message type")
)

// Conn is one live websocket session, scoped to one document for its whole
// lifetime. userID is bound at join; until then the session is pending and
// may only send "join".
type Conn struct {
	ws  *websocket.Conn
	hub *Hub

	verifier   auth.Verifier
	presence   cache.PresenceCache
	dispatcher *relay.Dispatcher

	docID    string
	token    string
	userID   string
	username string
	joined   bool

	sendMu     sync.Mutex
	send       chan ServerMessage
	sendClosed bool
}

func NewConn(ws *websocket.Conn, hub *Hub, verifier auth.Verifier, presence cache.PresenceCache, dispatcher *relay.Dispatcher, docID, token string) *Conn {
	return &Conn{
		ws:         ws,
		hub:        hub,
		verifier:   verifier,
		presence:   presence,
		dispatcher: dispatcher,
		docID:      docID,
		token:      token,
		send:       make(chan ServerMessage, sendBufferSize),
	}
}

// enqueue queues an outbound frame without blocking. Frames for a session
// whose writer is gone, or whose buffer is full, are dropped: delivery is
// at-most-once per live recipient.
func (c *Conn) enqueue(msg ServerMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Conn) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

func (c *Conn) sendError(msg string) {
	c.enqueue(ServerMessage{Type: TypeError, Message: msg})
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readLoop processes inbound frames until the connection dies, then tears
// the session down exactly as an explicit leave would.
func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		c.leaveRoom(ctx)
		c.closeSend()
		c.ws.Close()
	}()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("bad frame (doc=%s, user=%s): %v", c.docID, c.userID, err)
			c.sendError("invalid message")
			continue
		}
		if done := c.handleMessage(ctx, msg); done {
			return
		}
	}
}

// handleMessage routes one frame. Returns true when the connection must be
// torn down (failed authentication).
func (c *Conn) handleMessage(ctx context.Context, msg ClientMessage) bool {
	if msg.Type == TypeJoin {
		return c.handleJoin(ctx)
	}
	if !c.joined {
		c.sendError(errJoinRequired.Error())
		return false
	}
	switch msg.Type {
	case TypeLeave:
		c.leaveRoom(ctx)
	case TypeEdit:
		c.handleEdit(ctx, msg)
	case TypeCursor:
		c.handleCursor(ctx, msg)
	case TypeSelection:
		c.handleSelection(msg)
	default:
		c.sendError(errUnknownType.Error())
	}
	return false
}

// handleJoin authenticates the session and registers it in the document
// room. Verification awaits the identity provider; other connections keep
// being serviced meanwhile, each on its own goroutine.
func (c *Conn) handleJoin(ctx context.Context) bool {
	if c.joined {
		c.enqueue(ServerMessage{Type: TypeJoined, DocumentID: c.docID})
		return false
	}
	verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	id, err := c.verifier.Verify(verifyCtx, c.token)
	if err != nil {
		log.Printf("join rejected (doc=%s): %v", c.docID, err)
		c.closeWith(websocket.ClosePolicyViolation, "authentication required")
		return true
	}
	c.userID = id.UserID
	c.username = id.Username
	c.joined = true
	c.hub.Join(c.docID, c)
	if c.presence != nil {
		if err := c.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
			log.Printf("presence add error (doc=%s, user=%s): %v", c.docID, c.userID, err)
		}
	}
	c.relay(TypeJoin, "")
	c.enqueue(ServerMessage{Type: TypeJoined, DocumentID: c.docID})
	return false
}

func (c *Conn) handleEdit(ctx context.Context, msg ClientMessage) {
	if msg.DocumentID != "" && msg.DocumentID != c.docID {
		c.sendError(errDocMismatch.Error())
		return
	}
	c.hub.Broadcast(c.docID, c, ServerMessage{
		Type:    TypeEdit,
		Content: msg.Content,
		UserID:  c.userID,
	})
	c.heartbeat(ctx)
	c.relay(TypeEdit, msg.Content)
}

func (c *Conn) handleCursor(ctx context.Context, msg ClientMessage) {
	if msg.Cursor == nil {
		return
	}
	c.hub.Broadcast(c.docID, c, ServerMessage{Type: TypeCursor, Cursor: msg.Cursor})
	if c.presence != nil {
		if b, err := json.Marshal(msg.Cursor); err == nil {
			if err := c.presence.SetCursor(ctx, c.docID, c.userID, b, presenceTTL); err != nil {
				log.Printf("presence cursor error (doc=%s, user=%s): %v", c.docID, c.userID, err)
			}
		}
	}
}

func (c *Conn) handleSelection(msg ClientMessage) {
	if msg.Selection == nil {
		return
	}
	c.hub.Broadcast(c.docID, c, ServerMessage{Type: TypeSelection, Selection: msg.Selection})
}

// leaveRoom removes the session from its room, clears shared presence and
// tells the remaining members so they can purge this user's cursors. Safe
// to call twice: explicit leave followed by the close handler.
func (c *Conn) leaveRoom(ctx context.Context) {
	if !c.joined {
		return
	}
	c.joined = false
	empty := c.hub.Leave(c.docID, c)
	if c.presence != nil {
		if err := c.presence.RemoveMember(ctx, c.docID, c.userID); err != nil {
			log.Printf("presence remove error (doc=%s, user=%s): %v", c.docID, c.userID, err)
		}
		if empty {
			if err := c.presence.ClearDocument(ctx, c.docID); err != nil {
				log.Printf("presence clear error (doc=%s): %v", c.docID, err)
			}
		}
	}
	c.hub.Broadcast(c.docID, c, ServerMessage{
		Type:       TypeLeave,
		DocumentID: c.docID,
		UserID:     c.userID,
	})
	c.relay(TypeLeave, "")
}

// heartbeat refreshes this member's presence TTL on edit activity.
func (c *Conn) heartbeat(ctx context.Context) {
	if c.presence == nil {
		return
	}
	if err := c.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
		log.Printf("presence heartbeat error (doc=%s, user=%s): %v", c.docID, c.userID, err)
	}
}

func (c *Conn) relay(eventType, content string) {
	if c.dispatcher == nil {
		return
	}
	c.dispatcher.Enqueue(relay.Event{
		EventType:  eventType,
		DocumentID: c.docID,
		UserID:     c.userID,
		Content:    content,
		OccurredAt: time.Now(),
	})
}

// closeWith sends a close frame with a reason before dropping the socket.
func (c *Conn) closeWith(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
