// Package client implements one editor instance's participation in one
// document's collaboration channel: it relays local edit/cursor/selection
// events to the server, dispatches remote events to the hosting editor and
// reconnects on its own after a network drop.
package client

import (
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/ws"
)

// State reflects where the adapter is in its connection lifecycle, for the
// hosting UI's "disconnected/reconnecting" affordance.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
)

// DefaultReconnectDelay matches the interval the editor frontends use.
const DefaultReconnectDelay = 3 * time.Second

// Callbacks are invoked from the adapter's read goroutine as remote events
// arrive. OnPeerLeave is optional; the rest fire only when set.
type Callbacks struct {
	OnEdit      func(content string)
	OnCursor    func(cursor ws.CursorInfo)
	OnSelection func(selection ws.SelectionInfo)
	OnPeerLeave func(userID string)
}

// Config addresses the collaboration server.
type Config struct {
	// ServerURL is the websocket endpoint, e.g. "ws://localhost:8084/collab/ws".
	ServerURL string
	// ReconnectDelay between a close event and the next dial. Zero means
	// DefaultReconnectDelay.
	ReconnectDelay time.Duration
}

// Adapter is one editor's handle on one document channel.
type Adapter struct {
	cfg      Config
	docID    string
	userID   string
	userName string
	token    string
	cb       Callbacks

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	retryTimer *time.Timer
	closed     bool
}

// New builds the adapter and, when the user is authenticated, starts
// connecting. Without a token no connection is ever attempted and every
// send is a no-op; the editor keeps working locally.
func New(cfg Config, docID, userID, userName, token string, cb Callbacks) *Adapter {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	a := &Adapter{
		cfg:      cfg,
		docID:    docID,
		userID:   userID,
		userName: userName,
		token:    token,
		cb:       cb,
	}
	if a.authenticated() {
		go a.connect()
	}
	return a
}

func (a *Adapter) authenticated() bool {
	return a.token != "" && a.userID != ""
}

// State returns the adapter's current connection state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) dialURL() string {
	return a.cfg.ServerURL + "?documentId=" + url.QueryEscape(a.docID) + "&token=" + url.QueryEscape(a.token)
}

func (a *Adapter) connect() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.state = Connecting
	a.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(a.dialURL(), nil)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		log.Printf("collab dial failed (doc=%s): %v", a.docID, err)
		a.state = Disconnected
		a.scheduleReconnectLocked()
		a.mu.Unlock()
		return
	}
	a.conn = conn
	a.state = Open
	// The channel is open: announce ourselves before anything else.
	err = conn.WriteJSON(ws.ClientMessage{
		Type:       ws.TypeJoin,
		DocumentID: a.docID,
		UserID:     a.userID,
	})
	a.mu.Unlock()
	if err != nil {
		a.handleClose(conn)
		return
	}
	go a.readLoop(conn)
}

func (a *Adapter) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			a.handleClose(conn)
			return
		}
		var msg ws.ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("collab bad frame (doc=%s): %v", a.docID, err)
			continue
		}
		a.dispatch(msg)
	}
}

// dispatch routes a remote event to the hosting editor. Unknown types are
// logged and dropped; the session keeps running.
func (a *Adapter) dispatch(msg ws.ServerMessage) {
	switch msg.Type {
	case ws.TypeJoined:
		log.Printf("collab joined doc=%s", msg.DocumentID)
	case ws.TypeEdit:
		if a.cb.OnEdit != nil {
			a.cb.OnEdit(msg.Content)
		}
	case ws.TypeCursor:
		if msg.Cursor != nil && a.cb.OnCursor != nil {
			a.cb.OnCursor(*msg.Cursor)
		}
	case ws.TypeSelection:
		if msg.Selection != nil && a.cb.OnSelection != nil {
			a.cb.OnSelection(*msg.Selection)
		}
	case ws.TypeLeave:
		if a.cb.OnPeerLeave != nil {
			a.cb.OnPeerLeave(msg.UserID)
		}
	case ws.TypeError:
		log.Printf("collab server error (doc=%s): %s", a.docID, msg.Message)
	default:
		log.Printf("collab unknown message type %q (doc=%s)", msg.Type, a.docID)
	}
}

// handleClose reacts to a dead connection by scheduling a reconnect.
// Multiple failure paths can observe the same close; only the first one for
// the current connection schedules a timer.
func (a *Adapter) handleClose(conn *websocket.Conn) {
	conn.Close()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != conn || a.closed {
		return
	}
	a.conn = nil
	a.state = Disconnected
	a.scheduleReconnectLocked()
}

// scheduleReconnectLocked arms exactly one retry timer. The delay is fixed:
// the adapter keeps retrying at the same interval for as long as it lives.
func (a *Adapter) scheduleReconnectLocked() {
	if a.closed || a.retryTimer != nil {
		return
	}
	a.retryTimer = time.AfterFunc(a.cfg.ReconnectDelay, func() {
		a.mu.Lock()
		a.retryTimer = nil
		a.mu.Unlock()
		a.connect()
	})
}

func (a *Adapter) sendLocked(msg ws.ClientMessage) {
	if a.state != Open || a.conn == nil {
		return
	}
	if err := a.conn.WriteJSON(msg); err != nil {
		log.Printf("collab send failed (doc=%s): %v", a.docID, err)
	}
}

// SendEdit propagates the full local text to the document's other editors.
// A silent no-op while disconnected; local state stays the source of truth.
func (a *Adapter) SendEdit(content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.authenticated() {
		return
	}
	a.sendLocked(ws.ClientMessage{
		Type:       ws.TypeEdit,
		DocumentID: a.docID,
		UserID:     a.userID,
		Content:    content,
	})
}

// SendCursor shares the local caret position.
func (a *Adapter) SendCursor(position int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.authenticated() {
		return
	}
	a.sendLocked(ws.ClientMessage{
		Type:       ws.TypeCursor,
		DocumentID: a.docID,
		UserID:     a.userID,
		Cursor:     &ws.CursorInfo{Position: position, UserID: a.userID, UserName: a.userName},
	})
}

// SendSelection shares the local selected range.
func (a *Adapter) SendSelection(start, end int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.authenticated() {
		return
	}
	a.sendLocked(ws.ClientMessage{
		Type:       ws.TypeSelection,
		DocumentID: a.docID,
		UserID:     a.userID,
		Selection:  &ws.SelectionInfo{Start: start, End: end, UserID: a.userID, UserName: a.userName},
	})
}

// Close says goodbye, cancels any pending reconnect and releases the
// connection. The adapter must not be reused afterwards.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	if a.retryTimer != nil {
		a.retryTimer.Stop()
		a.retryTimer = nil
	}
	if a.conn != nil {
		a.sendLocked(ws.ClientMessage{
			Type:       ws.TypeLeave,
			DocumentID: a.docID,
			UserID:     a.userID,
		})
		a.conn.Close()
		a.conn = nil
	}
	a.state = Disconnected
}
