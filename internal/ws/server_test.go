package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/auth"
)

func newCollabServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	manager := NewManager(hub, auth.NewJWTVerifier(), nil, nil)
	r := gin.New()
	r.GET("/collab/ws", manager.WebSocketConnect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/collab/ws" + query
}

func dialDoc(t *testing.T, srv *httptest.Server, docID, userID string) *websocket.Conn {
	t.Helper()
	token, _, err := auth.SignAccessToken(userID, "user-"+userID, time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?documentId="+docID+"&token="+token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func joinDoc(t *testing.T, conn *websocket.Conn, docID, userID string) {
	t.Helper()
	if err := conn.WriteJSON(ClientMessage{Type: TypeJoin, DocumentID: docID, UserID: userID}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	msg := readFrame(t, conn)
	if msg.Type != TypeJoined || msg.DocumentID != docID {
		t.Fatalf("join ack = %+v, want joined for %s", msg, docID)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg ServerMessage
	if err := conn.ReadJSON(&msg); err == nil {
		t.Fatalf("expected no message, got %+v", msg)
	}
}

func TestEditFanOut(t *testing.T) {
	srv, _ := newCollabServer(t)
	c1 := dialDoc(t, srv, "poem-1", "u1")
	c2 := dialDoc(t, srv, "poem-1", "u2")
	joinDoc(t, c1, "poem-1", "u1")
	joinDoc(t, c2, "poem-1", "u2")

	if err := c1.WriteJSON(ClientMessage{Type: TypeEdit, DocumentID: "poem-1", UserID: "u1", Content: "Hello world"}); err != nil {
		t.Fatalf("write edit: %v", err)
	}

	msg := readFrame(t, c2)
	if msg.Type != TypeEdit || msg.Content != "Hello world" || msg.UserID != "u1" {
		t.Fatalf("recipient got %+v, want edit from u1", msg)
	}
	// The sender must not hear its own edit.
	expectSilence(t, c1)
}

func TestEditIsolatedByDocument(t *testing.T) {
	srv, _ := newCollabServer(t)
	c1 := dialDoc(t, srv, "poem-1", "u1")
	c2 := dialDoc(t, srv, "poem-2", "u2")
	joinDoc(t, c1, "poem-1", "u1")
	joinDoc(t, c2, "poem-2", "u2")

	if err := c1.WriteJSON(ClientMessage{Type: TypeEdit, DocumentID: "poem-1", UserID: "u1", Content: "x"}); err != nil {
		t.Fatalf("write edit: %v", err)
	}
	expectSilence(t, c2)
}

func TestEditBeforeJoinRejected(t *testing.T) {
	srv, _ := newCollabServer(t)
	c1 := dialDoc(t, srv, "poem-1", "u1")
	c2 := dialDoc(t, srv, "poem-1", "u2")
	joinDoc(t, c2, "poem-1", "u2")

	if err := c1.WriteJSON(ClientMessage{Type: TypeEdit, DocumentID: "poem-1", UserID: "u1", Content: "sneaky"}); err != nil {
		t.Fatalf("write edit: %v", err)
	}
	msg := readFrame(t, c1)
	if msg.Type != TypeError {
		t.Fatalf("pre-join edit got %+v, want error", msg)
	}
	// Nothing reached the joined member.
	expectSilence(t, c2)
}

func TestJoinWithoutIdentityClosesConnection(t *testing.T) {
	srv, _ := newCollabServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?documentId=poem-1"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ClientMessage{Type: TypeJoin, DocumentID: "poem-1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("read err = %v, want close error", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
	if !strings.Contains(closeErr.Text, "authentication required") {
		t.Fatalf("close reason = %q", closeErr.Text)
	}
}

func TestMissingDocumentIDClosesConnection(t *testing.T) {
	srv, _ := newCollabServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("read err = %v, want close error", err)
	}
	if !strings.Contains(closeErr.Text, "document id required") {
		t.Fatalf("close reason = %q", closeErr.Text)
	}
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	srv, _ := newCollabServer(t)
	c1 := dialDoc(t, srv, "poem-1", "u1")

	if err := c1.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readFrame(t, c1)
	if msg.Type != TypeError {
		t.Fatalf("malformed frame got %+v, want error", msg)
	}
	// The session is still usable: a join goes through afterwards.
	joinDoc(t, c1, "poem-1", "u1")
}

func TestCursorWithoutPayloadIsNoop(t *testing.T) {
	srv, _ := newCollabServer(t)
	c1 := dialDoc(t, srv, "poem-1", "u1")
	c2 := dialDoc(t, srv, "poem-1", "u2")
	joinDoc(t, c1, "poem-1", "u1")
	joinDoc(t, c2, "poem-1", "u2")

	if err := c1.WriteJSON(ClientMessage{Type: TypeCursor, DocumentID: "poem-1", UserID: "u1"}); err != nil {
		t.Fatalf("write cursor: %v", err)
	}
	expectSilence(t, c2)
}

func TestCursorAndSelectionFanOut(t *testing.T) {
	srv, _ := newCollabServer(t)
	c1 := dialDoc(t, srv, "poem-1", "u1")
	c2 := dialDoc(t, srv, "poem-1", "u2")
	joinDoc(t, c1, "poem-1", "u1")
	joinDoc(t, c2, "poem-1", "u2")

	if err := c1.WriteJSON(ClientMessage{
		Type: TypeCursor, DocumentID: "poem-1", UserID: "u1",
		Cursor: &CursorInfo{Position: 12, UserID: "u1", UserName: "Ada"},
	}); err != nil {
		t.Fatalf("write cursor: %v", err)
	}
	msg := readFrame(t, c2)
	if msg.Type != TypeCursor || msg.Cursor == nil || msg.Cursor.Position != 12 {
		t.Fatalf("cursor broadcast = %+v", msg)
	}

	if err := c1.WriteJSON(ClientMessage{
		Type: TypeSelection, DocumentID: "poem-1", UserID: "u1",
		Selection: &SelectionInfo{Start: 3, End: 9, UserID: "u1"},
	}); err != nil {
		t.Fatalf("write selection: %v", err)
	}
	msg = readFrame(t, c2)
	if msg.Type != TypeSelection || msg.Selection == nil || msg.Selection.End != 9 {
		t.Fatalf("selection broadcast = %+v", msg)
	}
}

func TestEditOnWrongDocumentRejected(t *testing.T) {
	srv, _ := newCollabServer(t)
	c1 := dialDoc(t, srv, "poem-1", "u1")
	joinDoc(t, c1, "poem-1", "u1")

	if err := c1.WriteJSON(ClientMessage{Type: TypeEdit, DocumentID: "poem-2", UserID: "u1", Content: "x"}); err != nil {
		t.Fatalf("write edit: %v", err)
	}
	msg := readFrame(t, c1)
	if msg.Type != TypeError {
		t.Fatalf("cross-document edit got %+v, want error", msg)
	}
}

func TestLeaveBroadcastAndRoomTeardown(t *testing.T) {
	srv, hub := newCollabServer(t)
	c1 := dialDoc(t, srv, "poem-2", "u1")
	c2 := dialDoc(t, srv, "poem-2", "u2")
	joinDoc(t, c1, "poem-2", "u1")
	joinDoc(t, c2, "poem-2", "u2")

	if err := c1.WriteJSON(ClientMessage{Type: TypeLeave, DocumentID: "poem-2", UserID: "u1"}); err != nil {
		t.Fatalf("write leave: %v", err)
	}
	msg := readFrame(t, c2)
	if msg.Type != TypeLeave || msg.UserID != "u1" {
		t.Fatalf("leave broadcast = %+v, want leave from u1", msg)
	}

	// Abrupt close counts as a leave too; the empty room is dropped.
	c2.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize("poem-2") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("RoomSize = %d after both members gone, want 0", hub.RoomSize("poem-2"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDuplicateJoinReacksWithoutRejoining(t *testing.T) {
	srv, hub := newCollabServer(t)
	c1 := dialDoc(t, srv, "poem-1", "u1")
	joinDoc(t, c1, "poem-1", "u1")
	joinDoc(t, c1, "poem-1", "u1")
	if n := hub.RoomSize("poem-1"); n != 1 {
		t.Fatalf("RoomSize = %d after duplicate join, want 1", n)
	}
}
