package ws

import "testing"

func newTestConn(hub *Hub, docID, userID string) *Conn {
	c := NewConn(nil, hub, nil, nil, nil, docID, "")
	c.userID = userID
	c.joined = true
	return c
}

func drain(c *Conn) []ServerMessage {
	var out []ServerMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	a := newTestConn(hub, "poem-1", "u-a")
	b := newTestConn(hub, "poem-1", "u-b")
	c := newTestConn(hub, "poem-1", "u-c")
	hub.Join("poem-1", a)
	hub.Join("poem-1", b)
	hub.Join("poem-1", c)

	hub.Broadcast("poem-1", a, ServerMessage{Type: TypeEdit, Content: "Hello world", UserID: "u-a"})

	for _, recipient := range []*Conn{b, c} {
		msgs := drain(recipient)
		if len(msgs) != 1 {
			t.Fatalf("recipient %s got %d messages, want 1", recipient.userID, len(msgs))
		}
		if msgs[0].Content != "Hello world" || msgs[0].UserID != "u-a" {
			t.Fatalf("recipient %s got %+v", recipient.userID, msgs[0])
		}
	}
	if msgs := drain(a); len(msgs) != 0 {
		t.Fatalf("sender received its own broadcast: %+v", msgs)
	}
}

func TestBroadcastScopedToDocument(t *testing.T) {
	hub := NewHub()
	a := newTestConn(hub, "poem-1", "u-a")
	b := newTestConn(hub, "poem-2", "u-b")
	hub.Join("poem-1", a)
	hub.Join("poem-2", b)

	hub.Broadcast("poem-1", nil, ServerMessage{Type: TypeEdit, Content: "x"})

	if msgs := drain(a); len(msgs) != 1 {
		t.Fatalf("same-document member got %d messages, want 1", len(msgs))
	}
	if msgs := drain(b); len(msgs) != 0 {
		t.Fatalf("other-document member observed the broadcast: %+v", msgs)
	}
}

func TestLeaveDropsEmptyRoom(t *testing.T) {
	hub := NewHub()
	a := newTestConn(hub, "poem-2", "u-a")
	b := newTestConn(hub, "poem-2", "u-b")
	hub.Join("poem-2", a)
	hub.Join("poem-2", b)

	if empty := hub.Leave("poem-2", a); empty {
		t.Fatal("room reported empty with a member remaining")
	}
	if empty := hub.Leave("poem-2", b); !empty {
		t.Fatal("room not reported empty after last leave")
	}
	if n := hub.RoomSize("poem-2"); n != 0 {
		t.Fatalf("RoomSize = %d after teardown, want 0", n)
	}

	// A later join starts a fresh group.
	c := newTestConn(hub, "poem-2", "u-c")
	hub.Join("poem-2", c)
	if n := hub.RoomSize("poem-2"); n != 1 {
		t.Fatalf("RoomSize = %d after rejoin, want 1", n)
	}
}

func TestLeaveUnknownRoom(t *testing.T) {
	hub := NewHub()
	c := newTestConn(hub, "poem-9", "u-a")
	if empty := hub.Leave("poem-9", c); empty {
		t.Fatal("leaving a room never joined reported it empty")
	}
}

func TestEnqueueDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	c := newTestConn(hub, "poem-1", "u-a")
	for i := 0; i < sendBufferSize+10; i++ {
		c.enqueue(ServerMessage{Type: TypeEdit, Content: "x"})
	}
	if got := len(c.send); got != sendBufferSize {
		t.Fatalf("buffered %d messages, want %d", got, sendBufferSize)
	}
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	hub := NewHub()
	c := newTestConn(hub, "poem-1", "u-a")
	c.closeSend()
	c.enqueue(ServerMessage{Type: TypeEdit, Content: "x"}) // must not panic
	c.closeSend()                                          // idempotent
}
