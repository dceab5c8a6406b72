package ws

// Message types exchanged over a collaboration socket. Every frame is a
// JSON object with a "type" field; the remaining fields depend on the type.
const (
	TypeJoin      = "join"
	TypeJoined    = "joined"
	TypeLeave     = "leave"
	TypeEdit      = "edit"
	TypeCursor    = "cursor"
	TypeSelection = "selection"
	TypeError     = "error"
)

// CursorInfo is one user's caret position inside a document.
type CursorInfo struct {
	Position int    `json:"position"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// SelectionInfo is one user's selected range inside a document.
type SelectionInfo struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// ClientMessage is an inbound frame from an editor instance.
type ClientMessage struct {
	Type       string         `json:"type"`
	DocumentID string         `json:"documentId"`
	UserID     string         `json:"userId"`
	Content    string         `json:"content,omitempty"`
	Cursor     *CursorInfo    `json:"cursor,omitempty"`
	Selection  *SelectionInfo `json:"selection,omitempty"`
}

// ServerMessage is an outbound frame to an editor instance. Broadcast
// frames carry only the fields relevant to their type; absent fields are
// omitted on the wire.
type ServerMessage struct {
	Type       string         `json:"type"`
	DocumentID string         `json:"documentId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Content    string         `json:"content,omitempty"`
	Cursor     *CursorInfo    `json:"cursor,omitempty"`
	Selection  *SelectionInfo `json:"selection,omitempty"`
	Message    string         `json:"message,omitempty"`
}
