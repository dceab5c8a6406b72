package ws

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/auth"
	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/cache"
	"github.com/mooncakeSG/The-Poetry-Network-sub000/internal/relay"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Some environments omit Origin, or send "null" for file:// pages.
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

// Manager accepts collaboration connections and wires each one to the hub.
type Manager struct {
	hub        *Hub
	verifier   auth.Verifier
	presence   cache.PresenceCache
	dispatcher *relay.Dispatcher
}

func NewManager(hub *Hub, verifier auth.Verifier, presence cache.PresenceCache, dispatcher *relay.Dispatcher) *Manager {
	return &Manager{hub: hub, verifier: verifier, presence: presence, dispatcher: dispatcher}
}

// WebSocketConnect upgrades the request and runs the session to completion.
// The document id is fixed at connect time via ?documentId=; a connection
// without one is closed immediately with a reason the client can log.
// Identity rides ?token= (browsers cannot set headers on websocket dials),
// with the Authorization header as a fallback for non-browser clients, and
// is only checked once the session sends "join".
func (m *Manager) WebSocketConnect(c *gin.Context) {
	docID := c.Query("documentId")
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = extractBearer(c.Request.Header.Get("Authorization"))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	if docID == "" {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "document id required"), deadline)
		conn.Close()
		return
	}

	wsConn := NewConn(conn, m.hub, m.verifier, m.presence, m.dispatcher, docID, token)
	go wsConn.writeLoop()
	wsConn.readLoop(c.Request.Context())
}

func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
