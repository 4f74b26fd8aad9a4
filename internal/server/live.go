package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"echoping/internal/models"
	"echoping/internal/octet"
)

const (
	liveWriteTimeout = 5 * time.Second
	livePongTimeout  = 60 * time.Second
	livePingInterval = 50 * time.Second
	liveSendBuffer   = 32
	liveReadLimit    = 4096
)

const (
	messageResult  = "result"
	messageOctet   = "octet"
	messageCommit  = "commit"
	messageAddress = "address"
	messageError   = "error"
)

var liveUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// inboundMessage is sent by live clients: per-keystroke octet text or a commit.
type inboundMessage struct {
	Type   string   `json:"type"`
	Field  int      `json:"field"`
	Text   string   `json:"text"`
	Octets []string `json:"octets"`
}

func (m inboundMessage) octets() [4]string {
	var out [4]string
	copy(out[:], m.Octets)
	return out
}

type resultMessage struct {
	Type    string        `json:"type"`
	Result  models.Result `json:"result"`
	Display string        `json:"display"`
}

func newResultMessage(r models.Result) resultMessage {
	return resultMessage{Type: messageResult, Result: r, Display: r.Outcome.String()}
}

type octetMessage struct {
	Type           string  `json:"type"`
	Field          int     `json:"field"`
	Classification string  `json:"classification"`
	Correction     *string `json:"correction,omitempty"`
	Cursor         *int    `json:"cursor,omitempty"`
}

func newOctetMessage(field int, c octet.Classification) octetMessage {
	msg := octetMessage{Type: messageOctet, Field: field, Classification: c.Kind.String()}
	if text, ok := c.Correction(); ok {
		cursor := c.Cursor()
		msg.Correction = &text
		msg.Cursor = &cursor
	}
	return msg
}

type addressMessage struct {
	Type    string   `json:"type"`
	Address string   `json:"address,omitempty"`
	Octets  []string `json:"octets,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// client is one live websocket observer. Its octet fields are only
// touched by the hub goroutine.
type client struct {
	conn   *websocket.Conn
	remote string
	send   chan any
	fields [4]octet.Field
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan any, liveSendBuffer),
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := newClient(conn)
	if !s.hub.join(c) {
		conn.Close()
		return
	}
	go c.writePump()
	c.readPump(s.hub)
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(liveReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(livePongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(livePongTimeout))
	})

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if !h.receive(c, msg) {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(livePingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
