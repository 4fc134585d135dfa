package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phuslu/log"

	"gmaps-engine/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local UI only
	},
}

// WSHandler streams hub events over a websocket and answers small client
// requests (ping, get_status, pause, resume, stop).
type WSHandler struct {
	Hub     *events.Hub
	Scraper Scraper
}

type wsClientMsg struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsReply struct {
	Type    string    `json:"type"`
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
	At      time.Time `json:"timestamp"`
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("component", "ws").Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	ch := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(ch)

	replies := make(chan wsReply, 8)
	readDone := make(chan struct{})
	go h.readLoop(conn, replies, readDone)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	send := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	if h.Scraper != nil {
		if err := send(wsReply{Type: "initial_status", Success: true, Message: "WebSocket connection established", Data: h.Scraper.Status(), At: time.Now().UTC()}); err != nil {
			return
		}
	}

	for {
		select {
		case <-readDone:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		case rep := <-replies:
			if err := send(rep); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// readLoop owns all reads; writes stay on the Serve goroutine.
func (h *WSHandler) readLoop(conn *websocket.Conn, replies chan<- wsReply, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Str("component", "ws").Err(err).Msg("read")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var m wsClientMsg
		var rep wsReply
		if err := json.Unmarshal(data, &m); err != nil {
			rep = wsReply{Type: "error", Message: "Invalid JSON format"}
		} else {
			rep = h.handle(m)
		}
		rep.At = time.Now().UTC()
		select {
		case replies <- rep:
		default:
			// the writer is behind; the client can ask again
		}
	}
}

func (h *WSHandler) handle(m wsClientMsg) wsReply {
	rep := wsReply{Type: m.Type + "_response", Message: "Unknown message type: " + m.Type}
	if m.Type == events.TypePing {
		return wsReply{Type: events.TypePong, Success: true, Message: "pong"}
	}
	if h.Scraper == nil {
		rep.Message = "Scraper not available"
		return rep
	}

	control := func(fn func() error, ok, fail string) wsReply {
		if err := fn(); err != nil {
			rep.Message = fail + ": " + err.Error()
			return rep
		}
		rep.Success, rep.Message = true, ok
		rep.Data = h.Scraper.Status()
		return rep
	}

	switch m.Type {
	case "get_status":
		rep.Success, rep.Message, rep.Data = true, "Status retrieved", h.Scraper.Status()
	case "get_results":
		rep.Success, rep.Message, rep.Data = true, "Results retrieved", h.Scraper.Results()
	case "pause":
		return control(h.Scraper.Pause, "Scraping paused", "Could not pause scraping")
	case "resume":
		return control(h.Scraper.Resume, "Scraping resumed", "Could not resume scraping")
	case "stop":
		return control(h.Scraper.Stop, "Scraping stopped", "Could not stop scraping")
	}
	return rep
}
