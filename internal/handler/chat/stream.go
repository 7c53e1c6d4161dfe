package chat

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/parkpal/tagchat/backend/internal/model/chat"
	chatservice "github.com/parkpal/tagchat/backend/internal/service/chat"
	"github.com/parkpal/tagchat/backend/pkg/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamHandler delivers the live message feed to subscribers over WebSocket
// or SSE. Both transports carry the same contract: the full ordered message
// list on every change, in order, until the client disconnects or the
// session ends.
type StreamHandler struct {
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
}

// NewStreamHandler creates the subscription handler.
func NewStreamHandler(chatSvc *chatservice.Service) *StreamHandler {
	return &StreamHandler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// CORS is enforced at the HTTP layer.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterStreamRoutes mounts the WebSocket and SSE endpoints.
func (h *StreamHandler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
	r.Get("/stream/{sessionID}", h.handleSSE)
}

type outgoingMessage struct {
	Type      string         `json:"type"`
	Data      []chat.Message `json:"data"`
	Error     string         `json:"error,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

func (h *StreamHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Callbacks arrive on the subscription goroutine while pings come from a
	// ticker goroutine, so writes share a lock.
	var writeMu sync.Mutex
	writeJSON := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	cancel, err := h.chatSvc.Subscribe(sessionID, func(msgs []chat.Message) {
		out := outgoingMessage{Type: "messages", Data: msgs, Timestamp: time.Now().UnixMilli()}
		if out.Data == nil {
			out.Data = []chat.Message{}
		}
		if err := writeJSON(out); err != nil {
			_ = conn.Close()
		}
	})
	if err != nil {
		_ = writeJSON(outgoingMessage{Type: "error", Error: err.Error(), Timestamp: time.Now().UnixMilli()})
		return
	}
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The feed is one-way; the read loop only notices the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] session %s read error: %v", sessionID, err)
			}
			return
		}
	}
}

func (h *StreamHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	feed := make(chan []chat.Message, 1)
	cancel, err := h.chatSvc.Subscribe(sessionID, func(msgs []chat.Message) {
		select {
		case feed <- msgs:
		case <-ctx.Done():
		}
	})
	if err != nil {
		utils.RespondError(w, http.StatusGone, err.Error())
		return
	}
	defer cancel()

	utils.SetupSSEHeaders(w)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msgs := <-feed:
			if msgs == nil {
				msgs = []chat.Message{}
			}
			utils.SendSSEEvent(w, flusher, "messages", msgs)
		case <-heartbeat.C:
			utils.SendSSEChunk(w, flusher, map[string]string{
				"event": "heartbeat",
				"time":  time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}
