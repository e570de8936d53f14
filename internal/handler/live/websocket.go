package live

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/parlalabs/parla/backend/internal/model/conversation"
	"github.com/parlalabs/parla/backend/internal/service/history"
)

// ErrBufferFull marks a recording that outgrew the per-connection cap.
var ErrBufferFull = errors.New("recording buffer full")

const (
	readDeadline = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// TurnPipeline runs committed recordings through the tutoring flow.
type TurnPipeline interface {
	ProcessTurn(ctx context.Context, sessionID string, wav []byte) ([]conversation.Turn, error)
}

// Handler streams recordings over a WebSocket: binary frames buffer audio,
// a commit control frame runs the buffered bytes through the pipeline.
type Handler struct {
	pipeline       TurnPipeline
	store          *history.Store
	maxBufferBytes int
	upgrader       websocket.Upgrader
}

// New creates the live turn handler.
func New(pipeline TurnPipeline, store *history.Store, maxBufferBytes int64) *Handler {
	return &Handler{
		pipeline:       pipeline,
		store:          store,
		maxBufferBytes: int(maxBufferBytes),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the live WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/live", h.handleLive)
}

// controlMessage is a client text frame.
type controlMessage struct {
	Type string `json:"type"` // commit | reset
}

// event is a server text frame.
type event struct {
	Type      string              `json:"type"` // connected | buffered | turn | duplicate | reset | error
	SessionID string              `json:"sessionId,omitempty"`
	Turns     []conversation.Turn `json:"turns,omitempty"`
	Buffered  int                 `json:"buffered,omitempty"`
	Message   string              `json:"message,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// connState is the per-connection recording buffer.
type connState struct {
	sessionID string
	buffer    bytes.Buffer
	max       int
}

func (s *connState) appendChunk(chunk []byte) error {
	if s.max > 0 && s.buffer.Len()+len(chunk) > s.max {
		return ErrBufferFull
	}
	s.buffer.Write(chunk)
	return nil
}

// take drains the buffer and returns the recorded bytes.
func (s *connState) take() []byte {
	data := make([]byte, s.buffer.Len())
	copy(data, s.buffer.Bytes())
	s.buffer.Reset()
	return data
}

// handleLive upgrades the connection and serves the frame loop.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[live] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[live] connection opened session=%s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	go h.pingLoop(ctx, conn)

	state := &connState{sessionID: sessionID, max: h.maxBufferBytes}

	h.send(conn, event{Type: "connected", SessionID: sessionID})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Printf("[live] read error session=%s: %v", sessionID, err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(readDeadline))

			switch messageType {
			case websocket.BinaryMessage:
				h.send(conn, h.handleBinaryFrame(state, data))
			case websocket.TextMessage:
				h.send(conn, h.handleControlFrame(ctx, state, data))
			}
		}
	}
}

// handleBinaryFrame buffers one audio chunk.
func (h *Handler) handleBinaryFrame(state *connState, chunk []byte) event {
	if err := state.appendChunk(chunk); err != nil {
		log.Printf("[live] dropped chunk session=%s buffered=%d chunk=%d: %v",
			state.sessionID, state.buffer.Len(), len(chunk), err)
		return event{Type: "error", SessionID: state.sessionID, Message: err.Error()}
	}
	return event{Type: "buffered", SessionID: state.sessionID, Buffered: state.buffer.Len()}
}

// handleControlFrame decodes and applies one control message. Pipeline
// failures come back as error events, the connection stays usable.
func (h *Handler) handleControlFrame(ctx context.Context, state *connState, raw []byte) event {
	var msg controlMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		return event{Type: "error", SessionID: state.sessionID, Message: "invalid control message"}
	}

	switch msg.Type {
	case "commit":
		audio := state.take()
		if len(audio) == 0 {
			return event{Type: "error", SessionID: state.sessionID, Message: "recording buffer is empty"}
		}

		turns, err := h.pipeline.ProcessTurn(ctx, state.sessionID, audio)
		if err != nil {
			log.Printf("[live] turn failed session=%s: %v", state.sessionID, err)
			return event{Type: "error", SessionID: state.sessionID, Message: err.Error()}
		}
		if turns == nil {
			return event{Type: "duplicate", SessionID: state.sessionID}
		}
		return event{Type: "turn", SessionID: state.sessionID, Turns: turns}

	case "reset":
		state.buffer.Reset()
		return event{Type: "reset", SessionID: state.sessionID}

	default:
		return event{Type: "error", SessionID: state.sessionID, Message: "unsupported control type: " + msg.Type}
	}
}

// send encodes the event with sonic and writes it as one text frame.
func (h *Handler) send(conn *websocket.Conn, ev event) {
	ev.Timestamp = time.Now().Unix()

	data, err := sonic.Marshal(ev)
	if err != nil {
		log.Printf("[live] failed to encode event: %v", err)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[live] write failed: %v", err)
	}
}

// pingLoop keeps the connection alive. Control frames may be written
// concurrently with data frames.
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
