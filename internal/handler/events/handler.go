package events

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/parlalabs/parla/backend/internal/service/history"
	"github.com/parlalabs/parla/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler streams transcript turns as Server-Sent Events: the current
// transcript is replayed first, then turns arrive as they are appended.
type Handler struct {
	store *history.Store
}

// New creates the transcript event handler.
func New(store *history.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the SSE route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	snapshot, updates, cancelFollow, err := h.store.Follow(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	defer cancelFollow()

	utils.SetupSSEHeaders(w)

	log.Printf("[sse] opening transcript stream session=%s", sessionID)

	for _, turn := range snapshot {
		utils.SendSSEEvent(w, flusher, "turn", turn)
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] closing transcript stream session=%s", sessionID)
			return
		case turn, open := <-updates:
			if !open {
				// Session deleted, the stream ends with it.
				log.Printf("[sse] session gone, closing stream session=%s", sessionID)
				return
			}
			utils.SendSSEEvent(w, flusher, "turn", turn)
		case <-ticker.C:
			utils.SendSSEComment(w, flusher, "heartbeat")
		}
	}
}
