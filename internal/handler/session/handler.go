package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parlalabs/parla/backend/internal/analysis/reply"
	"github.com/parlalabs/parla/backend/internal/model/conversation"
	"github.com/parlalabs/parla/backend/internal/service/gemini"
	"github.com/parlalabs/parla/backend/internal/service/history"
	"github.com/parlalabs/parla/backend/internal/service/tutor"
)

// TutorService abstracts the tutoring pipeline for the handler.
type TutorService interface {
	StartSession(ctx context.Context) (conversation.Session, []conversation.Turn, error)
	ProcessTurn(ctx context.Context, sessionID string, wav []byte) ([]conversation.Turn, error)
	EndSession(ctx context.Context, sessionID string) error
}

// Handler exposes session lifecycle and turn submission over HTTP.
type Handler struct {
	tutorSvc      TutorService
	store         *history.Store
	maxAudioBytes int64
}

// New creates the session handler.
func New(tutorSvc TutorService, store *history.Store, maxAudioBytes int64) *Handler {
	return &Handler{
		tutorSvc:      tutorSvc,
		store:         store,
		maxAudioBytes: maxAudioBytes,
	}
}

// RegisterRoutes registers the session routes. The live and event
// handlers add their own routes under the same subtree, so registration
// stays flat instead of mounting a subrouter.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreate)
	r.Get("/sessions/{sessionID}", h.handleGet)
	r.Delete("/sessions/{sessionID}", h.handleDelete)
	r.Get("/sessions/{sessionID}/transcript", h.handleTranscript)
	r.Post("/sessions/{sessionID}/turns", h.handleTurn)
}

// handleCreate opens a session and greets the user in Italian.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	session, greeting, err := h.tutorSvc.StartSession(r.Context())
	if err != nil {
		log.Printf("[session] create failed: %v", err)
		respondError(w, statusForPipelineError(err), err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"session":  session,
		"greeting": greeting,
	})
}

// handleGet returns the session metadata.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// handleTranscript returns all turns plus the index of the turn to play
// now. The autoplay index is handed out once per new assistant turn.
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, autoplay, err := h.store.TranscriptWithAutoplay(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"turns":        turns,
		"autoplayTurn": autoplay,
	})
}

// multipartOverhead covers the form framing around the recording bytes.
const multipartOverhead = 1 << 20

// handleTurn accepts one recording as multipart form data and runs it
// through the pipeline.
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// ParseMultipartForm's argument only bounds in-memory buffering, the
	// request size cap needs its own reader.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudioBytes+multipartOverhead)

	if err := r.ParseMultipartForm(h.maxAudioBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "audio recording too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read audio: "+err.Error())
		return
	}

	turns, err := h.tutorSvc.ProcessTurn(r.Context(), sessionID, wav)
	if err != nil {
		log.Printf("[session] turn failed session=%s: %v", sessionID, err)
		respondError(w, statusForPipelineError(err), err.Error())
		return
	}

	if turns == nil {
		// Same recording delivered twice, nothing was appended.
		respondJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"turns": turns})
}

// handleDelete drops the session and its transcript.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.tutorSvc.EndSession(r.Context(), sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// statusForPipelineError maps the pipeline error taxonomy onto HTTP codes.
func statusForPipelineError(err error) int {
	switch {
	case errors.Is(err, history.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, tutor.ErrEmptyAudio):
		return http.StatusBadRequest
	case errors.Is(err, gemini.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, gemini.ErrUploadFailed),
		errors.Is(err, reply.ErrEmptyReply),
		errors.Is(err, reply.ErrMalformedReply):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
