package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parlalabs/parla/backend/internal/handler/events"
	"github.com/parlalabs/parla/backend/internal/handler/live"
	"github.com/parlalabs/parla/backend/internal/handler/session"
	"github.com/parlalabs/parla/backend/internal/handler/speech"
	middlewarePkg "github.com/parlalabs/parla/backend/internal/middleware"
	"github.com/parlalabs/parla/backend/internal/service/history"
	"github.com/parlalabs/parla/backend/internal/service/tutor"
	"github.com/parlalabs/parla/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(tutorSvc *tutor.Manager, store *history.Store, speechSvc speech.SpeechService, maxAudioBytes int64) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	sessionHandler := session.New(tutorSvc, store, maxAudioBytes)
	liveHandler := live.New(tutorSvc, store, maxAudioBytes)
	eventsHandler := events.New(store)

	r.Route("/api", func(api chi.Router) {
		sessionHandler.RegisterRoutes(api)
		liveHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)

		// Standalone synthesis stays optional, the pipeline works
		// without it.
		if speechSvc != nil {
			speech.New(speechSvc).RegisterRoutes(api)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
