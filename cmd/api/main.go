package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parlalabs/parla/backend/internal/config"
	"github.com/parlalabs/parla/backend/internal/handler"
	speechModel "github.com/parlalabs/parla/backend/internal/model/speech"
	"github.com/parlalabs/parla/backend/internal/service/gemini"
	"github.com/parlalabs/parla/backend/internal/service/history"
	"github.com/parlalabs/parla/backend/internal/service/speech"
	"github.com/parlalabs/parla/backend/internal/service/tutor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	geminiClient, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	if err != nil {
		log.Fatalf("failed to initialize Gemini client: %v", err)
	}
	log.Printf("Gemini client ready, model %s", cfg.Gemini.Model)

	speechClient := speech.NewGoogleTTSClient(&speechModel.SynthesisConfig{
		BaseURL:     cfg.TTS.BaseURL,
		Voice:       cfg.TTS.Voice,
		MaxChunkLen: cfg.TTS.MaxChunkLen,
		Timeout:     cfg.TTS.Timeout,
	})

	store := history.NewStore()

	startChat := func(ctx context.Context) (tutor.Conversation, error) {
		return geminiClient.StartChat(ctx)
	}
	tutorSvc := tutor.NewManager(startChat, speechClient, store)

	router := handler.NewRouter(tutorSvc, store, speechClient, cfg.Server.MaxAudioBytes)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Parla backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
