package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/parlalabs/parla/backend/internal/config"
	speechmodel "github.com/parlalabs/parla/backend/internal/model/speech"
	"github.com/parlalabs/parla/backend/internal/service/speech"
)

// ttscheck synthesizes one phrase through the translate TTS endpoint and
// writes the MP3 to disk. Useful for verifying connectivity and voice
// profiles without starting the API server.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] could not load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	text := flag.String("text", "Ciao! Come stai oggi?", "text to synthesize")
	voice := flag.String("voice", "", "voice profile name, defaults to the configured voice")
	slow := flag.Bool("slow", false, "read the text at reduced speed")
	outputPath := flag.String("out", "", "output file path (default tts-check-<unix>.mp3)")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")

	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		log.Fatal("provide a non-empty -text to synthesize")
	}

	if *voice == "" {
		*voice = cfg.TTS.Voice
	}

	if *outputPath == "" {
		*outputPath = fmt.Sprintf("tts-check-%d.mp3", time.Now().Unix())
	}

	client := speech.NewGoogleTTSClient(&speechmodel.SynthesisConfig{
		BaseURL:     cfg.TTS.BaseURL,
		Voice:       cfg.TTS.Voice,
		MaxChunkLen: cfg.TTS.MaxChunkLen,
		Timeout:     cfg.TTS.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("synthesizing: voice=%s slow=%t chars=%d", *voice, *slow, len(*text))

	result, err := client.Synthesize(ctx, &speechmodel.SynthesisRequest{
		Text:  *text,
		Voice: *voice,
		Slow:  *slow,
	})
	if err != nil {
		log.Fatalf("synthesis failed: %v", err)
	}

	if err := os.WriteFile(*outputPath, result.AudioData, 0o644); err != nil {
		log.Fatalf("failed to write audio file: %v", err)
	}

	log.Printf("synthesis succeeded: wrote %s (%d bytes, %d chunk(s), language=%s)",
		*outputPath, len(result.AudioData), result.Chunks, result.Language)
}
