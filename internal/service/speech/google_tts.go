package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/parlalabs/parla/backend/internal/model/speech"
)

const (
	defaultTTSHostScheme = "https://"
	ttsPath              = "/translate_tts"
	defaultMaxChunkLen   = 200
	defaultTimeout       = 30 * time.Second
	slowSpeedParam       = "0.24"

	// The endpoint serves browser traffic, requests without a browser
	// User-Agent are rejected.
	ttsUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// ErrEmptyText marks synthesis requests without any speakable text.
var ErrEmptyText = errors.New("synthesis text is empty")

// GoogleTTSClient synthesizes speech through the translate TTS endpoint.
// Long texts are split on sentence punctuation and fetched chunk by chunk,
// the MP3 segments concatenate into a single playable stream.
type GoogleTTSClient struct {
	config *speech.SynthesisConfig
	client *http.Client
}

// NewGoogleTTSClient creates a translate TTS client.
func NewGoogleTTSClient(config *speech.SynthesisConfig) *GoogleTTSClient {
	timeout := defaultTimeout
	if config != nil && config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}
	return &GoogleTTSClient{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

// SynthesizeText renders text with the configured default voice and returns
// raw MP3 bytes.
func (c *GoogleTTSClient) SynthesizeText(ctx context.Context, text string) ([]byte, error) {
	result, err := c.Synthesize(ctx, &speech.SynthesisRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return result.AudioData, nil
}

// Synthesize renders the request text as MP3 audio.
func (c *GoogleTTSClient) Synthesize(ctx context.Context, req *speech.SynthesisRequest) (*speech.SynthesisResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	profile := ResolveVoice(req.Voice, c.defaultVoice())
	if req.Slow {
		profile.Slow = true
	}

	chunks := splitChunks(text, c.maxChunkLen())

	var audioBuffer bytes.Buffer
	for idx, chunk := range chunks {
		data, err := c.fetchChunk(ctx, profile, chunk, idx, len(chunks))
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize chunk %d/%d: %w", idx+1, len(chunks), err)
		}
		audioBuffer.Write(data)
	}

	if audioBuffer.Len() == 0 {
		return nil, fmt.Errorf("synthesized audio is empty")
	}

	log.Printf("[TTS] synthesized %d chars as %s in %d chunk(s), %d bytes",
		len([]rune(text)), profile.Name, len(chunks), audioBuffer.Len())

	return &speech.SynthesisResult{
		AudioData: audioBuffer.Bytes(),
		Format:    "mp3",
		Chunks:    len(chunks),
		Language:  profile.Language,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (c *GoogleTTSClient) fetchChunk(ctx context.Context, profile VoiceProfile, text string, idx, total int) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("client", "tw-ob")
	params.Set("tl", profile.Language)
	params.Set("q", text)
	params.Set("total", strconv.Itoa(total))
	params.Set("idx", strconv.Itoa(idx))
	params.Set("textlen", strconv.Itoa(len([]rune(text))))
	if profile.Slow {
		params.Set("ttsspeed", slowSpeedParam)
	}

	endpoint := c.endpoint(profile) + "?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build TTS request: %w", err)
	}
	httpReq.Header.Set("User-Agent", ttsUserAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TTS endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read TTS response: %w", err)
	}
	return data, nil
}

func (c *GoogleTTSClient) endpoint(profile VoiceProfile) string {
	if c.config != nil && strings.TrimSpace(c.config.BaseURL) != "" {
		return strings.TrimRight(c.config.BaseURL, "/")
	}
	return defaultTTSHostScheme + profile.Host + ttsPath
}

func (c *GoogleTTSClient) defaultVoice() string {
	if c.config == nil {
		return ""
	}
	return c.config.Voice
}

func (c *GoogleTTSClient) maxChunkLen() int {
	if c.config != nil && c.config.MaxChunkLen > 0 {
		return c.config.MaxChunkLen
	}
	return defaultMaxChunkLen
}

// splitChunks cuts text into pieces at most maxLen runes long, preferring
// sentence punctuation as the cut point, then whitespace. A span without
// either is cut hard at maxLen.
func splitChunks(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}

		cut := findCut(runes, maxLen)
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}

	if len(chunks) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	return chunks
}

func findCut(runes []rune, maxLen int) int {
	for i := maxLen; i > 0; i-- {
		if isSentenceBoundary(runes[i-1]) {
			return i
		}
	}
	for i := maxLen; i > 0; i-- {
		if runes[i-1] == ' ' || runes[i-1] == '\t' {
			return i
		}
	}
	return maxLen
}

func isSentenceBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':', ',', '\n':
		return true
	}
	return false
}
