package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"google.golang.org/genai"
)

// ErrUploadFailed marks a recording that could not be registered with
// the Files API. Upload failures are fatal for the turn and are never
// retried.
var ErrUploadFailed = errors.New("audio upload failed")

// Client wraps the GenAI SDK with the three operations the tutor
// needs: opening a chat context, uploading a recording, and sending a
// message into the context.
type Client struct {
	genai *genai.Client
	model string
}

// NewClient dials the Gemini API.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Client{genai: client, model: model}, nil
}

// StartChat opens a fresh server-side conversation context. The remote
// side owns message ordering, so every send for a session must go
// through the Chat this returns.
func (c *Client) StartChat(ctx context.Context) (*Chat, error) {
	chat, err := c.genai.Chats.Create(ctx, c.model, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return &Chat{client: c, chat: chat}, nil
}

// Chat is one remote conversation context.
type Chat struct {
	client *Client
	chat   *genai.Chat
}

// SendText sends a plain prompt into the conversation and returns the
// model's text. Quota failures are retried per retryOnQuota.
func (ch *Chat) SendText(ctx context.Context, prompt string) (string, error) {
	return ch.send(ctx, genai.Part{Text: prompt})
}

// SendAudio uploads a WAV recording and sends the prompt together with
// the file reference. The upload itself is not retried; only the send
// is, so retries reuse the already-registered file handle.
func (ch *Chat) SendAudio(ctx context.Context, prompt string, wav []byte) (string, error) {
	file, err := ch.client.uploadAudio(ctx, wav)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	return ch.send(ctx,
		genai.Part{Text: prompt},
		genai.Part{FileData: &genai.FileData{FileURI: file.URI, MIMEType: file.MIMEType}},
	)
}

func (ch *Chat) send(ctx context.Context, parts ...genai.Part) (string, error) {
	var text string
	err := retryOnQuota(ctx, func() error {
		resp, err := ch.chat.SendMessage(ctx, parts...)
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// uploadAudio stages the recording in a temp file for the Files API.
// The temp file is removed before returning, on success and failure.
func (c *Client) uploadAudio(ctx context.Context, wav []byte) (*genai.File, error) {
	tmp, err := os.CreateTemp("", "parla-turn-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp audio file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(wav); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp audio file: %w", err)
	}

	file, err := c.genai.Files.UploadFromPath(ctx, tmpPath, &genai.UploadFileConfig{MIMEType: "audio/wav"})
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio: %w", err)
	}

	log.Printf("[gemini] uploaded audio file %s (%d bytes)", file.Name, len(wav))
	return file, nil
}
