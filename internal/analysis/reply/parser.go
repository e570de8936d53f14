package reply

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyReply reports a model response with no text at all. In
	// practice this means the reply was safety-filtered upstream.
	ErrEmptyReply = errors.New("model reply is empty")

	// ErrMalformedReply reports reply text that is not the JSON object
	// the turn prompt demands.
	ErrMalformedReply = errors.New("model reply is not valid JSON")
)

// Reply is the structured payload the turn prompt asks the model for.
// Keys absent from the JSON decode to empty strings.
type Reply struct {
	Transcription   string `json:"transcription"`
	Analysis        string `json:"analysis"`
	ResponseItalian string `json:"response_italian"`
}

// Parse validates raw model output and extracts the reply fields.
// Models occasionally wrap the object in a markdown fence despite the
// prompt forbidding it, so a leading ```json and a trailing ``` are
// stripped before parsing.
func Parse(raw string) (Reply, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Reply{}, ErrEmptyReply
	}

	text = stripFence(text)

	var parsed Reply
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	return parsed, nil
}

func stripFence(text string) string {
	if strings.HasPrefix(text, "```json") {
		text = text[len("```json"):]
	}
	if strings.HasSuffix(text, "```") {
		text = text[:len(text)-len("```")]
	}
	return strings.TrimSpace(text)
}

// UserTurnText renders the transcript entry for the user side of an
// exchange: what the model heard plus its tutoring notes.
func (r Reply) UserTurnText() string {
	return fmt.Sprintf("**Transcription:** %s  \n**Analysis:** %s", r.Transcription, r.Analysis)
}
