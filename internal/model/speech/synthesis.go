package speech

import "time"

// SynthesisRequest describes one text-to-speech call.
type SynthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"` // voice profile name, e.g. "it", "it-slow"
	Slow  bool   `json:"slow"`  // override: read the text at reduced speed
}

// SynthesisResult carries the synthesized audio.
type SynthesisResult struct {
	AudioData []byte    `json:"-"`
	Format    string    `json:"format"` // always "mp3"
	Chunks    int       `json:"chunks"` // number of endpoint calls the text required
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
}
