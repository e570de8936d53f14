package speech

// SynthesisConfig configures the translate TTS client.
type SynthesisConfig struct {
	BaseURL     string `json:"baseUrl"`     // endpoint override, empty selects the public host
	Voice       string `json:"voice"`       // default voice profile name
	MaxChunkLen int    `json:"maxChunkLen"` // per-request character cap, 0 selects the endpoint default
	Timeout     int    `json:"timeout"`     // seconds
}
