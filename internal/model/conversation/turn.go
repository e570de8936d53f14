package conversation

import "time"

// Role identifies which side of the conversation produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one exchange unit in a session transcript. Audio carries the
// synthesized MP3 for assistant turns and stays empty for user turns.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Audio     []byte    `json:"audio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasAudio reports whether the turn carries playable audio.
func (t Turn) HasAudio() bool {
	return len(t.Audio) > 0
}
