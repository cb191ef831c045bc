package memory

import (
	"time"

	"medical-intake-agent/internal/assessment"
)

// Turn is one cached utterance.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is the cached working state of one session. Everything in it can be
// rebuilt by replaying the persisted turns.
//
// Turns holds only the most recent window; TranscriptLen and PatientTurns
// count the whole conversation.
type Entry struct {
	SessionID     string                   `json:"session_id"`
	UserID        string                   `json:"user_id"`
	Turns         []Turn                   `json:"turns"`
	TranscriptLen int                      `json:"transcript_len"`
	PatientTurns  int                      `json:"patient_turns"`
	Collected     assessment.CollectedData `json:"collected"`
	Stage         assessment.Stage         `json:"stage"`
	Score         int                      `json:"score"`
	Version       int64                    `json:"version"` // Monotonically increasing for optimistic locking
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// AddTurn appends a turn and drops the oldest ones beyond window.
func (e *Entry) AddTurn(role, content string, at time.Time, window int) {
	e.Turns = TruncateHistory(append(e.Turns, Turn{Role: role, Content: content, Timestamp: at}), window)
	e.TranscriptLen++
}

// Clone returns a deep copy safe to mutate.
func (e *Entry) Clone() *Entry {
	out := *e
	out.Turns = append([]Turn(nil), e.Turns...)
	out.Collected = e.Collected.Clone()
	return &out
}

// TruncateHistory keeps the most recent limit turns. A non-positive limit
// keeps everything.
func TruncateHistory(history []Turn, limit int) []Turn {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return append([]Turn(nil), history[len(history)-limit:]...)
}
