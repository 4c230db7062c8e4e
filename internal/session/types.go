// Package session keeps the persisted chat session: its id, a capped message
// history, and the idle-timeout and archive warnings derived from them.
package session

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Role of a message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation points at the textbook section an answer was drawn from
type Citation struct {
	Section   string  `json:"section"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
	ModuleID  string  `json:"module_id,omitempty"`
	ChapterID string  `json:"chapter_id,omitempty"`
}

// MessageError tags an assistant entry that records a failed request
type MessageError struct {
	Kind string `json:"kind"`
}

// Message is one transcript entry. Messages are never mutated after creation.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Timestamp int64         `json:"timestamp"`
	Citations []Citation    `json:"citations,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Error     *MessageError `json:"error,omitempty"`
}

// IsError reports whether the message records a failure
func (m Message) IsError() bool {
	return m.Error != nil
}

// Time returns the message timestamp as a time.Time
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// NewMessage carries the caller-supplied fields of a message; the store
// assigns the id and timestamp
type NewMessage struct {
	Role      Role
	Content   string
	Citations []Citation
	MessageID string
	Error     *MessageError
}

// Data is the persisted session blob
type Data struct {
	SessionID    string    `json:"session_id"`
	Messages     []Message `json:"messages"`
	CreatedAt    int64     `json:"created_at"`
	LastActivity int64     `json:"last_activity"`
}

// State is a read-only view of the store for renderers
type State struct {
	SessionID      string
	Messages       []Message
	CreatedAt      time.Time
	LastActivity   time.Time
	MessageCount   int
	IsNearLimit    bool
	TimeoutWarning bool
	ArchiveWarning bool
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}

func newSessionID(now time.Time) string {
	return fmt.Sprintf("session-%d-%s", now.UnixMilli(), randomSuffix(7))
}

func newMessageID(now time.Time) string {
	return fmt.Sprintf("msg-%d-%s", now.UnixMilli(), randomSuffix(9))
}
