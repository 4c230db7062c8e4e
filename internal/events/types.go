package events

import (
	"time"
)

// EventType identifies the type of event
type EventType string

// Core event types
const (
	// Session events
	SessionMessageAdded EventType = "session.message.added"
	SessionCleared      EventType = "session.cleared"
	SessionActivity     EventType = "session.activity"
	SessionWarning      EventType = "session.warning"

	// Chat controller events
	ChatStateChanged EventType = "chat.state.changed"

	// Selection events
	SelectionChanged EventType = "selection.changed"
)

// Event represents a generic event in the system
type Event[T any] struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Payload   T         `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}

// Publisher defines the interface for publishing events
type Publisher[T any] interface {
	Publish(eventType EventType, payload T, opts ...PublishOption)
}

// PublishOptions contains options for publishing events
type PublishOptions struct {
	SessionID string
}

// PublishOption is a function that modifies publish options
type PublishOption func(*PublishOptions)

// WithSessionID sets the session ID for an event
func WithSessionID(sessionID string) PublishOption {
	return func(opts *PublishOptions) {
		opts.SessionID = sessionID
	}
}

// EventFilter is a function that filters events
type EventFilter func(eventType EventType) bool

// ByType returns a filter accepting only the given event types
func ByType(types ...EventType) EventFilter {
	return func(eventType EventType) bool {
		for _, t := range types {
			if t == eventType {
				return true
			}
		}
		return false
	}
}
