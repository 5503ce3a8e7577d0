package chat

import "context"

type EventType string

const (
	EventSessionCreated EventType = "session.created"
	EventSessionDeleted EventType = "session.deleted"
	EventTurnSettled    EventType = "turn.settled"
	EventContextCleared EventType = "context.cleared"
	EventHistoryTrimmed EventType = "history.trimmed"
	EventMessageDeleted EventType = "message.deleted"
)

// Event describes a committed change to the conversation store.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	ModelID   string    `json:"model_id,omitempty"`
	MessageID uint64    `json:"message_id,omitempty"`
	Shared    bool      `json:"shared,omitempty"`
	Count     int64     `json:"count,omitempty"`
	At        int64     `json:"at"`
}

// Notifier receives change events after they are committed. Failures are
// logged by the caller and never undo the change.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}
