package store

import "strings"

// Session is a named conversation thread. StartedAt is epoch milliseconds.
type Session struct {
	ID        string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string `gorm:"type:varchar(255);not null" json:"name"`
	StartedAt int64  `gorm:"not null;index:idx_sessions_started_at" json:"startedAt"`
}

func (Session) TableName() string { return "sessions" }

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one persisted turn. SessionID is a foreign key by convention only;
// cascades are done explicitly inside transactions.
type Message struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string `gorm:"type:varchar(64);not null;index:idx_messages_session_ts,priority:1;index:idx_messages_session_model_ts,priority:1" json:"sessionId"`
	ModelID   string `gorm:"type:varchar(128);not null;index:idx_messages_session_model_ts,priority:2" json:"modelId"`
	Ts        int64  `gorm:"column:ts;not null;index:idx_messages_session_ts,priority:2;index:idx_messages_session_model_ts,priority:3" json:"ts"`

	Role       Role   `gorm:"type:varchar(16);not null" json:"role"`
	Content    string `gorm:"type:text;not null" json:"content"`
	ModelName  string `gorm:"type:varchar(255);not null" json:"modelName"`
	ProviderID string `gorm:"type:varchar(64)" json:"providerId,omitempty"`
}

func (Message) TableName() string { return "messages" }

// Model is the catalog row for one provider model. Name is the user-editable label.
type Model struct {
	ID       string `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Provider string `gorm:"type:varchar(64);not null;index" json:"provider"`
	Name     string `gorm:"type:varchar(255)" json:"name"`
	Enabled  bool   `gorm:"not null;index" json:"enabled"`
	Updated  int64  `json:"updated"`
}

func (Model) TableName() string { return "models" }

// ProviderKey holds a sealed API key for one provider.
type ProviderKey struct {
	ID      string `gorm:"primaryKey;type:varchar(64)"`
	Name    string `gorm:"type:varchar(255)"`
	Sealed  []byte
	Updated int64 `gorm:"not null;index"`
}

func (ProviderKey) TableName() string { return "provider_keys" }

// Label is the display name of a model, falling back to its id.
func (m Model) Label() string {
	if name := strings.TrimSpace(m.Name); name != "" {
		return name
	}
	return m.ID
}
