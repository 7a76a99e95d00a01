package chats

import (
	"context"
	"database/sql"
	"time"

	"github.com/deskline/deskline-messenger/internal/users"
)

type ChatType string

const (
	TypeOneOnOne ChatType = "one_on_one"
	TypeGroup    ChatType = "group"
	TypeChannel  ChatType = "channel"
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

type Chat struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      ChatType  `json:"chat_type"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatRow struct {
	ID        int64          `db:"id"`
	Name      sql.NullString `db:"name"`
	Type      string         `db:"chat_type"`
	CreatedAt time.Time      `db:"created_at"`
}

func NewChatFromRow(row ChatRow) Chat {
	return Chat{
		ID:        row.ID,
		Name:      row.Name.String,
		Type:      ChatType(row.Type),
		CreatedAt: row.CreatedAt,
	}
}

type Participant struct {
	ChatID int64 `json:"chat_id" db:"chat_id"`
	UserID int64 `json:"user_id" db:"user_id"`
	Role   Role  `json:"role" db:"role"`
}

// NewParticipant describes a membership to create together with a chat.
type NewParticipant struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

// ChatDetail is a chat with its memberships as stored, before any
// display-name resolution.
type ChatDetail struct {
	Chat         Chat
	Participants []Participant
}

// ChatSummary is the chat-list item handed to the presentation layer.
// Name is already resolved: for one-on-one chats it is the other
// participant's display name, the stored name is ignored for that type.
type ChatSummary struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Type         ChatType     `json:"chat_type"`
	Participants []users.User `json:"participants"`
	CreatedAt    time.Time    `json:"created_at"`

	// UnreadCount is tracked by the session, never by the store.
	UnreadCount int64 `json:"unread_count"`
}

type Repo interface {
	CreateChat(ctx context.Context, name string, chatType ChatType, participants []NewParticipant) (*Chat, error)
	Chat(ctx context.Context, chatID int64) (*Chat, error)
	ChatsForUser(ctx context.Context, userID int64) ([]ChatDetail, error)
	Participant(ctx context.Context, chatID, userID int64) (*Participant, error)
	DeleteChat(ctx context.Context, chatID int64) error
}
