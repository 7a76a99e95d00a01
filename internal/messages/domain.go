package messages

import (
	"context"
	"database/sql"
	"time"

	"github.com/deskline/deskline-messenger/internal/users"
)

type Message struct {
	ID           int64        `json:"id" db:"id"`
	ChatID       int64        `json:"chat_id" db:"chat_id"`
	SenderUserID int64        `json:"user_id" db:"sender_user_id"`
	Text         string       `json:"text" db:"text"`
	IsPinned     bool         `json:"is_pinned" db:"is_pinned"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	Attachments  []Attachment `json:"attachments"`
}

type MessageRow struct {
	ID           int64          `db:"id"`
	ChatID       int64          `db:"chat_id"`
	SenderUserID int64          `db:"sender_user_id"`
	Text         sql.NullString `db:"text"`
	IsPinned     bool           `db:"is_pinned"`
	CreatedAt    time.Time      `db:"created_at"`
}

func NewMessageFromRow(row MessageRow, attachments []Attachment) Message {
	if attachments == nil {
		attachments = []Attachment{}
	}

	return Message{
		ID:           row.ID,
		ChatID:       row.ChatID,
		SenderUserID: row.SenderUserID,
		Text:         row.Text.String,
		IsPinned:     row.IsPinned,
		CreatedAt:    row.CreatedAt,
		Attachments:  attachments,
	}
}

type Attachment struct {
	ID          int64  `json:"id" db:"id"`
	MessageID   int64  `json:"-" db:"message_id"`
	FileKey     string `json:"file_key" db:"file_key"`
	ContentType string `json:"content_type" db:"content_type"`
	Filename    string `json:"filename" db:"filename"`
}

// CreateAttachment describes a file already sitting in object storage,
// to be bound to the message being created.
type CreateAttachment struct {
	FileKey     string `json:"file_key"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
}

type ReadReceipt struct {
	MessageID int64     `json:"message_id" db:"message_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ReadAt    time.Time `json:"read_at" db:"read_at"`
}

// MessageView is the assembled transfer object: sender and readers carry
// resolved display names, attachments carry presigned download URLs.
// It is what the presentation layer renders and what goes over the wire.
type MessageView struct {
	ID          int64             `json:"id"`
	ChatID      int64             `json:"chat_id"`
	Sender      users.User        `json:"sender"`
	Text        string            `json:"text"`
	IsPinned    bool              `json:"is_pinned"`
	CreatedAt   time.Time         `json:"created_at"`
	Attachments []AttachmentView  `json:"attachments"`
	ReadBy      []ReadReceiptView `json:"read_by"`
}

type AttachmentView struct {
	FileKey     string `json:"file_key"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	URL         string `json:"url,omitempty"`
}

type ReadReceiptView struct {
	User   users.User `json:"user"`
	ReadAt time.Time  `json:"read_at"`
}

type Repo interface {
	CreateMessage(ctx context.Context, chatID, senderUserID int64, text string, attachments []CreateAttachment) (*Message, error)
	Message(ctx context.Context, messageID int64) (*Message, error)
	MessagesForChat(ctx context.Context, chatID int64, limit, offset int) ([]Message, error)
	ReadReceiptsForMessages(ctx context.Context, messageIDs []int64) ([]ReadReceipt, error)
	MarkRead(ctx context.Context, messageID, userID int64) (*ReadReceipt, error)
	SetPin(ctx context.Context, messageID int64, pinned bool) (*Message, error)
}

// Publisher hands a freshly persisted message to the broker. Delivery is
// best-effort: the store write is the success signal, a failed publish
// must never undo it.
type Publisher interface {
	PublishNewMessage(chatID int64, view MessageView) error
}

// AttachmentURLSigner mints short-lived download URLs for attachment keys.
type AttachmentURLSigner interface {
	PresignDownload(ctx context.Context, key string) (string, error)
}
