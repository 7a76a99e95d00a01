package messagesrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"

	"github.com/deskline/deskline-messenger/internal/messages"
)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// CreateMessage inserts the message and its attachments in one transaction.
func (r *Repo) CreateMessage(
	ctx context.Context,
	chatID, senderUserID int64,
	text string,
	attachments []messages.CreateAttachment,
) (*messages.Message, error) {

	const op = "messages.repo.CreateMessage"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	var row messages.MessageRow
	err = tx.QueryRowxContext(
		ctx,
		tx.Rebind(`INSERT INTO messages (chat_id, sender_user_id, text)
		VALUES (?, ?, NULLIF(?, ''))
		RETURNING id, chat_id, sender_user_id, text, is_pinned, created_at`),
		chatID, senderUserID, text,
	).StructScan(&row)

	if err != nil {
		return nil, fmt.Errorf("%s: insert message: %w", op, err)
	}

	insert := tx.Rebind(`INSERT INTO attachments (message_id, file_key, content_type, filename)
		VALUES (?, ?, ?, ?)
		RETURNING id`)

	atts := make([]messages.Attachment, 0, len(attachments))

	for _, att := range attachments {
		var id int64
		if err := tx.QueryRowxContext(ctx, insert, row.ID, att.FileKey, att.ContentType, att.Filename).Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: insert attachment: %w", op, err)
		}

		atts = append(atts, messages.Attachment{
			ID:          id,
			MessageID:   row.ID,
			FileKey:     att.FileKey,
			ContentType: att.ContentType,
			Filename:    att.Filename,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit tx: %w", op, err)
	}

	msg := messages.NewMessageFromRow(row, atts)

	return &msg, nil
}

func (r *Repo) Message(ctx context.Context, messageID int64) (*messages.Message, error) {
	const op = "messages.repo.Message"

	var row messages.MessageRow
	err := r.db.GetContext(
		ctx,
		&row,
		r.db.Rebind(`SELECT id, chat_id, sender_user_id, text, is_pinned, created_at
		FROM messages
		WHERE id = ?`),
		messageID,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, messages.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	attsByMessage, err := r.attachmentsForMessages(ctx, []int64{row.ID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	msg := messages.NewMessageFromRow(row, attsByMessage[row.ID])

	return &msg, nil
}

// MessagesForChat pages newest-first through the chat and returns the page
// oldest-first, ready for display.
func (r *Repo) MessagesForChat(ctx context.Context, chatID int64, limit, offset int) ([]messages.Message, error) {
	const op = "messages.repo.MessagesForChat"

	var rows []messages.MessageRow
	err := r.db.SelectContext(
		ctx,
		&rows,
		r.db.Rebind(`SELECT id, chat_id, sender_user_id, text, is_pinned, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`),
		chatID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	attsByMessage, err := r.attachmentsForMessages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]messages.Message, 0, len(rows))
	for _, row := range rows {
		result = append(result, messages.NewMessageFromRow(row, attsByMessage[row.ID]))
	}

	slices.Reverse(result)

	return result, nil
}

func (r *Repo) attachmentsForMessages(ctx context.Context, messageIDs []int64) (map[int64][]messages.Attachment, error) {
	const op = "messages.repo.attachmentsForMessages"

	if len(messageIDs) == 0 {
		return map[int64][]messages.Attachment{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, message_id, file_key, content_type, filename
		FROM attachments
		WHERE message_id IN (?)
		ORDER BY id`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	var atts []messages.Attachment
	if err := r.db.SelectContext(ctx, &atts, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	byMessage := make(map[int64][]messages.Attachment, len(messageIDs))
	for _, att := range atts {
		byMessage[att.MessageID] = append(byMessage[att.MessageID], att)
	}

	return byMessage, nil
}

func (r *Repo) ReadReceiptsForMessages(ctx context.Context, messageIDs []int64) ([]messages.ReadReceipt, error) {
	const op = "messages.repo.ReadReceiptsForMessages"

	if len(messageIDs) == 0 {
		return []messages.ReadReceipt{}, nil
	}

	query, args, err := sqlx.In(`SELECT message_id, user_id, read_at
		FROM message_read_status
		WHERE message_id IN (?)
		ORDER BY read_at, user_id`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	var receipts []messages.ReadReceipt
	if err := r.db.SelectContext(ctx, &receipts, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	return receipts, nil
}

// MarkRead records that the user has seen the message. Receipts are
// append-only: a second call for the same (message, user) returns
// (nil, nil) and leaves the original read_at untouched.
func (r *Repo) MarkRead(ctx context.Context, messageID, userID int64) (*messages.ReadReceipt, error) {
	const op = "messages.repo.MarkRead"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.GetContext(ctx, &exists, tx.Rebind(`SELECT 1 FROM messages WHERE id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, messages.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: check message: %w", op, err)
	}

	var receipt messages.ReadReceipt
	err = tx.QueryRowxContext(
		ctx,
		tx.Rebind(`INSERT INTO message_read_status (message_id, user_id)
		VALUES (?, ?)
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING message_id, user_id, read_at`),
		messageID, userID,
	).StructScan(&receipt)

	if errors.Is(err, sql.ErrNoRows) {
		// Already read; not an error.
		return nil, tx.Commit()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: insert receipt: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit tx: %w", op, err)
	}

	return &receipt, nil
}

func (r *Repo) SetPin(ctx context.Context, messageID int64, pinned bool) (*messages.Message, error) {
	const op = "messages.repo.SetPin"

	res, err := r.db.ExecContext(
		ctx,
		r.db.Rebind(`UPDATE messages SET is_pinned = ? WHERE id = ?`),
		pinned, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: update: %w", op, err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, messages.ErrMessageNotFound
	}

	return r.Message(ctx, messageID)
}
