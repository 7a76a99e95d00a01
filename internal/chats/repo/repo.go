package chatsrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/deskline/deskline-messenger/internal/chats"
)

// Repo persists chats and memberships. Queries are written with `?`
// placeholders and rebound, so the same code runs on postgres and sqlite.
type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// CreateChat inserts the chat and its initial participants in one
// transaction; a chat is never visible without its memberships.
func (r *Repo) CreateChat(
	ctx context.Context,
	name string,
	chatType chats.ChatType,
	participants []chats.NewParticipant,
) (*chats.Chat, error) {

	const op = "chats.repo.CreateChat"

	if len(participants) == 0 {
		return nil, chats.ErrEmptyParticipants
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	var row chats.ChatRow
	err = tx.QueryRowxContext(
		ctx,
		tx.Rebind(`INSERT INTO chats (name, chat_type)
		VALUES (NULLIF(?, ''), ?)
		RETURNING id, name, chat_type, created_at`),
		name, string(chatType),
	).StructScan(&row)

	if err != nil {
		return nil, fmt.Errorf("%s: insert chat: %w", op, err)
	}

	insert := tx.Rebind(`INSERT INTO chat_participants (chat_id, user_id, role)
		VALUES (?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO NOTHING`)

	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, insert, row.ID, p.UserID, string(p.Role)); err != nil {
			return nil, fmt.Errorf("%s: insert participant %d: %w", op, p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit tx: %w", op, err)
	}

	chat := chats.NewChatFromRow(row)

	return &chat, nil
}

func (r *Repo) Chat(ctx context.Context, chatID int64) (*chats.Chat, error) {
	const op = "chats.repo.Chat"

	var row chats.ChatRow
	err := r.db.GetContext(
		ctx,
		&row,
		r.db.Rebind(`SELECT id, name, chat_type, created_at FROM chats WHERE id = ?`),
		chatID,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, chats.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	chat := chats.NewChatFromRow(row)

	return &chat, nil
}

type chatParticipantRow struct {
	chats.ChatRow
	Participant chats.Participant `db:"participant"`
}

// ChatsForUser returns every chat the user participates in, each with its
// full membership, newest chat first.
func (r *Repo) ChatsForUser(ctx context.Context, userID int64) ([]chats.ChatDetail, error) {
	const op = "chats.repo.ChatsForUser"

	rows, err := r.db.QueryxContext(
		ctx,
		r.db.Rebind(`
		SELECT
			c.id,
			c.name,
			c.chat_type,
			c.created_at,

			cp.chat_id AS "participant.chat_id",
			cp.user_id AS "participant.user_id",
			cp.role    AS "participant.role"

		FROM chats c
		JOIN chat_participants me ON me.chat_id = c.id AND me.user_id = ?
		JOIN chat_participants cp ON cp.chat_id = c.id
		ORDER BY c.created_at DESC, c.id DESC, cp.user_id
		`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var (
		details []chats.ChatDetail
		current *chats.ChatDetail
	)

	for rows.Next() {
		var row chatParticipantRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}

		if current == nil || current.Chat.ID != row.ID {
			details = append(details, chats.ChatDetail{Chat: chats.NewChatFromRow(row.ChatRow)})
			current = &details[len(details)-1]
		}

		current.Participants = append(current.Participants, row.Participant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return details, nil
}

func (r *Repo) Participant(ctx context.Context, chatID, userID int64) (*chats.Participant, error) {
	const op = "chats.repo.Participant"

	var p chats.Participant
	err := r.db.GetContext(
		ctx,
		&p,
		r.db.Rebind(`SELECT chat_id, user_id, role
		FROM chat_participants
		WHERE chat_id = ? AND user_id = ?`),
		chatID, userID,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, chats.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &p, nil
}

// DeleteChat removes the chat; participants, messages, attachments and
// read receipts go with it through the cascade.
func (r *Repo) DeleteChat(ctx context.Context, chatID int64) error {
	const op = "chats.repo.DeleteChat"

	res, err := r.db.ExecContext(
		ctx,
		r.db.Rebind(`DELETE FROM chats WHERE id = ?`),
		chatID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		return chats.ErrChatNotFound
	}

	return nil
}
