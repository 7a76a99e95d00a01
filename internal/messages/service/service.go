package messagesservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deskline/deskline-messenger/internal/chats"
	"github.com/deskline/deskline-messenger/internal/lib/logger/sl"
	"github.com/deskline/deskline-messenger/internal/messages"
	"github.com/deskline/deskline-messenger/internal/users"
)

// Service is the single authority on what may happen to messages.
// Every operation fails closed: authorization errors are distinct
// sentinels, never an empty result.
type Service struct {
	repo      messages.Repo
	chats     chats.Repo
	users     users.Repo
	publisher messages.Publisher
	signer    messages.AttachmentURLSigner
	log       *slog.Logger
}

// New wires the service. publisher and signer may be nil: a nil publisher
// skips broker fan-out, a nil signer leaves attachment URLs empty.
func New(
	repo messages.Repo,
	chatsRepo chats.Repo,
	usersRepo users.Repo,
	publisher messages.Publisher,
	signer messages.AttachmentURLSigner,
	log *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		chats:     chatsRepo,
		users:     usersRepo,
		publisher: publisher,
		signer:    signer,
		log:       log,
	}
}

// SendMessage authorizes, persists, assembles the view and publishes it.
// Non-participants are always denied; channels additionally require the
// admin role. The store write is the success signal: a publish failure is
// logged and the persisted view still returned.
func (s *Service) SendMessage(
	ctx context.Context,
	senderUserID, chatID int64,
	text string,
	attachments []messages.CreateAttachment,
) (*messages.MessageView, error) {

	const op = "messages.service.SendMessage"

	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil, messages.ErrTextOrAttachmentsRequired
	}

	chat, err := s.chats.Chat(ctx, chatID)
	if err != nil {
		if errors.Is(err, chats.ErrChatNotFound) {
			return nil, chats.ErrChatNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p, err := s.chats.Participant(ctx, chatID, senderUserID)
	if err != nil {
		if errors.Is(err, chats.ErrParticipantNotFound) {
			return nil, messages.ErrNotParticipant
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if chat.Type == chats.TypeChannel && p.Role != chats.RoleAdmin {
		return nil, messages.ErrChannelAdminOnly
	}

	msg, err := s.repo.CreateMessage(ctx, chatID, senderUserID, text, attachments)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Re-read so the view reflects exactly what was stored.
	stored, err := s.repo.Message(ctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: reload message: %w", op, err)
	}

	views, err := s.assembleViews(ctx, []messages.Message{*stored}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	view := views[0]

	if s.publisher != nil {
		if err := s.publisher.PublishNewMessage(chatID, view); err != nil {
			// Persisted but not fanned out: other clients catch up on
			// their next history load.
			s.log.Warn("publish after persist failed",
				sl.Err(err),
				slog.Int64("chat_id", chatID),
				slog.Int64("message_id", view.ID),
			)
		}
	}

	return &view, nil
}

// GetChatHistory returns a page of messages, oldest first, with sender and
// reader display names resolved in one identity-store lookup.
func (s *Service) GetChatHistory(ctx context.Context, chatID int64, limit, offset int) ([]messages.MessageView, error) {
	const op = "messages.service.GetChatHistory"

	if _, err := s.chats.Chat(ctx, chatID); err != nil {
		if errors.Is(err, chats.ErrChatNotFound) {
			return nil, chats.ErrChatNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	msgs, err := s.repo.MessagesForChat(ctx, chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}

	receipts, err := s.repo.ReadReceiptsForMessages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	views, err := s.assembleViews(ctx, msgs, receipts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return views, nil
}

// PinMessage flips the pin flag. Only an admin participant of the
// message's chat may do so; repeating a pin is a no-op, not an error.
func (s *Service) PinMessage(ctx context.Context, userID, messageID int64, pinned bool) error {
	const op = "messages.service.PinMessage"

	msg, err := s.repo.Message(ctx, messageID)
	if err != nil {
		if errors.Is(err, messages.ErrMessageNotFound) {
			return messages.ErrMessageNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	p, err := s.chats.Participant(ctx, msg.ChatID, userID)
	if err != nil {
		if errors.Is(err, chats.ErrParticipantNotFound) {
			return messages.ErrPinAdminOnly
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if p.Role != chats.RoleAdmin {
		return messages.ErrPinAdminOnly
	}

	if _, err := s.repo.SetPin(ctx, messageID, pinned); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// MarkMessageAsRead is idempotent: at most one receipt ever exists per
// (message, reader), and its read_at is never updated.
func (s *Service) MarkMessageAsRead(ctx context.Context, userID, messageID int64) error {
	const op = "messages.service.MarkMessageAsRead"

	_, err := s.repo.MarkRead(ctx, messageID, userID)
	if err != nil {
		if errors.Is(err, messages.ErrMessageNotFound) {
			return messages.ErrMessageNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) assembleViews(
	ctx context.Context,
	msgs []messages.Message,
	receipts []messages.ReadReceipt,
) ([]messages.MessageView, error) {

	const op = "messages.service.assembleViews"

	var ids []int64
	for _, m := range msgs {
		ids = append(ids, m.SenderUserID)
	}
	for _, r := range receipts {
		ids = append(ids, r.UserID)
	}

	resolved, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve names: %w", op, err)
	}

	byID := make(map[int64]users.User, len(resolved))
	for _, u := range resolved {
		byID[u.ID] = u
	}

	receiptsByMessage := make(map[int64][]messages.ReadReceipt)
	for _, r := range receipts {
		receiptsByMessage[r.MessageID] = append(receiptsByMessage[r.MessageID], r)
	}

	views := make([]messages.MessageView, 0, len(msgs))

	for _, m := range msgs {
		atts := make([]messages.AttachmentView, 0, len(m.Attachments))
		for _, a := range m.Attachments {
			atts = append(atts, messages.AttachmentView{
				FileKey:     a.FileKey,
				ContentType: a.ContentType,
				Filename:    a.Filename,
				URL:         s.presign(ctx, a.FileKey),
			})
		}

		readBy := make([]messages.ReadReceiptView, 0, len(receiptsByMessage[m.ID]))
		for _, r := range receiptsByMessage[m.ID] {
			readBy = append(readBy, messages.ReadReceiptView{
				User:   byID[r.UserID],
				ReadAt: r.ReadAt,
			})
		}

		views = append(views, messages.MessageView{
			ID:          m.ID,
			ChatID:      m.ChatID,
			Sender:      byID[m.SenderUserID],
			Text:        m.Text,
			IsPinned:    m.IsPinned,
			CreatedAt:   m.CreatedAt,
			Attachments: atts,
			ReadBy:      readBy,
		})
	}

	return views, nil
}

func (s *Service) presign(ctx context.Context, key string) string {
	if s.signer == nil {
		return ""
	}

	url, err := s.signer.PresignDownload(ctx, key)
	if err != nil {
		s.log.Warn("presign attachment url failed", sl.Err(err), slog.String("file_key", key))
		return ""
	}

	return url
}
