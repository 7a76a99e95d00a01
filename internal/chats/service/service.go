package chatsservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deskline/deskline-messenger/internal/chats"
	"github.com/deskline/deskline-messenger/internal/users"
)

type Service struct {
	repo  chats.Repo
	users users.Repo
	log   *slog.Logger
}

func New(repo chats.Repo, usersRepo users.Repo, log *slog.Logger) *Service {
	return &Service{repo: repo, users: usersRepo, log: log}
}

// GetChatsForUser assembles the chat list. Display names for every
// participant of every chat are resolved with a single identity-store
// lookup; one-on-one chats take the other participant's name.
func (s *Service) GetChatsForUser(ctx context.Context, userID int64) ([]chats.ChatSummary, error) {
	const op = "chats.service.GetChatsForUser"

	details, err := s.repo.ChatsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var ids []int64
	for _, d := range details {
		for _, p := range d.Participants {
			ids = append(ids, p.UserID)
		}
	}

	resolved, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve names: %w", op, err)
	}

	byID := make(map[int64]users.User, len(resolved))
	for _, u := range resolved {
		byID[u.ID] = u
	}

	summaries := make([]chats.ChatSummary, 0, len(details))

	for _, d := range details {
		members := make([]users.User, 0, len(d.Participants))
		for _, p := range d.Participants {
			members = append(members, byID[p.UserID])
		}

		summaries = append(summaries, chats.ChatSummary{
			ID:           d.Chat.ID,
			Name:         displayName(d, userID, byID),
			Type:         d.Chat.Type,
			Participants: members,
			CreatedAt:    d.Chat.CreatedAt,
		})
	}

	return summaries, nil
}

// displayName ignores the stored name for one-on-one chats: the viewer
// always sees the other participant's name.
func displayName(d chats.ChatDetail, viewerID int64, byID map[int64]users.User) string {
	if d.Chat.Type != chats.TypeOneOnOne {
		return d.Chat.Name
	}

	for _, p := range d.Participants {
		if p.UserID != viewerID {
			return byID[p.UserID].Name
		}
	}

	return d.Chat.Name
}

// CreateChat creates the chat and its initial memberships atomically.
func (s *Service) CreateChat(
	ctx context.Context,
	name string,
	chatType chats.ChatType,
	participants []chats.NewParticipant,
) (*chats.ChatDetail, error) {

	const op = "chats.service.CreateChat"

	if len(participants) == 0 {
		return nil, chats.ErrEmptyParticipants
	}

	if chatType == chats.TypeOneOnOne && len(participants) != 2 {
		return nil, chats.ErrOneOnOneParticipants
	}

	chat, err := s.repo.CreateChat(ctx, name, chatType, participants)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	detail := &chats.ChatDetail{Chat: *chat}
	for _, p := range participants {
		detail.Participants = append(detail.Participants, chats.Participant{
			ChatID: chat.ID,
			UserID: p.UserID,
			Role:   p.Role,
		})
	}

	s.log.Info("chat created",
		slog.Int64("chat_id", chat.ID),
		slog.String("chat_type", string(chatType)),
		slog.Int("participants", len(participants)),
	)

	return detail, nil
}
