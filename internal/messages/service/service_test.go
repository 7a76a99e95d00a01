package messagesservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/deskline/deskline-messenger/internal/chats"
	chatsrepo "github.com/deskline/deskline-messenger/internal/chats/repo"
	"github.com/deskline/deskline-messenger/internal/messages"
	messagesrepo "github.com/deskline/deskline-messenger/internal/messages/repo"
	"github.com/deskline/deskline-messenger/internal/storage"
	"github.com/deskline/deskline-messenger/internal/users"
	usersmemory "github.com/deskline/deskline-messenger/internal/users/memory"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	ctx := context.Background()

	db, err := storage.Open(ctx, storage.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capturePublisher struct {
	published []messages.MessageView
	err       error
}

func (p *capturePublisher) PublishNewMessage(chatID int64, view messages.MessageView) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, view)
	return nil
}

type fixture struct {
	svc       *Service
	chatsRepo *chatsrepo.Repo
	publisher *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)

	usersRepo := usersmemory.New(
		users.User{ID: 1, Name: "Alice"},
		users.User{ID: 2, Name: "Bob"},
		users.User{ID: 3, Name: "Carol"},
	)

	cr := chatsrepo.New(db)
	publisher := &capturePublisher{}

	svc := New(messagesrepo.New(db), cr, usersRepo, publisher, nil, discardLogger())

	return &fixture{svc: svc, chatsRepo: cr, publisher: publisher}
}

func (f *fixture) createChat(t *testing.T, chatType chats.ChatType, participants ...chats.NewParticipant) *chats.Chat {
	t.Helper()

	chat, err := f.chatsRepo.CreateChat(context.Background(), "Team", chatType, participants)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	return chat
}

func TestService_SendMessage_GroupAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Group chat with participants {1, 2}; user 3 is not a participant.
	chat := f.createChat(t, chats.TypeGroup,
		chats.NewParticipant{UserID: 1, Role: chats.RoleMember},
		chats.NewParticipant{UserID: 2, Role: chats.RoleMember},
	)

	_, err := f.svc.SendMessage(ctx, 3, chat.ID, "hi", nil)
	if !errors.Is(err, messages.ErrNotParticipant) {
		t.Fatalf("non-participant err = %v, want ErrNotParticipant", err)
	}

	view, err := f.svc.SendMessage(ctx, 1, chat.ID, "hi", nil)
	if err != nil {
		t.Fatalf("participant send: %v", err)
	}
	if view.Text != "hi" {
		t.Errorf("text = %q, want %q", view.Text, "hi")
	}
	if view.Sender.ID != 1 || view.Sender.Name != "Alice" {
		t.Errorf("sender = %+v, want Alice (id 1)", view.Sender)
	}
}

func TestService_SendMessage_ChannelAdminOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	chat := f.createChat(t, chats.TypeChannel,
		chats.NewParticipant{UserID: 1, Role: chats.RoleAdmin},
		chats.NewParticipant{UserID: 2, Role: chats.RoleMember},
	)

	_, err := f.svc.SendMessage(ctx, 2, chat.ID, "x", nil)
	if !errors.Is(err, messages.ErrChannelAdminOnly) {
		t.Fatalf("member post err = %v, want ErrChannelAdminOnly", err)
	}

	if _, err := f.svc.SendMessage(ctx, 1, chat.ID, "x", nil); err != nil {
		t.Fatalf("admin post: %v", err)
	}

	// Non-participants are denied on channels too.
	_, err = f.svc.SendMessage(ctx, 3, chat.ID, "x", nil)
	if !errors.Is(err, messages.ErrNotParticipant) {
		t.Fatalf("non-participant err = %v, want ErrNotParticipant", err)
	}
}

func TestService_SendMessage_ChatNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendMessage(context.Background(), 1, 404, "hi", nil)
	if !errors.Is(err, chats.ErrChatNotFound) {
		t.Fatalf("err = %v, want ErrChatNotFound", err)
	}
}

func TestService_SendMessage_EmptyContent(t *testing.T) {
	f := newFixture(t)

	chat := f.createChat(t, chats.TypeGroup,
		chats.NewParticipant{UserID: 1, Role: chats.RoleMember},
		chats.NewParticipant{UserID: 2, Role: chats.RoleMember},
	)

	_, err := f.svc.SendMessage(context.Background(), 1, chat.ID, "   ", nil)
	if !errors.Is(err, messages.ErrTextOrAttachmentsRequired) {
		t.Fatalf("err = %v, want ErrTextOrAttachmentsRequired", err)
	}
}

func TestService_SendMessage_PublishesView(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	chat := f.createChat(t, chats.TypeGroup,
		chats.NewParticipant{UserID: 1, Role: chats.RoleMember},
		chats.NewParticipant{UserID: 2, Role: chats.RoleMember},
	)

	view, err := f.svc.SendMessage(ctx, 1, chat.ID, "fan me out", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(f.publisher.published) != 1 {
		t.Fatalf("published %d views, want 1", len(f.publisher.published))
	}
	if f.publisher.published[0].ID != view.ID {
		t.Errorf("published view id = %d, want %d", f.publisher.published[0].ID, view.ID)
	}
}

func TestService_SendMessage_PublishFailureStillPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	chat := f.createChat(t, chats.TypeGroup,
		chats.NewParticipant{UserID: 1, Role: chats.RoleMember},
		chats.NewParticipant{UserID: 2, Role: chats.RoleMember},
	)

	view, err := f.svc.SendMessage(ctx, 1, chat.ID, "durable", nil)
	if err != nil {
		t.Fatalf("SendMessage must not fail on publish error, got %v", err)
	}

	history, err := f.svc.GetChatHistory(ctx, chat.ID, 10, 0)
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if len(history) != 1 || history[0].ID != view.ID {
		t.Fatalf("message not persisted despite publish failure")
	}
}

func TestService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	chat := f.createChat(t, chats.TypeGroup,
		chats.NewParticipant{UserID: 1, Role: chats.RoleMember},
		chats.NewParticipant{UserID: 2, Role: chats.RoleMember},
	)

	sent, err := f.svc.SendMessage(ctx, 2, chat.ID, "round trip", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	history, err := f.svc.GetChatHistory(ctx, chat.ID, 10, 0)
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %d messages, want 1", len(history))
	}

	got := history[0]
	if got.Text != sent.Text {
		t.Errorf("text = %q, want %q", got.Text, sent.Text)
	}
	if got.Sender.ID != sent.Sender.ID {
		t.Errorf("sender id = %d, want %d", got.Sender.ID, sent.Sender.ID)
	}
	if !got.CreatedAt.Equal(sent.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, sent.CreatedAt)
	}
}

func TestService_GetChatHistory_ReadReceipts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	chat := f.createChat(t, chats.TypeGroup,
		chats.NewParticipant{UserID: 1, Role: chats.RoleMember},
		chats.NewParticipant{UserID: 2, Role: chats.RoleMember},
		chats.NewParticipant{UserID: 3, Role: chats.RoleMember},
	)

	sent, err := f.svc.SendMessage(ctx, 1, chat.ID, "read me", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	for _, readerID := range []int64{2, 3} {
		if err := f.svc.MarkMessageAsRead(ctx, readerID, sent.ID); err != nil {
			t.Fatalf("MarkMessageAsRead(%d): %v", readerID, err)
		}
	}

	history, err := f.svc.GetChatHistory(ctx, chat.ID, 10, 0)
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}

	readBy := history[0].ReadBy
	if len(readBy) != 2 {
		t.Fatalf("read_by = %d, want 2", len(readBy))
	}

	names := map[string]bool{}
	for _, r := range readBy {
		names[r.User.Name] = true
	}
	if !names["Bob"] || !names["Carol"] {
		t.Errorf("read_by names = %v, want Bob and Carol", names)
	}
}

func TestService_MarkMessageAsRead_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	chat := f.createChat(t, chats.TypeGroup,
		chats.NewParticipant{UserID: 1, Role: chats.RoleMember},
		chats.NewParticipant{UserID: 2, Role: chats.RoleMember},
	)

	sent, err := f.svc.SendMessage(ctx, 1, chat.ID, "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if err := f.svc.MarkMessageAsRead(ctx, 2, sent.ID); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := f.svc.MarkMessageAsRead(ctx, 2, sent.ID); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	history, err := f.svc.GetChatHistory(ctx, chat.ID, 10, 0)
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if len(history[0].ReadBy) != 1 {
		t.Errorf("read_by = %d, want exactly 1", len(history[0].ReadBy))
	}

	if err := f.svc.MarkMessageAsRead(ctx, 2, 404); !errors.Is(err, messages.ErrMessageNotFound) {
		t.Errorf("missing message err = %v, want ErrMessageNotFound", err)
	}
}

func TestService_PinMessage_AdminOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	chat := f.createChat(t, chats.TypeGroup,
		chats.NewParticipant{UserID: 1, Role: chats.RoleAdmin},
		chats.NewParticipant{UserID: 2, Role: chats.RoleMember},
	)

	sent, err := f.svc.SendMessage(ctx, 2, chat.ID, "important", nil)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if err := f.svc.PinMessage(ctx, 2, sent.ID, true); !errors.Is(err, messages.ErrPinAdminOnly) {
		t.Fatalf("member pin err = %v, want ErrPinAdminOnly", err)
	}
	if err := f.svc.PinMessage(ctx, 3, sent.ID, true); !errors.Is(err, messages.ErrPinAdminOnly) {
		t.Fatalf("outsider pin err = %v, want ErrPinAdminOnly", err)
	}

	if err := f.svc.PinMessage(ctx, 1, sent.ID, true); err != nil {
		t.Fatalf("admin pin: %v", err)
	}

	// Pin idempotence: pinning a pinned message changes nothing.
	if err := f.svc.PinMessage(ctx, 1, sent.ID, true); err != nil {
		t.Fatalf("repeat pin: %v", err)
	}

	history, err := f.svc.GetChatHistory(ctx, chat.ID, 10, 0)
	if err != nil {
		t.Fatalf("GetChatHistory: %v", err)
	}
	if !history[0].IsPinned {
		t.Error("message not pinned")
	}

	if err := f.svc.PinMessage(ctx, 1, 404, true); !errors.Is(err, messages.ErrMessageNotFound) {
		t.Errorf("missing message err = %v, want ErrMessageNotFound", err)
	}
}
