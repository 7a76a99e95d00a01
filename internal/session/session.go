package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"slices"

	"github.com/deskline/deskline-messenger/internal/lib/logger/sl"
	"github.com/deskline/deskline-messenger/internal/messages"
	"github.com/deskline/deskline-messenger/internal/protocol"
)

// Service is the slice of the message service the session drives.
type Service interface {
	GetChatHistory(ctx context.Context, chatID int64, limit, offset int) ([]messages.MessageView, error)
	SendMessage(ctx context.Context, senderUserID, chatID int64, text string, attachments []messages.CreateAttachment) (*messages.MessageView, error)
}

// View is the snapshot pushed to the embedding shell after every change.
type View struct {
	ActiveChatID int64
	Messages     []messages.MessageView
	Composer     string
	Unread       map[int64]int64
}

type intentKind int

const (
	intentSelectChat intentKind = iota
	intentSetComposer
	intentSend
)

type intent struct {
	kind   intentKind
	chatID int64
	text   string
}

// Orchestrator owns the single active-chat pointer for one connected user.
// All state lives inside Run's loop: user intents arrive over the intents
// channel, broker traffic over the transport client's event channel, and
// nothing else ever touches the fields below.
type Orchestrator struct {
	userID   int64
	svc      Service
	events   <-chan protocol.Frame
	pageSize int
	onUpdate func(View)
	log      *slog.Logger

	intents chan intent

	activeChatID int64
	history      []messages.MessageView
	composer     string
	unread       map[int64]int64
}

func New(
	userID int64,
	svc Service,
	events <-chan protocol.Frame,
	pageSize int,
	onUpdate func(View),
	log *slog.Logger,
) *Orchestrator {
	if pageSize <= 0 {
		pageSize = 50
	}

	return &Orchestrator{
		userID:   userID,
		svc:      svc,
		events:   events,
		pageSize: pageSize,
		onUpdate: onUpdate,
		log:      log.With(slog.String("component", "session"), slog.Int64("user_id", userID)),
		intents:  make(chan intent, 64),
		unread:   make(map[int64]int64),
	}
}

// SelectChat, SetComposer and Send only post intents; the Run loop applies
// them on its own turn.
func (o *Orchestrator) SelectChat(chatID int64) {
	o.intents <- intent{kind: intentSelectChat, chatID: chatID}
}

func (o *Orchestrator) SetComposer(text string) {
	o.intents <- intent{kind: intentSetComposer, text: text}
}

func (o *Orchestrator) Send() {
	o.intents <- intent{kind: intentSend}
}

// Run is the session's single business-logic loop.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case in := <-o.intents:
			o.apply(ctx, in)

		case f, ok := <-o.events:
			if !ok {
				o.log.Info("transport events closed, session is offline")
				o.events = nil
				continue
			}
			o.handleFrame(f)
		}
	}
}

func (o *Orchestrator) apply(ctx context.Context, in intent) {
	switch in.kind {
	case intentSelectChat:
		o.selectChat(ctx, in.chatID)
	case intentSetComposer:
		o.composer = in.text
		o.emit()
	case intentSend:
		o.send(ctx)
	}
}

// selectChat fully replaces the previous view; there is no incremental
// merge between pages or chats.
func (o *Orchestrator) selectChat(ctx context.Context, chatID int64) {
	history, err := o.svc.GetChatHistory(ctx, chatID, o.pageSize, 0)
	if err != nil {
		o.log.Error("load history", sl.Err(err), slog.Int64("chat_id", chatID))
		return
	}

	o.activeChatID = chatID
	o.history = history
	delete(o.unread, chatID)
	o.emit()
}

// send delegates to the service and applies the optimistic echo: the
// broker never loops a message back to its sender, so the returned view is
// appended locally before any fan-out happens.
func (o *Orchestrator) send(ctx context.Context) {
	if o.activeChatID == 0 {
		return
	}

	view, err := o.svc.SendMessage(ctx, o.userID, o.activeChatID, o.composer, nil)
	if err != nil {
		o.log.Warn("send rejected", sl.Err(err), slog.Int64("chat_id", o.activeChatID))
		return
	}

	o.history = append(o.history, *view)
	o.composer = ""
	o.emit()
}

func (o *Orchestrator) handleFrame(f protocol.Frame) {
	if f.Type != protocol.FrameNewMessage {
		return
	}

	if f.ChatID != o.activeChatID {
		o.unread[f.ChatID]++
		o.emit()
		return
	}

	var view messages.MessageView
	if err := json.Unmarshal(f.Payload, &view); err != nil {
		o.log.Warn("malformed new_message payload", sl.Err(err), slog.Int64("chat_id", f.ChatID))
		return
	}

	o.history = append(o.history, view)
	o.emit()
}

func (o *Orchestrator) emit() {
	if o.onUpdate == nil {
		return
	}

	o.onUpdate(View{
		ActiveChatID: o.activeChatID,
		Messages:     slices.Clone(o.history),
		Composer:     o.composer,
		Unread:       maps.Clone(o.unread),
	})
}
