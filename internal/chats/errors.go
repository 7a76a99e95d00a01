package chats

import (
	"errors"
)

var (
	ErrEmptyParticipants    = errors.New("no participants provided")
	ErrChatNotFound         = errors.New("chat not found")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrOneOnOneParticipants = errors.New("one-on-one chat requires exactly two participants")
)
