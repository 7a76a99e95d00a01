package messages

import (
	"errors"
)

var (
	ErrMessageNotFound           = errors.New("message not found")
	ErrNotParticipant            = errors.New("sender is not a chat participant")
	ErrChannelAdminOnly          = errors.New("only admins can post to a channel")
	ErrPinAdminOnly              = errors.New("only chat admins can pin messages")
	ErrTextOrAttachmentsRequired = errors.New("text or attachments required")
)
