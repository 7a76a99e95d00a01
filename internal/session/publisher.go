package session

import (
	"github.com/deskline/deskline-messenger/internal/messages"
	"github.com/deskline/deskline-messenger/internal/protocol"
	"github.com/deskline/deskline-messenger/internal/transport/client"
)

// BrokerPublisher adapts the transport client to the message service's
// publish hook.
type BrokerPublisher struct {
	client *client.Client
}

func NewBrokerPublisher(c *client.Client) *BrokerPublisher {
	return &BrokerPublisher{client: c}
}

func (p *BrokerPublisher) PublishNewMessage(chatID int64, view messages.MessageView) error {
	f, err := protocol.NewMessageFrame(chatID, view)
	if err != nil {
		return err
	}

	return p.client.Send(f)
}
