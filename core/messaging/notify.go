package messaging

import (
	"context"

	"github.com/trezcool/ecole/core/user"
)

// Notification announces a new message to the participants who should be told about it out of band.
type Notification struct {
	ConversationID int64      `json:"conversation_id"`
	MessageID      int64      `json:"message_id"`
	Title          string     `json:"title"`
	Sender         user.Ref   `json:"sender"`
	SenderName     string     `json:"sender_name"`
	Importance     Importance `json:"importance"`
	Recipients     []user.Ref `json:"recipients"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
