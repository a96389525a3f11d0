package messaging

import (
	"context"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/user"
)

// Repository persists conversations, participants and messages.
// Every method runs on exec[0] when given, so that the Service can compose them in a transaction.
type Repository interface {
	CreateConversation(ctx context.Context, conv Conversation, exec ...core.DBExecutor) (Conversation, error)
	GetConversation(ctx context.Context, id int64, exec ...core.DBExecutor) (Conversation, error)
	// DeleteConversation removes the conversation with its participants, messages and attachments.
	DeleteConversation(ctx context.Context, id int64, exec ...core.DBExecutor) error
	// ListConversations returns the conversations placed in folder for ref, most recently active first.
	ListConversations(ctx context.Context, ref user.Ref, folder Folder, exec ...core.DBExecutor) ([]ConversationSummary, error)

	AddParticipant(ctx context.Context, p Participant, exec ...core.DBExecutor) (Participant, error)
	GetParticipant(ctx context.Context, convID int64, ref user.Ref, exec ...core.DBExecutor) (Participant, error)
	ListParticipants(ctx context.Context, convID int64, exec ...core.DBExecutor) ([]Participant, error)
	CountParticipants(ctx context.Context, convID int64, exec ...core.DBExecutor) (int, error)
	// UpdateParticipant writes the mutable flags of p if its stored version still equals p.Version.
	// It returns core.ErrConflict otherwise.
	UpdateParticipant(ctx context.Context, p Participant, exec ...core.DBExecutor) (Participant, error)
	// DeleteParticipant removes p if its stored version still equals p.Version.
	DeleteParticipant(ctx context.Context, p Participant, exec ...core.DBExecutor) error
	MarkRead(ctx context.Context, p Participant, messageID int64, exec ...core.DBExecutor) error

	// CreateMessage stores msg with its attachments and bumps the conversation's last activity.
	CreateMessage(ctx context.Context, msg Message, exec ...core.DBExecutor) (Message, error)
	GetMessage(ctx context.Context, id int64, exec ...core.DBExecutor) (Message, error)
	ListMessages(ctx context.Context, convID int64, exec ...core.DBExecutor) ([]Message, error)
}

// Roster resolves class members for broadcasts.
type Roster interface {
	HasClass(ctx context.Context, class string) (bool, error)
	Members(ctx context.Context, class string, includeParents bool) ([]user.Ref, error)
}
