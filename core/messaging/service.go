package messaging

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/user"
)

// NewParticipants contains the users to add to an existing conversation.
type NewParticipants struct {
	Participants []user.Ref `json:"participants" validate:"required,min=1,dive"`
}

func (np *NewParticipants) Validate(validate *validator.Validate) error {
	return validate.Struct(np)
}

type Service struct {
	db       core.DB
	repo     Repository
	roster   Roster
	notifier Notifier
	policy   Policy
	validate *validator.Validate
	logger   core.Logger

	now func() time.Time
}

func NewService(
	db core.DB,
	repo Repository,
	roster Roster,
	notifier Notifier,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(roster, "roster"),
		vala.IsNotNil(notifier, "notifier"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		db:       db,
		repo:     repo,
		roster:   roster,
		notifier: notifier,
		policy:   NewPolicy(),
		validate: validate,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ParticipantInfo returns the participant row of ref in the conversation, or ErrParticipantNotFound.
func (svc *Service) ParticipantInfo(ctx context.Context, convID int64, ref user.Ref) (Participant, error) {
	return svc.repo.GetParticipant(ctx, convID, ref)
}

// participant returns nil when pr has no row in the conversation.
func (svc *Service) participant(ctx context.Context, convID int64, pr user.Principal, exec ...core.DBExecutor) (*Participant, error) {
	p, err := svc.repo.GetParticipant(ctx, convID, pr.Ref(), exec...)
	if err != nil {
		if errors.Is(err, ErrParticipantNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// authorize loads the caller's participant row and checks action against it.
func (svc *Service) authorize(ctx context.Context, convID int64, pr user.Principal, action Action, exec ...core.DBExecutor) (*Participant, error) {
	p, err := svc.participant(ctx, convID, pr, exec...)
	if err != nil {
		return nil, err
	}
	if err = svc.policy.Authorize(Request{Principal: pr, Action: action, Participant: p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (svc *Service) move(ctx context.Context, pr user.Principal, convID int64, action Action, folder Folder, deleted bool, exec ...core.DBExecutor) error {
	p, err := svc.authorize(ctx, convID, pr, action, exec...)
	if err != nil {
		return err
	}
	p.Folder = folder
	p.IsDeleted = deleted
	_, err = svc.repo.UpdateParticipant(ctx, *p, exec...)
	return err
}

// Archive moves the conversation to the caller's archives. Soft-deleted conversations cannot be archived.
func (svc *Service) Archive(ctx context.Context, pr user.Principal, convID int64) error {
	return svc.move(ctx, pr, convID, ActionArchive, FolderArchive, false)
}

// Delete moves the conversation to the caller's trash.
func (svc *Service) Delete(ctx context.Context, pr user.Principal, convID int64) error {
	return svc.move(ctx, pr, convID, ActionDelete, FolderTrash, true)
}

// Restore moves the conversation back to the caller's reception, whatever folder it was in.
func (svc *Service) Restore(ctx context.Context, pr user.Principal, convID int64) error {
	return svc.move(ctx, pr, convID, ActionRestore, FolderInbox, false)
}

// PermanentlyDelete removes the caller from the conversation for good.
// The conversation and its messages are removed along with the last participant row.
func (svc *Service) PermanentlyDelete(ctx context.Context, pr user.Principal, convID int64) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		p, err := svc.authorize(ctx, convID, pr, ActionPurge, tx)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteParticipant(ctx, *p, tx); err != nil {
			return err
		}

		remaining, err := svc.repo.CountParticipants(ctx, convID, tx)
		if err != nil {
			return err
		}
		if remaining == 0 {
			return svc.repo.DeleteConversation(ctx, convID, tx)
		}
		return nil
	})
}

// DeleteMultiple soft-deletes every conversation of ids the caller participates in, all or nothing.
// It returns the number of conversations deleted.
func (svc *Service) DeleteMultiple(ctx context.Context, pr user.Principal, ids []int64) (int, error) {
	if pr.IsZero() {
		return 0, core.ErrNotAuthenticated
	}
	ids = dedupIDs(ids)
	if len(ids) == 0 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "ids", Error: "this field is required"})
	}

	var count int
	err := core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		for _, id := range ids {
			p, err := svc.participant(ctx, id, pr, tx)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			if err = svc.policy.Authorize(Request{Principal: pr, Action: ActionDelete, Participant: p}); err != nil {
				continue
			}
			p.Folder = FolderTrash
			p.IsDeleted = true
			if _, err = svc.repo.UpdateParticipant(ctx, *p, tx); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// List returns the caller's conversations in folder (reception when empty).
func (svc *Service) List(ctx context.Context, pr user.Principal, folder Folder) ([]ConversationSummary, error) {
	if pr.IsZero() {
		return nil, core.ErrNotAuthenticated
	}
	q := FolderQuery{Folder: folder}
	if err := q.Validate(svc.validate); err != nil {
		return nil, err
	}
	return svc.repo.ListConversations(ctx, pr.Ref(), q.Folder)
}

func (svc *Service) Get(ctx context.Context, pr user.Principal, convID int64) (ConversationDetail, error) {
	if _, err := svc.authorize(ctx, convID, pr, ActionRead); err != nil {
		return ConversationDetail{}, err
	}
	conv, err := svc.repo.GetConversation(ctx, convID)
	if err != nil {
		return ConversationDetail{}, err
	}
	parts, err := svc.repo.ListParticipants(ctx, convID)
	if err != nil {
		return ConversationDetail{}, err
	}
	return ConversationDetail{Conversation: conv, Participants: parts}, nil
}

// Messages returns the conversation's messages in creation order and marks them read for the caller.
func (svc *Service) Messages(ctx context.Context, pr user.Principal, convID int64) ([]Message, error) {
	p, err := svc.authorize(ctx, convID, pr, ActionRead)
	if err != nil {
		return nil, err
	}
	msgs, err := svc.repo.ListMessages(ctx, convID)
	if err != nil {
		return nil, err
	}
	if len(msgs) > 0 {
		if err = svc.repo.MarkRead(ctx, *p, msgs[len(msgs)-1].ID); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// Send posts a message in the conversation. A parent message must belong to the same conversation.
// The message and its attachments are stored in one transaction.
func (svc *Service) Send(ctx context.Context, pr user.Principal, convID int64, nm NewMessage) (Message, error) {
	if err := nm.Validate(svc.validate); err != nil {
		return Message{}, err
	}

	var (
		conv Conversation
		msg  Message
	)
	err := core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		p, err := svc.participant(ctx, convID, pr, tx)
		if err != nil {
			return err
		}
		if p == nil {
			return svc.policy.Authorize(Request{Principal: pr, Action: ActionPost})
		}
		if conv, err = svc.repo.GetConversation(ctx, convID, tx); err != nil {
			return err
		}
		if err = svc.policy.Authorize(Request{Principal: pr, Action: PostAction(conv.Type), Participant: p}); err != nil {
			return err
		}

		msgType := messageType(conv.Type)
		if nm.ParentID > 0 {
			parent, err := svc.repo.GetMessage(ctx, nm.ParentID, tx)
			if err != nil && !errors.Is(err, ErrMessageNotFound) {
				return err
			}
			if err != nil || parent.ConversationID != convID {
				return core.NewValidationError(nil, core.FieldError{
					Field: "parent_id",
					Error: "parent message not found in this conversation",
				})
			}
			msgType = MessageReply
		}

		msg, err = svc.repo.CreateMessage(ctx, svc.message(pr, conv, nm, msgType), tx)
		return err
	})
	if err != nil {
		return Message{}, err
	}

	svc.notify(ctx, pr, conv, msg)
	return msg, nil
}

// Create opens a conversation between the caller, flagged administrator, and the listed participants.
// It returns the new conversation's id.
func (svc *Service) Create(ctx context.Context, pr user.Principal, nc NewConversation) (int64, error) {
	if err := nc.Validate(svc.validate); err != nil {
		return 0, err
	}
	if err := svc.policy.Authorize(Request{Principal: pr, Action: CreateAction(nc.Type)}); err != nil {
		return 0, err
	}

	recipients := user.DedupRefs(nc.Participants, pr.Ref())
	if len(recipients) == 0 {
		return 0, core.NewValidationError(nil, core.FieldError{
			Field: "participants",
			Error: "at least one participant other than yourself is required",
		})
	}

	conv, msg, err := svc.create(ctx, pr, nc.Title, nc.Type, recipients, nc.Message, messageType(nc.Type))
	if err != nil {
		return 0, err
	}
	if msg != nil {
		svc.notify(ctx, pr, conv, *msg)
	}
	return conv.ID, nil
}

// Broadcast opens a class conversation with every member of the class except the caller,
// and posts one message in it. It returns the new conversation's id.
func (svc *Service) Broadcast(ctx context.Context, pr user.Principal, cb ClassBroadcast) (int64, error) {
	if err := svc.policy.Authorize(Request{Principal: pr, Action: ActionBroadcast}); err != nil {
		return 0, err
	}
	if err := cb.Validate(svc.validate); err != nil {
		return 0, err
	}

	ok, err := svc.roster.HasClass(ctx, cb.Class)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "class", Error: "unknown class"})
	}
	members, err := svc.roster.Members(ctx, cb.Class, cb.IncludeParents)
	if err != nil {
		return 0, err
	}
	recipients := user.DedupRefs(members, pr.Ref())
	if len(recipients) == 0 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: "class", Error: "this class has no members"})
	}

	nm := &NewMessage{
		Body:                 cb.Body,
		Importance:           cb.Importance,
		NotificationRequired: cb.NotificationRequired,
		Attachments:          cb.Attachments,
	}
	conv, msg, err := svc.create(ctx, pr, cb.Title, ConversationClass, recipients, nm, MessageBroadcast)
	if err != nil {
		return 0, err
	}
	svc.notify(ctx, pr, conv, *msg)
	return conv.ID, nil
}

func (svc *Service) create(
	ctx context.Context,
	pr user.Principal,
	title string,
	typ ConversationType,
	recipients []user.Ref,
	nm *NewMessage,
	msgType MessageType,
) (conv Conversation, msg *Message, err error) {
	now := svc.now()
	err = core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		conv, err = svc.repo.CreateConversation(ctx, Conversation{
			Title:       title,
			Type:        typ,
			CreatorID:   pr.ID,
			CreatorType: pr.Type,
			CreatedAt:   now,
		}, tx)
		if err != nil {
			return err
		}

		creator := Participant{
			ConversationID: conv.ID,
			UserID:         pr.ID,
			UserType:       pr.Type,
			IsAdmin:        true,
			Folder:         FolderInbox,
			JoinedAt:       now,
		}
		if _, err = svc.repo.AddParticipant(ctx, creator, tx); err != nil {
			return err
		}
		for _, ref := range recipients {
			p := Participant{
				ConversationID: conv.ID,
				UserID:         ref.ID,
				UserType:       ref.Type,
				Folder:         FolderInbox,
				JoinedAt:       now,
			}
			if _, err = svc.repo.AddParticipant(ctx, p, tx); err != nil {
				return err
			}
		}

		if nm != nil {
			m, err := svc.repo.CreateMessage(ctx, svc.message(pr, conv, *nm, msgType), tx)
			if err != nil {
				return err
			}
			msg = &m
		}
		return nil
	})
	if err != nil {
		return Conversation{}, nil, err
	}
	return conv, msg, nil
}

// AddParticipants adds users to the conversation; former participants rejoin it.
// It returns the number of users added.
func (svc *Service) AddParticipants(ctx context.Context, pr user.Principal, convID int64, np NewParticipants) (int, error) {
	if err := np.Validate(svc.validate); err != nil {
		return 0, err
	}

	var added int
	err := core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		if _, err := svc.authorize(ctx, convID, pr, ActionAddParticipants, tx); err != nil {
			return err
		}
		for _, ref := range user.DedupRefs(np.Participants) {
			existing, err := svc.repo.GetParticipant(ctx, convID, ref, tx)
			switch {
			case errors.Is(err, ErrParticipantNotFound):
				p := Participant{
					ConversationID: convID,
					UserID:         ref.ID,
					UserType:       ref.Type,
					Folder:         FolderInbox,
					JoinedAt:       svc.now(),
				}
				if _, err = svc.repo.AddParticipant(ctx, p, tx); err != nil {
					return err
				}
			case err != nil:
				return err
			case existing.HasLeft:
				existing.HasLeft = false
				existing.IsDeleted = false
				existing.Folder = FolderInbox
				if _, err = svc.repo.UpdateParticipant(ctx, existing, tx); err != nil {
					return err
				}
			default:
				continue
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// PromoteModerator makes a member of the conversation a moderator.
func (svc *Service) PromoteModerator(ctx context.Context, pr user.Principal, convID int64, target user.Ref) error {
	return svc.manage(ctx, pr, convID, target, ActionPromote, func(t *Participant) {
		t.IsModerator = true
	})
}

// DemoteModerator makes a moderator of the conversation a regular member.
func (svc *Service) DemoteModerator(ctx context.Context, pr user.Principal, convID int64, target user.Ref) error {
	return svc.manage(ctx, pr, convID, target, ActionDemote, func(t *Participant) {
		t.IsModerator = false
	})
}

// RemoveParticipant marks target as having left. Its folder state is kept.
func (svc *Service) RemoveParticipant(ctx context.Context, pr user.Principal, convID int64, target user.Ref) error {
	return svc.manage(ctx, pr, convID, target, ActionRemoveParticipant, func(t *Participant) {
		t.HasLeft = true
		t.IsModerator = false
	})
}

func (svc *Service) manage(ctx context.Context, pr user.Principal, convID int64, target user.Ref, action Action, mutate func(t *Participant)) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		p, err := svc.participant(ctx, convID, pr, tx)
		if err != nil {
			return err
		}
		if p == nil {
			return svc.policy.Authorize(Request{Principal: pr, Action: action})
		}
		t, err := svc.repo.GetParticipant(ctx, convID, target, tx)
		if err != nil {
			return err
		}
		if err = svc.policy.Authorize(Request{Principal: pr, Action: action, Participant: p, Target: &t}); err != nil {
			return err
		}
		mutate(&t)
		_, err = svc.repo.UpdateParticipant(ctx, t, tx)
		return err
	})
}

// Leave marks the caller as having left the conversation. Administrators cannot leave.
func (svc *Service) Leave(ctx context.Context, pr user.Principal, convID int64) error {
	p, err := svc.authorize(ctx, convID, pr, ActionLeave)
	if err != nil {
		return err
	}
	p.HasLeft = true
	p.IsModerator = false
	_, err = svc.repo.UpdateParticipant(ctx, *p)
	return err
}

func (svc *Service) message(pr user.Principal, conv Conversation, nm NewMessage, typ MessageType) Message {
	msg := Message{
		ConversationID:       conv.ID,
		SenderID:             pr.ID,
		SenderType:           pr.Type,
		Body:                 nm.Body,
		Importance:           nm.Importance,
		IsAnnouncement:       conv.Type == ConversationAnnouncement,
		NotificationRequired: nm.NotificationRequired,
		ReadReceiptRequired:  nm.ReadReceiptRequired,
		Type:                 typ,
		CreatedAt:            svc.now(),
		Attachments:          nm.Attachments,
	}
	if msg.Importance == "" {
		msg.Importance = ImportanceNormal
	}
	if nm.ParentID > 0 {
		msg.ParentID = null.Int64From(nm.ParentID)
	}
	return msg
}

// notify hands msg to the Notifier once it is committed. Failures are only logged.
func (svc *Service) notify(ctx context.Context, pr user.Principal, conv Conversation, msg Message) {
	if !msg.NotificationRequired {
		return
	}
	parts, err := svc.repo.ListParticipants(ctx, conv.ID)
	if err != nil {
		svc.logger.Error("listing participants to notify", err, pr)
		return
	}

	n := Notification{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		Title:          conv.Title,
		Sender:         msg.Sender(),
		SenderName:     pr.Name,
		Importance:     msg.Importance,
	}
	for _, p := range parts {
		if p.HasLeft || p.Ref() == n.Sender {
			continue
		}
		n.Recipients = append(n.Recipients, p.Ref())
	}
	if len(n.Recipients) == 0 {
		return
	}
	if err = svc.notifier.Notify(ctx, n); err != nil {
		svc.logger.Error("notifying participants", err, pr, map[string]interface{}{"conversation_id": conv.ID})
	}
}

func messageType(t ConversationType) MessageType {
	switch t {
	case ConversationAnnouncement:
		return MessageAnnouncement
	case ConversationClass:
		return MessageBroadcast
	default:
		return MessageStandard
	}
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
