package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/messaging"
	"github.com/trezcool/ecole/core/user"
)

const (
	conversationColumns = "id, title, type, creator_id, creator_type, created_at, last_message_at"
	participantColumns  = "id, conversation_id, user_id, user_type, is_admin, is_moderator, has_left, " +
		"is_deleted, folder, version, joined_at, last_read_message_id"
	messageColumns = "id, conversation_id, sender_id, sender_type, body, importance, is_announcement, " +
		"notification_required, read_receipt_required, parent_id, type, created_at"
	attachmentColumns = "id, message_id, file_name, file_path, mime_type, size"
)

type messagingRepository struct {
	exec core.DBExecutor
}

var _ messaging.Repository = (*messagingRepository)(nil) // interface compliance check

func NewMessagingRepository(exec core.DBExecutor) *messagingRepository {
	return &messagingRepository{exec: exec}
}

func (repo messagingRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps sql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo messagingRepository) CreateConversation(ctx context.Context, conv messaging.Conversation, exec ...core.DBExecutor) (messaging.Conversation, error) {
	ex := repo.getExec(exec)
	conv.CreatedAt = conv.CreatedAt.UTC()
	q := ex.Rebind(`INSERT INTO conversations (title, type, creator_id, creator_type, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	if err := ex.GetContext(ctx, &conv.ID, q, conv.Title, conv.Type, conv.CreatorID, conv.CreatorType, conv.CreatedAt); err != nil {
		return messaging.Conversation{}, errors.Wrap(err, "inserting conversation")
	}
	return conv, nil
}

func (repo messagingRepository) GetConversation(ctx context.Context, id int64, exec ...core.DBExecutor) (messaging.Conversation, error) {
	ex := repo.getExec(exec)
	var conv messaging.Conversation
	q := ex.Rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`)
	if err := ex.GetContext(ctx, &conv, q, id); err != nil {
		return messaging.Conversation{}, trapNoRowsErr(err, messaging.ErrConversationNotFound, "selecting conversation")
	}
	return conv, nil
}

func (repo messagingRepository) DeleteConversation(ctx context.Context, id int64, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	queries := []string{
		`DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)`,
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM participants WHERE conversation_id = ?`,
		`DELETE FROM conversations WHERE id = ?`,
	}
	for _, q := range queries {
		if _, err := ex.ExecContext(ctx, ex.Rebind(q), id); err != nil {
			return errors.Wrap(err, "deleting conversation")
		}
	}
	return nil
}

func (repo messagingRepository) ListConversations(ctx context.Context, ref user.Ref, folder messaging.Folder, exec ...core.DBExecutor) ([]messaging.ConversationSummary, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		SELECT c.id, c.title, c.type, c.creator_id, c.creator_type, c.created_at, c.last_message_at,
			p.folder, p.is_admin, p.is_moderator, p.has_left,
			(
				SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = c.id
					AND m.id > COALESCE(p.last_read_message_id, 0)
					AND NOT (m.sender_id = p.user_id AND m.sender_type = p.user_type)
			) AS unread_count
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = ? AND p.user_type = ? AND p.folder = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC`)

	convs := make([]messaging.ConversationSummary, 0)
	if err := ex.SelectContext(ctx, &convs, q, ref.ID, ref.Type, folder); err != nil {
		return nil, errors.Wrap(err, "selecting conversations")
	}
	return convs, nil
}

func (repo messagingRepository) AddParticipant(ctx context.Context, p messaging.Participant, exec ...core.DBExecutor) (messaging.Participant, error) {
	ex := repo.getExec(exec)
	p.JoinedAt = p.JoinedAt.UTC()
	p.Version = 0
	q := ex.Rebind(`INSERT INTO participants
		(conversation_id, user_id, user_type, is_admin, is_moderator, has_left, is_deleted, folder, version, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := ex.GetContext(ctx, &p.ID, q,
		p.ConversationID, p.UserID, p.UserType, p.IsAdmin, p.IsModerator, p.HasLeft, p.IsDeleted, p.Folder, p.Version, p.JoinedAt,
	)
	if err != nil {
		return messaging.Participant{}, errors.Wrap(err, "inserting participant")
	}
	return p, nil
}

func (repo messagingRepository) GetParticipant(ctx context.Context, convID int64, ref user.Ref, exec ...core.DBExecutor) (messaging.Participant, error) {
	ex := repo.getExec(exec)
	var p messaging.Participant
	q := ex.Rebind(`SELECT ` + participantColumns + ` FROM participants
		WHERE conversation_id = ? AND user_id = ? AND user_type = ?`)
	if err := ex.GetContext(ctx, &p, q, convID, ref.ID, ref.Type); err != nil {
		return messaging.Participant{}, trapNoRowsErr(err, messaging.ErrParticipantNotFound, "selecting participant")
	}
	return p, nil
}

func (repo messagingRepository) ListParticipants(ctx context.Context, convID int64, exec ...core.DBExecutor) ([]messaging.Participant, error) {
	ex := repo.getExec(exec)
	parts := make([]messaging.Participant, 0)
	q := ex.Rebind(`SELECT ` + participantColumns + ` FROM participants WHERE conversation_id = ? ORDER BY id`)
	if err := ex.SelectContext(ctx, &parts, q, convID); err != nil {
		return nil, errors.Wrap(err, "selecting participants")
	}
	return parts, nil
}

func (repo messagingRepository) CountParticipants(ctx context.Context, convID int64, exec ...core.DBExecutor) (int, error) {
	ex := repo.getExec(exec)
	var count int
	q := ex.Rebind(`SELECT COUNT(*) FROM participants WHERE conversation_id = ?`)
	if err := ex.GetContext(ctx, &count, q, convID); err != nil {
		return 0, errors.Wrap(err, "counting participants")
	}
	return count, nil
}

func (repo messagingRepository) UpdateParticipant(ctx context.Context, p messaging.Participant, exec ...core.DBExecutor) (messaging.Participant, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`UPDATE participants
		SET folder = ?, is_deleted = ?, is_moderator = ?, has_left = ?, version = version + 1
		WHERE id = ? AND version = ?`)
	res, err := ex.ExecContext(ctx, q, p.Folder, p.IsDeleted, p.IsModerator, p.HasLeft, p.ID, p.Version)
	if err != nil {
		return messaging.Participant{}, errors.Wrap(err, "updating participant")
	}
	if err = checkSwapped(res); err != nil {
		return messaging.Participant{}, err
	}
	p.Version++
	return p, nil
}

func (repo messagingRepository) DeleteParticipant(ctx context.Context, p messaging.Participant, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	q := ex.Rebind(`DELETE FROM participants WHERE id = ? AND version = ?`)
	res, err := ex.ExecContext(ctx, q, p.ID, p.Version)
	if err != nil {
		return errors.Wrap(err, "deleting participant")
	}
	return checkSwapped(res)
}

// checkSwapped reports a lost compare-and-swap as core.ErrConflict.
func checkSwapped(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return core.ErrConflict
	}
	return nil
}

func (repo messagingRepository) MarkRead(ctx context.Context, p messaging.Participant, messageID int64, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	q := ex.Rebind(`UPDATE participants SET last_read_message_id = ?
		WHERE id = ? AND (last_read_message_id IS NULL OR last_read_message_id < ?)`)
	if _, err := ex.ExecContext(ctx, q, messageID, p.ID, messageID); err != nil {
		return errors.Wrap(err, "marking conversation read")
	}
	return nil
}

func (repo messagingRepository) CreateMessage(ctx context.Context, msg messaging.Message, exec ...core.DBExecutor) (messaging.Message, error) {
	ex := repo.getExec(exec)
	msg.CreatedAt = msg.CreatedAt.UTC()
	q := ex.Rebind(`INSERT INTO messages
		(conversation_id, sender_id, sender_type, body, importance, is_announcement,
		notification_required, read_receipt_required, parent_id, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := ex.GetContext(ctx, &msg.ID, q,
		msg.ConversationID, msg.SenderID, msg.SenderType, msg.Body, msg.Importance, msg.IsAnnouncement,
		msg.NotificationRequired, msg.ReadReceiptRequired, msg.ParentID, msg.Type, msg.CreatedAt,
	)
	if err != nil {
		return messaging.Message{}, errors.Wrap(err, "inserting message")
	}

	aq := ex.Rebind(`INSERT INTO attachments (message_id, file_name, file_path, mime_type, size)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	atts := make([]messaging.Attachment, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		att.MessageID = msg.ID
		if err = ex.GetContext(ctx, &att.ID, aq, att.MessageID, att.FileName, att.FilePath, att.MimeType, att.Size); err != nil {
			return messaging.Message{}, errors.Wrap(err, "inserting attachment")
		}
		atts = append(atts, att)
	}
	msg.Attachments = atts

	cq := ex.Rebind(`UPDATE conversations SET last_message_at = ? WHERE id = ?`)
	if _, err = ex.ExecContext(ctx, cq, msg.CreatedAt, msg.ConversationID); err != nil {
		return messaging.Message{}, errors.Wrap(err, "updating conversation activity")
	}
	return msg, nil
}

func (repo messagingRepository) GetMessage(ctx context.Context, id int64, exec ...core.DBExecutor) (messaging.Message, error) {
	ex := repo.getExec(exec)
	var msg messaging.Message
	q := ex.Rebind(`SELECT ` + messageColumns + ` FROM messages WHERE id = ?`)
	if err := ex.GetContext(ctx, &msg, q, id); err != nil {
		return messaging.Message{}, trapNoRowsErr(err, messaging.ErrMessageNotFound, "selecting message")
	}

	msgs := []messaging.Message{msg}
	if err := repo.loadAttachments(ctx, ex, msgs); err != nil {
		return messaging.Message{}, err
	}
	return msgs[0], nil
}

func (repo messagingRepository) ListMessages(ctx context.Context, convID int64, exec ...core.DBExecutor) ([]messaging.Message, error) {
	ex := repo.getExec(exec)
	msgs := make([]messaging.Message, 0)
	q := ex.Rebind(`SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY id`)
	if err := ex.SelectContext(ctx, &msgs, q, convID); err != nil {
		return nil, errors.Wrap(err, "selecting messages")
	}
	if err := repo.loadAttachments(ctx, ex, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (repo messagingRepository) loadAttachments(ctx context.Context, ex core.DBExecutor, msgs []messaging.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}

	q, args, err := sqlx.In(`SELECT `+attachmentColumns+` FROM attachments WHERE message_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return errors.Wrap(err, "building attachments query")
	}
	var atts []messaging.Attachment
	if err = ex.SelectContext(ctx, &atts, ex.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "selecting attachments")
	}

	byMessage := make(map[int64][]messaging.Attachment, len(msgs))
	for _, att := range atts {
		byMessage[att.MessageID] = append(byMessage[att.MessageID], att)
	}
	for i := range msgs {
		msgs[i].Attachments = byMessage[msgs[i].ID]
		if msgs[i].Attachments == nil {
			msgs[i].Attachments = []messaging.Attachment{}
		}
	}
	return nil
}
