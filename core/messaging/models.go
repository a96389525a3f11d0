package messaging

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/user"
)

type ConversationType string

const (
	ConversationStandard     ConversationType = "standard"
	ConversationClass        ConversationType = "classe"
	ConversationAnnouncement ConversationType = "annonce"
)

var ConversationTypes = []ConversationType{ConversationStandard, ConversationClass, ConversationAnnouncement}

func (t ConversationType) IsValid() bool {
	for _, typ := range ConversationTypes {
		if t == typ {
			return true
		}
	}
	return false
}

type Importance string

const (
	ImportanceNormal    Importance = "normal"
	ImportanceImportant Importance = "important"
	ImportanceUrgent    Importance = "urgent"
)

func (i Importance) IsValid() bool {
	return i == ImportanceNormal || i == ImportanceImportant || i == ImportanceUrgent
}

// Folder is where a conversation sits for one participant.
type Folder string

const (
	FolderInbox   Folder = "reception"
	FolderArchive Folder = "archives"
	FolderTrash   Folder = "corbeille"
)

var Folders = []Folder{FolderInbox, FolderArchive, FolderTrash}

func (f Folder) IsValid() bool {
	return f == FolderInbox || f == FolderArchive || f == FolderTrash
}

type MessageType string

const (
	MessageStandard     MessageType = "standard"
	MessageReply        MessageType = "reponse"
	MessageAnnouncement MessageType = "annonce"
	MessageBroadcast    MessageType = "classe"
)

// Role is the role of a participant inside one conversation.
type Role string

const (
	RoleAdministrator Role = "administrateur"
	RoleModerator     Role = "moderateur"
	RoleMember        Role = "membre"
	RoleFormer        Role = "ancien" // has left or was removed
)

type Conversation struct {
	ID            int64            `db:"id" json:"id"`
	Title         string           `db:"title" json:"title"`
	Type          ConversationType `db:"type" json:"type"`
	CreatorID     int64            `db:"creator_id" json:"creator_id"`
	CreatorType   user.Type        `db:"creator_type" json:"creator_type"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`           // UTC
	LastMessageAt null.Time        `db:"last_message_at" json:"last_message_at"` // UTC
}

func (c Conversation) Creator() user.Ref {
	return user.Ref{ID: c.CreatorID, Type: c.CreatorType}
}

type Participant struct {
	ID                int64      `db:"id" json:"-"`
	ConversationID    int64      `db:"conversation_id" json:"conversation_id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	UserType          user.Type  `db:"user_type" json:"user_type"`
	IsAdmin           bool       `db:"is_admin" json:"is_admin"`
	IsModerator       bool       `db:"is_moderator" json:"is_moderator"`
	HasLeft           bool       `db:"has_left" json:"has_left"`
	IsDeleted         bool       `db:"is_deleted" json:"is_deleted"`
	Folder            Folder     `db:"folder" json:"folder"`
	Version           int64      `db:"version" json:"version"`
	JoinedAt          time.Time  `db:"joined_at" json:"joined_at"` // UTC
	LastReadMessageID null.Int64 `db:"last_read_message_id" json:"last_read_message_id"`
}

func (p Participant) Ref() user.Ref {
	return user.Ref{ID: p.UserID, Type: p.UserType}
}

func (p Participant) Role() Role {
	switch {
	case p.HasLeft:
		return RoleFormer
	case p.IsAdmin:
		return RoleAdministrator
	case p.IsModerator:
		return RoleModerator
	default:
		return RoleMember
	}
}

type Attachment struct {
	ID        int64  `db:"id" json:"id"`
	MessageID int64  `db:"message_id" json:"-"`
	FileName  string `db:"file_name" json:"file_name" validate:"required,notblank,max=255"`
	FilePath  string `db:"file_path" json:"file_path" validate:"required,notblank"`
	MimeType  string `db:"mime_type" json:"mime_type" validate:"max=127"`
	Size      int64  `db:"size" json:"size" validate:"gte=0"`
}

type Message struct {
	ID                   int64        `db:"id" json:"id"`
	ConversationID       int64        `db:"conversation_id" json:"conversation_id"`
	SenderID             int64        `db:"sender_id" json:"sender_id"`
	SenderType           user.Type    `db:"sender_type" json:"sender_type"`
	Body                 string       `db:"body" json:"body"`
	Importance           Importance   `db:"importance" json:"importance"`
	IsAnnouncement       bool         `db:"is_announcement" json:"is_announcement"`
	NotificationRequired bool         `db:"notification_required" json:"notification_required"`
	ReadReceiptRequired  bool         `db:"read_receipt_required" json:"read_receipt_required"`
	ParentID             null.Int64   `db:"parent_id" json:"parent_id"`
	Type                 MessageType  `db:"type" json:"type"`
	CreatedAt            time.Time    `db:"created_at" json:"created_at"` // UTC
	Attachments          []Attachment `db:"-" json:"attachments"`
}

func (m Message) Sender() user.Ref {
	return user.Ref{ID: m.SenderID, Type: m.SenderType}
}

// ConversationSummary is one line of a participant's folder listing.
type ConversationSummary struct {
	Conversation
	Folder      Folder `db:"folder" json:"folder"`
	IsAdmin     bool   `db:"is_admin" json:"is_admin"`
	IsModerator bool   `db:"is_moderator" json:"is_moderator"`
	HasLeft     bool   `db:"has_left" json:"has_left"`
	UnreadCount int    `db:"unread_count" json:"unread_count"`
}

type ConversationDetail struct {
	Conversation
	Participants []Participant `json:"participants"`
}

// FolderQuery selects one of the caller's folders; reception when empty.
type FolderQuery struct {
	Folder Folder `json:"folder" validate:"required,folder"`
}

func (fq *FolderQuery) Validate(validate *validator.Validate) error {
	if fq.Folder == "" {
		fq.Folder = FolderInbox
	}
	return validate.Struct(fq)
}

// NewMessage contains information needed to post a Message.
type NewMessage struct {
	Body                 string       `json:"body" validate:"required,notblank"`
	Importance           Importance   `json:"importance" validate:"omitempty,importance"`
	NotificationRequired bool         `json:"notification_required"`
	ReadReceiptRequired  bool         `json:"read_receipt_required"`
	ParentID             int64        `json:"parent_id" validate:"omitempty,gt=0"`
	Attachments          []Attachment `json:"attachments" validate:"omitempty,dive"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Body = core.CleanString(nm.Body)
	if nm.Importance == "" {
		nm.Importance = ImportanceNormal
	}
	cleanAttachments(nm.Attachments)
	return validate.Struct(nm)
}

// NewConversation contains information needed to create a Conversation.
// Message is an optional first message.
type NewConversation struct {
	Title        string           `json:"title" validate:"required,notblank,max=255"`
	Type         ConversationType `json:"type" validate:"omitempty,convtype"`
	Participants []user.Ref       `json:"participants" validate:"required,min=1,dive"`
	Message      *NewMessage      `json:"message" validate:"omitempty"`
}

func (nc *NewConversation) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	if nc.Type == "" {
		nc.Type = ConversationStandard
	}
	if nc.Message != nil {
		nc.Message.Body = core.CleanString(nc.Message.Body)
		if nc.Message.Importance == "" {
			nc.Message.Importance = ImportanceNormal
		}
		cleanAttachments(nc.Message.Attachments)
	}
	return validate.Struct(nc)
}

// ClassBroadcast contains information needed to message a whole class.
type ClassBroadcast struct {
	Class                string       `json:"class" validate:"required,notblank,max=64"`
	Title                string       `json:"title" validate:"required,notblank,max=255"`
	Body                 string       `json:"body" validate:"required,notblank"`
	Importance           Importance   `json:"importance" validate:"omitempty,importance"`
	NotificationRequired bool         `json:"notification_required"`
	IncludeParents       bool         `json:"include_parents"`
	Attachments          []Attachment `json:"attachments" validate:"omitempty,dive"`
}

func (cb *ClassBroadcast) Validate(validate *validator.Validate) error {
	cb.Class = core.CleanString(cb.Class)
	cb.Title = core.CleanString(cb.Title)
	cb.Body = core.CleanString(cb.Body)
	if cb.Importance == "" {
		cb.Importance = ImportanceNormal
	}
	cleanAttachments(cb.Attachments)
	return validate.Struct(cb)
}

func cleanAttachments(atts []Attachment) {
	for i := range atts {
		atts[i].FileName = core.CleanString(atts[i].FileName)
		atts[i].FilePath = core.CleanString(atts[i].FilePath)
		atts[i].MimeType = core.CleanString(atts[i].MimeType, true /* lower */)
	}
}
