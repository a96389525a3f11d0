package messaging

import (
	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/user"
)

type Action string

// global actions, checked against the caller's user type
const (
	ActionCreate             Action = "create"
	ActionCreateAnnouncement Action = "create_announcement"
	ActionBroadcast          Action = "broadcast"
)

// conversation actions, checked against the caller's role in the conversation
const (
	ActionRead              Action = "read"
	ActionPost              Action = "post"
	ActionPostAnnouncement  Action = "post_announcement"
	ActionArchive           Action = "archive"
	ActionDelete            Action = "delete"
	ActionRestore           Action = "restore"
	ActionPurge             Action = "permanent_delete"
	ActionAddParticipants   Action = "add_participants"
	ActionPromote           Action = "promote"
	ActionDemote            Action = "demote"
	ActionRemoveParticipant Action = "remove_participant"
	ActionLeave             Action = "leave"
)

type capabilities map[Action]bool

func can(actions ...Action) capabilities {
	caps := make(capabilities, len(actions))
	for _, a := range actions {
		caps[a] = true
	}
	return caps
}

var typeCapabilities = map[user.Type]capabilities{
	user.TypeStudent:       can(ActionCreate),
	user.TypeParent:        can(ActionCreate),
	user.TypeTeacher:       can(ActionCreate, ActionBroadcast),
	user.TypeAdministrator: can(ActionCreate, ActionCreateAnnouncement, ActionBroadcast),
	user.TypeSchoolLife:    can(ActionCreate, ActionCreateAnnouncement, ActionBroadcast),
}

var ownFolder = []Action{ActionRead, ActionArchive, ActionDelete, ActionRestore, ActionPurge}

var roleCapabilities = map[Role]capabilities{
	RoleAdministrator: can(append([]Action{
		ActionPost, ActionPostAnnouncement, ActionAddParticipants,
		ActionPromote, ActionDemote, ActionRemoveParticipant,
	}, ownFolder...)...),
	RoleModerator: can(append([]Action{
		ActionPost, ActionPostAnnouncement, ActionAddParticipants,
		ActionRemoveParticipant, ActionLeave,
	}, ownFolder...)...),
	RoleMember: can(append([]Action{ActionPost, ActionLeave}, ownFolder...)...),
	RoleFormer: can(ownFolder...),
}

// Request describes one permission check.
// Participant is the caller's row in the conversation, Target the row being acted upon.
type Request struct {
	Principal   user.Principal
	Action      Action
	Participant *Participant
	Target      *Participant
}

// Policy is the single place where messaging permissions are decided.
type Policy struct{}

func NewPolicy() Policy {
	return Policy{}
}

// Authorize returns core.ErrNotAuthorized when the request is not allowed.
func (Policy) Authorize(req Request) error {
	if req.Principal.IsZero() {
		return core.ErrNotAuthenticated
	}

	switch req.Action {
	case ActionCreate, ActionCreateAnnouncement, ActionBroadcast:
		if typeCapabilities[req.Principal.Type][req.Action] {
			return nil
		}
		return core.ErrNotAuthorized
	}

	p := req.Participant
	if p == nil || !req.Principal.Is(p.Ref()) {
		return core.ErrNotAuthorized
	}
	if !roleCapabilities[p.Role()][req.Action] {
		return core.ErrNotAuthorized
	}

	switch req.Action {
	case ActionArchive:
		if p.IsDeleted {
			return core.ErrNotAuthorized
		}
	case ActionPromote:
		if req.Target == nil || req.Target.Role() != RoleMember {
			return core.ErrNotAuthorized
		}
	case ActionDemote:
		if req.Target == nil || req.Target.Role() != RoleModerator {
			return core.ErrNotAuthorized
		}
	case ActionRemoveParticipant:
		t := req.Target
		if t == nil || t.IsAdmin || t.HasLeft || t.Ref() == p.Ref() {
			return core.ErrNotAuthorized
		}
	}
	return nil
}

// CreateAction is the global action needed to create a conversation of type t.
func CreateAction(t ConversationType) Action {
	switch t {
	case ConversationClass:
		return ActionBroadcast
	case ConversationAnnouncement:
		return ActionCreateAnnouncement
	default:
		return ActionCreate
	}
}

// PostAction is the conversation action needed to post in a conversation of type t.
func PostAction(t ConversationType) Action {
	if t == ConversationAnnouncement {
		return ActionPostAnnouncement
	}
	return ActionPost
}
