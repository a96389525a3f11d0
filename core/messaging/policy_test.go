package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/user"
)

func TestPolicy_GlobalActions(t *testing.T) {
	policy := NewPolicy()
	tests := []struct {
		typ     user.Type
		action  Action
		allowed bool
	}{
		{user.TypeStudent, ActionCreate, true},
		{user.TypeStudent, ActionCreateAnnouncement, false},
		{user.TypeStudent, ActionBroadcast, false},
		{user.TypeParent, ActionCreate, true},
		{user.TypeParent, ActionBroadcast, false},
		{user.TypeTeacher, ActionBroadcast, true},
		{user.TypeTeacher, ActionCreateAnnouncement, false},
		{user.TypeAdministrator, ActionCreateAnnouncement, true},
		{user.TypeSchoolLife, ActionBroadcast, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+string(tt.action), func(t *testing.T) {
			err := policy.Authorize(Request{Principal: user.Principal{ID: 1, Type: tt.typ}, Action: tt.action})
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, core.ErrNotAuthorized)
			}
		})
	}

	t.Run("anonymous", func(t *testing.T) {
		err := policy.Authorize(Request{Action: ActionCreate})
		assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	})
}

func TestPolicy_ConversationActions(t *testing.T) {
	policy := NewPolicy()
	caller := user.Principal{ID: 1, Type: user.TypeTeacher}
	admin := Participant{UserID: 1, UserType: user.TypeTeacher, IsAdmin: true}
	moderator := Participant{UserID: 1, UserType: user.TypeTeacher, IsModerator: true}
	member := Participant{UserID: 1, UserType: user.TypeTeacher}
	former := Participant{UserID: 1, UserType: user.TypeTeacher, HasLeft: true}
	trashed := Participant{UserID: 1, UserType: user.TypeTeacher, IsDeleted: true, Folder: FolderTrash}

	otherMember := Participant{UserID: 2, UserType: user.TypeStudent}
	otherModerator := Participant{UserID: 3, UserType: user.TypeStudent, IsModerator: true}
	otherAdmin := Participant{UserID: 4, UserType: user.TypeStudent, IsAdmin: true}
	otherFormer := Participant{UserID: 5, UserType: user.TypeStudent, HasLeft: true}

	tests := []struct {
		name        string
		participant *Participant
		action      Action
		target      *Participant
		allowed     bool
	}{
		{"non participant reads", nil, ActionRead, nil, false},
		{"non participant deletes", nil, ActionDelete, nil, false},
		{"member reads", &member, ActionRead, nil, true},
		{"member posts", &member, ActionPost, nil, true},
		{"member posts announcement", &member, ActionPostAnnouncement, nil, false},
		{"moderator posts announcement", &moderator, ActionPostAnnouncement, nil, true},
		{"former posts", &former, ActionPost, nil, false},
		{"former deletes", &former, ActionDelete, nil, true},
		{"former purges", &former, ActionPurge, nil, true},
		{"member archives", &member, ActionArchive, nil, true},
		{"trashed archives", &trashed, ActionArchive, nil, false},
		{"trashed deletes again", &trashed, ActionDelete, nil, true},
		{"trashed restores", &trashed, ActionRestore, nil, true},
		{"member leaves", &member, ActionLeave, nil, true},
		{"admin leaves", &admin, ActionLeave, nil, false},
		{"member adds participants", &member, ActionAddParticipants, nil, false},
		{"moderator adds participants", &moderator, ActionAddParticipants, nil, true},
		{"admin promotes member", &admin, ActionPromote, &otherMember, true},
		{"admin promotes moderator", &admin, ActionPromote, &otherModerator, false},
		{"admin promotes former", &admin, ActionPromote, &otherFormer, false},
		{"moderator promotes member", &moderator, ActionPromote, &otherMember, false},
		{"admin demotes moderator", &admin, ActionDemote, &otherModerator, true},
		{"admin demotes member", &admin, ActionDemote, &otherMember, false},
		{"admin removes member", &admin, ActionRemoveParticipant, &otherMember, true},
		{"moderator removes member", &moderator, ActionRemoveParticipant, &otherMember, true},
		{"moderator removes moderator", &moderator, ActionRemoveParticipant, &otherModerator, true},
		{"moderator removes admin", &moderator, ActionRemoveParticipant, &otherAdmin, false},
		{"moderator removes former", &moderator, ActionRemoveParticipant, &otherFormer, false},
		{"moderator removes self", &moderator, ActionRemoveParticipant, &moderator, false},
		{"member removes member", &member, ActionRemoveParticipant, &otherMember, false},
		{"remove without target", &admin, ActionRemoveParticipant, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Authorize(Request{Principal: caller, Action: tt.action, Participant: tt.participant, Target: tt.target})
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, core.ErrNotAuthorized)
			}
		})
	}

	t.Run("participant row of someone else", func(t *testing.T) {
		err := policy.Authorize(Request{Principal: caller, Action: ActionRead, Participant: &otherMember})
		assert.ErrorIs(t, err, core.ErrNotAuthorized)
	})
}

func TestCreateAndPostActions(t *testing.T) {
	assert.Equal(t, ActionCreate, CreateAction(ConversationStandard))
	assert.Equal(t, ActionBroadcast, CreateAction(ConversationClass))
	assert.Equal(t, ActionCreateAnnouncement, CreateAction(ConversationAnnouncement))

	assert.Equal(t, ActionPost, PostAction(ConversationStandard))
	assert.Equal(t, ActionPost, PostAction(ConversationClass))
	assert.Equal(t, ActionPostAnnouncement, PostAction(ConversationAnnouncement))
}

func TestParticipant_Role(t *testing.T) {
	assert.Equal(t, RoleAdministrator, Participant{IsAdmin: true}.Role())
	assert.Equal(t, RoleModerator, Participant{IsModerator: true}.Role())
	assert.Equal(t, RoleMember, Participant{}.Role())
	assert.Equal(t, RoleFormer, Participant{IsModerator: true, HasLeft: true}.Role())
}
