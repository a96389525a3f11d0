package messaging_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/messaging"
	"github.com/trezcool/ecole/core/roster"
	"github.com/trezcool/ecole/core/user"
	cachesvc "github.com/trezcool/ecole/services/cache"
	logsvc "github.com/trezcool/ecole/services/logger"
	sqlxrepos "github.com/trezcool/ecole/storage/database/sqlx"
	testutil "github.com/trezcool/ecole/tests"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []messaging.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, notif messaging.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notif)
	return n.err
}

type fixture struct {
	ctx      context.Context
	db       *sqlx.DB
	repo     messaging.Repository
	svc      *messaging.Service
	notifier *recordingNotifier
}

func setup(t *testing.T) fixture {
	db := testutil.PrepareDB(t)
	logger := logsvc.NewNopLogger()
	repo := sqlxrepos.NewMessagingRepository(db)
	ros := roster.NewService(testutil.NewConfig(), sqlxrepos.NewRosterRepository(db), cachesvc.NewLRUCache(16), logger)
	notifier := &recordingNotifier{}

	return fixture{
		ctx:      context.Background(),
		db:       db,
		repo:     repo,
		svc:      messaging.NewService(db, repo, ros, notifier, testutil.NewValidator(), logger),
		notifier: notifier,
	}
}

var (
	teacher  = user.Principal{ID: 5, Type: user.TypeTeacher, Name: "M. Dupont"}
	alice    = user.Principal{ID: 10, Type: user.TypeStudent, Name: "Alice"}
	bob      = user.Principal{ID: 11, Type: user.TypeStudent, Name: "Bob"}
	outsider = user.Principal{ID: 99, Type: user.TypeStudent, Name: "Eve"}
	director = user.Principal{ID: 1, Type: user.TypeAdministrator, Name: "Mme la Directrice"}
)

func (f fixture) create(t *testing.T, creator user.Principal, others ...user.Principal) int64 {
	t.Helper()
	refs := make([]user.Ref, 0, len(others))
	for _, o := range others {
		refs = append(refs, o.Ref())
	}
	id, err := f.svc.Create(f.ctx, creator, messaging.NewConversation{Title: "Sortie scolaire", Participants: refs})
	require.NoError(t, err)
	return id
}

func (f fixture) participant(t *testing.T, convID int64, pr user.Principal) messaging.Participant {
	t.Helper()
	p, err := f.svc.ParticipantInfo(f.ctx, convID, pr.Ref())
	require.NoError(t, err)
	return p
}

func TestService_Create(t *testing.T) {
	f := setup(t)

	t.Run("creator is the only administrator", func(t *testing.T) {
		id, err := f.svc.Create(f.ctx, teacher, messaging.NewConversation{
			Title:        "  Sortie scolaire ",
			Participants: []user.Ref{
				{ID: 10, Type: user.TypeStudent},
				{ID: 11, Type: user.TypeStudent},
				{ID: 10, Type: user.TypeStudent},
				teacher.Ref(),
			},
		})
		require.NoError(t, err)

		conv, err := f.repo.GetConversation(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Sortie scolaire", conv.Title)
		assert.Equal(t, messaging.ConversationStandard, conv.Type)
		assert.Equal(t, teacher.Ref(), conv.Creator())

		parts, err := f.repo.ListParticipants(f.ctx, id)
		require.NoError(t, err)
		require.Len(t, parts, 3)

		assert.Equal(t, teacher.Ref(), parts[0].Ref())
		assert.True(t, parts[0].IsAdmin)
		for _, p := range parts[1:] {
			assert.False(t, p.IsAdmin, p.Ref().String())
			assert.False(t, p.IsDeleted, p.Ref().String())
			assert.False(t, p.HasLeft, p.Ref().String())
			assert.Equal(t, messaging.FolderInbox, p.Folder)
		}
		assert.ElementsMatch(t, []user.Ref{alice.Ref(), bob.Ref()}, []user.Ref{parts[1].Ref(), parts[2].Ref()})
	})

	t.Run("with a first message", func(t *testing.T) {
		id, err := f.svc.Create(f.ctx, alice, messaging.NewConversation{
			Title:        "Devoirs",
			Participants: []user.Ref{bob.Ref()},
			Message:      &messaging.NewMessage{Body: "Tu as fini l'exercice 3 ?", NotificationRequired: true},
		})
		require.NoError(t, err)

		msgs, err := f.repo.ListMessages(f.ctx, id)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, alice.Ref(), msgs[0].Sender())
		assert.Equal(t, messaging.ImportanceNormal, msgs[0].Importance)
		assert.Equal(t, messaging.MessageStandard, msgs[0].Type)

		require.Len(t, f.notifier.sent, 1)
		assert.Equal(t, id, f.notifier.sent[0].ConversationID)
		assert.Equal(t, []user.Ref{bob.Ref()}, f.notifier.sent[0].Recipients)
	})

	t.Run("notifier failures do not fail the operation", func(t *testing.T) {
		f.notifier.err = errors.New("queue down")
		defer func() { f.notifier.err = nil }()

		_, err := f.svc.Create(f.ctx, alice, messaging.NewConversation{
			Title:        "Devoirs",
			Participants: []user.Ref{bob.Ref()},
			Message:      &messaging.NewMessage{Body: "Tu es là ?", NotificationRequired: true},
		})
		assert.NoError(t, err)
	})

	t.Run("creator alone", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, teacher, messaging.NewConversation{
			Title:        "Notes",
			Participants: []user.Ref{teacher.Ref()},
		})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "participants", vErr.Fields[0].Field)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, teacher, messaging.NewConversation{
			Title:        "   ",
			Participants: []user.Ref{{ID: 10, Type: "robot"}},
		})
		var vErrs validator.ValidationErrors
		assert.ErrorAs(t, err, &vErrs)
	})

	t.Run("students cannot create announcements", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, alice, messaging.NewConversation{
			Title:        "Annonce",
			Type:         messaging.ConversationAnnouncement,
			Participants: []user.Ref{bob.Ref()},
		})
		assert.ErrorIs(t, err, core.ErrNotAuthorized)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, user.Principal{}, messaging.NewConversation{
			Title:        "Sortie",
			Participants: []user.Ref{bob.Ref()},
		})
		assert.ErrorIs(t, err, core.ErrNotAuthenticated)
	})
}

func TestService_LifecycleRequiresParticipant(t *testing.T) {
	f := setup(t)
	id := f.create(t, teacher, alice, bob)

	before, err := f.repo.ListParticipants(f.ctx, id)
	require.NoError(t, err)

	ops := map[string]func() error{
		"archive":          func() error { return f.svc.Archive(f.ctx, outsider, id) },
		"delete":           func() error { return f.svc.Delete(f.ctx, outsider, id) },
		"restore":          func() error { return f.svc.Restore(f.ctx, outsider, id) },
		"permanent delete": func() error { return f.svc.PermanentlyDelete(f.ctx, outsider, id) },
		"leave":            func() error { return f.svc.Leave(f.ctx, outsider, id) },
		"promote":          func() error { return f.svc.PromoteModerator(f.ctx, outsider, id, alice.Ref()) },
		"remove":           func() error { return f.svc.RemoveParticipant(f.ctx, outsider, id, alice.Ref()) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), core.ErrNotAuthorized)
		})
	}

	after, err := f.repo.ListParticipants(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = f.svc.Get(f.ctx, outsider, id)
	assert.ErrorIs(t, err, core.ErrNotAuthorized)
	_, err = f.svc.Messages(f.ctx, outsider, id)
	assert.ErrorIs(t, err, core.ErrNotAuthorized)
	_, err = f.svc.ParticipantInfo(f.ctx, id, outsider.Ref())
	assert.ErrorIs(t, err, messaging.ErrParticipantNotFound)
}

func TestService_FolderMoves(t *testing.T) {
	f := setup(t)
	id := f.create(t, teacher, alice, bob)

	t.Run("archive", func(t *testing.T) {
		require.NoError(t, f.svc.Archive(f.ctx, alice, id))
		p := f.participant(t, id, alice)
		assert.Equal(t, messaging.FolderArchive, p.Folder)
		assert.False(t, p.IsDeleted)
		assert.EqualValues(t, 1, p.Version)

		// other participants keep their own view
		assert.Equal(t, messaging.FolderInbox, f.participant(t, id, bob).Folder)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, f.svc.Delete(f.ctx, alice, id))
		require.NoError(t, f.svc.Delete(f.ctx, alice, id))
		p := f.participant(t, id, alice)
		assert.Equal(t, messaging.FolderTrash, p.Folder)
		assert.True(t, p.IsDeleted)
		assert.EqualValues(t, 3, p.Version)
	})

	t.Run("archiving a deleted conversation is refused", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.Archive(f.ctx, alice, id), core.ErrNotAuthorized)
		assert.Equal(t, messaging.FolderTrash, f.participant(t, id, alice).Folder)
	})

	t.Run("restore lands in reception whatever the prior folder", func(t *testing.T) {
		require.NoError(t, f.svc.Restore(f.ctx, alice, id))
		p := f.participant(t, id, alice)
		assert.Equal(t, messaging.FolderInbox, p.Folder)
		assert.False(t, p.IsDeleted)

		require.NoError(t, f.svc.Delete(f.ctx, bob, id))
		require.NoError(t, f.svc.Restore(f.ctx, bob, id))
		assert.Equal(t, messaging.FolderInbox, f.participant(t, id, bob).Folder)
	})

	t.Run("stale versions conflict", func(t *testing.T) {
		stale := f.participant(t, id, bob)
		require.NoError(t, f.svc.Archive(f.ctx, bob, id))

		stale.Folder = messaging.FolderTrash
		_, err := f.repo.UpdateParticipant(f.ctx, stale)
		assert.ErrorIs(t, err, core.ErrConflict)
		assert.Equal(t, messaging.FolderArchive, f.participant(t, id, bob).Folder)
	})
}

func TestService_List(t *testing.T) {
	f := setup(t)
	first := f.create(t, teacher, alice)
	second := f.create(t, teacher, alice, bob)

	_, err := f.svc.Send(f.ctx, teacher, second, messaging.NewMessage{Body: "Bonjour à tous"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Archive(f.ctx, alice, first))

	inbox, err := f.svc.List(f.ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, second, inbox[0].ID)
	assert.Equal(t, 1, inbox[0].UnreadCount)
	assert.True(t, inbox[0].LastMessageAt.Valid)

	archives, err := f.svc.List(f.ctx, alice, messaging.FolderArchive)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, first, archives[0].ID)

	t.Run("reading marks the conversation read", func(t *testing.T) {
		msgs, err := f.svc.Messages(f.ctx, alice, second)
		require.NoError(t, err)
		require.Len(t, msgs, 1)

		inbox, err := f.svc.List(f.ctx, alice, messaging.FolderInbox)
		require.NoError(t, err)
		require.Len(t, inbox, 1)
		assert.Equal(t, 0, inbox[0].UnreadCount)
	})

	t.Run("own messages are never unread", func(t *testing.T) {
		inbox, err := f.svc.List(f.ctx, teacher, messaging.FolderInbox)
		require.NoError(t, err)
		require.Len(t, inbox, 2)
		for _, c := range inbox {
			assert.Equal(t, 0, c.UnreadCount)
		}
	})

	t.Run("unknown folder", func(t *testing.T) {
		_, err := f.svc.List(f.ctx, alice, "spam")
		var vErrs validator.ValidationErrors
		require.ErrorAs(t, err, &vErrs)
		require.Len(t, vErrs, 1)
		assert.Equal(t, "folder", vErrs[0].Field())
		assert.Equal(t, "folder", vErrs[0].Tag())
	})
}

func TestService_PermanentlyDelete(t *testing.T) {
	f := setup(t)
	id := f.create(t, teacher, alice)
	_, err := f.svc.Send(f.ctx, alice, id, messaging.NewMessage{
		Body:        "Voici mon devoir",
		Attachments: []messaging.Attachment{{FileName: "devoir.pdf", FilePath: "uploads/devoir.pdf", MimeType: "application/pdf", Size: 1024}},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.PermanentlyDelete(f.ctx, alice, id))
	_, err = f.svc.ParticipantInfo(f.ctx, id, alice.Ref())
	assert.ErrorIs(t, err, messaging.ErrParticipantNotFound)

	// the conversation lives on for the remaining participant
	detail, err := f.svc.Get(f.ctx, teacher, id)
	require.NoError(t, err)
	assert.Len(t, detail.Participants, 1)

	require.NoError(t, f.svc.PermanentlyDelete(f.ctx, teacher, id))
	_, err = f.repo.GetConversation(f.ctx, id)
	assert.ErrorIs(t, err, messaging.ErrConversationNotFound)

	var remaining int
	require.NoError(t, f.db.Get(&remaining, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, id))
	assert.Zero(t, remaining)
	require.NoError(t, f.db.Get(&remaining, `SELECT COUNT(*) FROM attachments`))
	assert.Zero(t, remaining)
}

func TestService_DeleteMultiple(t *testing.T) {
	f := setup(t)
	a := f.create(t, teacher, alice)
	b := f.create(t, teacher, bob)
	c := f.create(t, teacher, alice, bob)

	t.Run("skips conversations the user is not part of", func(t *testing.T) {
		count, err := f.svc.DeleteMultiple(f.ctx, alice, []int64{a, b, c, a})
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		assert.Equal(t, messaging.FolderTrash, f.participant(t, a, alice).Folder)
		assert.Equal(t, messaging.FolderTrash, f.participant(t, c, alice).Folder)
		assert.Equal(t, messaging.FolderInbox, f.participant(t, b, bob).Folder)
		assert.Equal(t, messaging.FolderInbox, f.participant(t, b, teacher).Folder)
	})

	t.Run("a failure rolls the whole batch back", func(t *testing.T) {
		_, err := f.db.Exec(fmt.Sprintf(`CREATE TRIGGER fail_participant_update BEFORE UPDATE ON participants
			WHEN NEW.conversation_id = %d BEGIN SELECT RAISE(ABORT, 'boom'); END`, c))
		require.NoError(t, err)

		before := map[int64]messaging.Participant{
			a: f.participant(t, a, teacher),
			b: f.participant(t, b, teacher),
			c: f.participant(t, c, teacher),
		}
		_, err = f.svc.DeleteMultiple(f.ctx, teacher, []int64{a, b, c})
		require.Error(t, err)

		for id, p := range before {
			assert.Equal(t, p, f.participant(t, id, teacher))
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := f.svc.DeleteMultiple(f.ctx, alice, nil)
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}

func TestService_Send(t *testing.T) {
	f := setup(t)
	id := f.create(t, teacher, alice, bob)
	other := f.create(t, teacher, alice)

	first, err := f.svc.Send(f.ctx, alice, id, messaging.NewMessage{Body: "Question sur le devoir", Importance: messaging.ImportanceImportant})
	require.NoError(t, err)
	assert.Equal(t, messaging.MessageStandard, first.Type)
	assert.Equal(t, messaging.ImportanceImportant, first.Importance)

	t.Run("reply", func(t *testing.T) {
		reply, err := f.svc.Send(f.ctx, teacher, id, messaging.NewMessage{Body: "Réponse", ParentID: first.ID})
		require.NoError(t, err)
		assert.Equal(t, messaging.MessageReply, reply.Type)
		assert.Equal(t, first.ID, reply.ParentID.Int64)
	})

	t.Run("parent from another conversation", func(t *testing.T) {
		_, err := f.svc.Send(f.ctx, teacher, other, messaging.NewMessage{Body: "Réponse", ParentID: first.ID})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "parent_id", vErr.Fields[0].Field)
	})

	t.Run("former participants cannot post", func(t *testing.T) {
		require.NoError(t, f.svc.Leave(f.ctx, bob, id))
		_, err := f.svc.Send(f.ctx, bob, id, messaging.NewMessage{Body: "Encore moi"})
		assert.ErrorIs(t, err, core.ErrNotAuthorized)
	})

	t.Run("outsiders cannot post", func(t *testing.T) {
		_, err := f.svc.Send(f.ctx, outsider, id, messaging.NewMessage{Body: "Coucou"})
		assert.ErrorIs(t, err, core.ErrNotAuthorized)
	})

	t.Run("blank body", func(t *testing.T) {
		_, err := f.svc.Send(f.ctx, alice, id, messaging.NewMessage{Body: "  "})
		var vErrs validator.ValidationErrors
		assert.ErrorAs(t, err, &vErrs)
	})

	t.Run("announcements", func(t *testing.T) {
		ann, err := f.svc.Create(f.ctx, director, messaging.NewConversation{
			Title:        "Fermeture exceptionnelle",
			Type:         messaging.ConversationAnnouncement,
			Participants: []user.Ref{alice.Ref(), teacher.Ref()},
			Message:      &messaging.NewMessage{Body: "L'école sera fermée lundi.", Importance: messaging.ImportanceUrgent},
		})
		require.NoError(t, err)

		msgs, err := f.svc.Messages(f.ctx, alice, ann)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.True(t, msgs[0].IsAnnouncement)
		assert.Equal(t, messaging.MessageAnnouncement, msgs[0].Type)

		_, err = f.svc.Send(f.ctx, alice, ann, messaging.NewMessage{Body: "Pourquoi ?"})
		assert.ErrorIs(t, err, core.ErrNotAuthorized)

		require.NoError(t, f.svc.PromoteModerator(f.ctx, director, ann, teacher.Ref()))
		_, err = f.svc.Send(f.ctx, teacher, ann, messaging.NewMessage{Body: "Les cours sont reportés."})
		assert.NoError(t, err)
	})
}

func TestService_SendIsAtomic(t *testing.T) {
	f := setup(t)
	id := f.create(t, teacher, alice)

	_, err := f.db.Exec(`CREATE TRIGGER reject_attachments BEFORE INSERT ON attachments
		BEGIN SELECT RAISE(ABORT, 'attachments disabled'); END`)
	require.NoError(t, err)

	_, err = f.svc.Send(f.ctx, alice, id, messaging.NewMessage{
		Body:                 "Voici mon devoir",
		NotificationRequired: true,
		Attachments:          []messaging.Attachment{{FileName: "devoir.pdf", FilePath: "/uploads/devoir.pdf"}},
	})
	require.Error(t, err)

	var count int
	require.NoError(t, f.db.Get(&count, "SELECT COUNT(*) FROM messages WHERE conversation_id = ?", id))
	assert.Zero(t, count)

	var lastMessageAt *string
	require.NoError(t, f.db.Get(&lastMessageAt, "SELECT last_message_at FROM conversations WHERE id = ?", id))
	assert.Nil(t, lastMessageAt)
	assert.Empty(t, f.notifier.sent)
}

func TestService_ParticipantManagement(t *testing.T) {
	f := setup(t)
	carol := user.Principal{ID: 12, Type: user.TypeStudent}
	parent := user.Principal{ID: 3, Type: user.TypeParent}
	id := f.create(t, teacher, alice, bob, carol)

	t.Run("only the administrator promotes", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.PromoteModerator(f.ctx, bob, id, alice.Ref()), core.ErrNotAuthorized)
		require.NoError(t, f.svc.PromoteModerator(f.ctx, teacher, id, alice.Ref()))
		assert.True(t, f.participant(t, id, alice).IsModerator)
		assert.ErrorIs(t, f.svc.PromoteModerator(f.ctx, teacher, id, alice.Ref()), core.ErrNotAuthorized)
	})

	t.Run("unknown target", func(t *testing.T) {
		err := f.svc.PromoteModerator(f.ctx, teacher, id, outsider.Ref())
		assert.ErrorIs(t, err, messaging.ErrParticipantNotFound)
	})

	t.Run("moderator removal rules", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.RemoveParticipant(f.ctx, alice, id, teacher.Ref()), core.ErrNotAuthorized)
		assert.ErrorIs(t, f.svc.RemoveParticipant(f.ctx, alice, id, alice.Ref()), core.ErrNotAuthorized)
		assert.ErrorIs(t, f.svc.RemoveParticipant(f.ctx, bob, id, carol.Ref()), core.ErrNotAuthorized)

		require.NoError(t, f.svc.RemoveParticipant(f.ctx, alice, id, bob.Ref()))
		assert.True(t, f.participant(t, id, bob).HasLeft)
		assert.ErrorIs(t, f.svc.RemoveParticipant(f.ctx, alice, id, bob.Ref()), core.ErrNotAuthorized)
	})

	t.Run("demote", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.DemoteModerator(f.ctx, teacher, id, carol.Ref()), core.ErrNotAuthorized)
		require.NoError(t, f.svc.DemoteModerator(f.ctx, teacher, id, alice.Ref()))
		assert.False(t, f.participant(t, id, alice).IsModerator)
	})

	t.Run("leave", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.Leave(f.ctx, teacher, id), core.ErrNotAuthorized)
		require.NoError(t, f.svc.Leave(f.ctx, carol, id))
		assert.True(t, f.participant(t, id, carol).HasLeft)
	})

	t.Run("add participants", func(t *testing.T) {
		_, err := f.svc.AddParticipants(f.ctx, alice, id, messaging.NewParticipants{Participants: []user.Ref{parent.Ref()}})
		assert.ErrorIs(t, err, core.ErrNotAuthorized)

		added, err := f.svc.AddParticipants(f.ctx, teacher, id, messaging.NewParticipants{
			Participants: []user.Ref{bob.Ref(), parent.Ref(), alice.Ref(), parent.Ref()},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, added)

		assert.False(t, f.participant(t, id, bob).HasLeft)
		p := f.participant(t, id, parent)
		assert.False(t, p.IsAdmin)
		assert.Equal(t, messaging.FolderInbox, p.Folder)
	})
}

func TestService_Broadcast(t *testing.T) {
	f := setup(t)
	prof := testutil.Principal(testutil.CreateStaff(t, f.db, user.TypeTeacher, "Jean", "Dupont", "jean.dupont@ecole.test"), "Jean Dupont")
	s1 := testutil.CreateStudent(t, f.db, "Alice", "Martin", "6A", "alice@ecole.test")
	s2 := testutil.CreateStudent(t, f.db, "Bob", "Durand", "6A", "")
	s3 := testutil.CreateStudent(t, f.db, "Carla", "Petit", "6B", "")
	p1 := testutil.CreateParent(t, f.db, "Paul", "Martin", "paul.martin@ecole.test", s1)
	_ = testutil.CreateParent(t, f.db, "Léa", "Petit", "", s3)

	cb := messaging.ClassBroadcast{
		Class:      "6A",
		Title:      "Sortie au musée",
		Body:       "Rendez-vous à 8h devant l'école.",
		Importance: messaging.ImportanceImportant,
	}

	t.Run("students only", func(t *testing.T) {
		id, err := f.svc.Broadcast(f.ctx, prof, cb)
		require.NoError(t, err)

		conv, err := f.repo.GetConversation(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, messaging.ConversationClass, conv.Type)

		parts, err := f.repo.ListParticipants(f.ctx, id)
		require.NoError(t, err)
		refs := make([]user.Ref, 0, len(parts))
		for _, p := range parts {
			refs = append(refs, p.Ref())
		}
		assert.ElementsMatch(t, []user.Ref{prof.Ref(), s1, s2}, refs)

		msgs, err := f.repo.ListMessages(f.ctx, id)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, messaging.MessageBroadcast, msgs[0].Type)
		assert.Equal(t, prof.Ref(), msgs[0].Sender())
		assert.Empty(t, f.notifier.sent)
	})

	t.Run("with parents", func(t *testing.T) {
		withParents := cb
		withParents.IncludeParents = true
		withParents.NotificationRequired = true
		id, err := f.svc.Broadcast(f.ctx, prof, withParents)
		require.NoError(t, err)

		parts, err := f.repo.ListParticipants(f.ctx, id)
		require.NoError(t, err)
		assert.Len(t, parts, 4)

		require.Len(t, f.notifier.sent, 1)
		assert.ElementsMatch(t, []user.Ref{s1, s2, p1}, f.notifier.sent[0].Recipients)
		assert.Equal(t, "Jean Dupont", f.notifier.sent[0].SenderName)
	})

	t.Run("unknown class", func(t *testing.T) {
		unknown := cb
		unknown.Class = "3C"
		_, err := f.svc.Broadcast(f.ctx, prof, unknown)
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "class", vErr.Fields[0].Field)
	})

	t.Run("students cannot broadcast", func(t *testing.T) {
		_, err := f.svc.Broadcast(f.ctx, testutil.Principal(s3), cb)
		assert.ErrorIs(t, err, core.ErrNotAuthorized)
	})
}
