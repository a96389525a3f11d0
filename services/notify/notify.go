package notifysvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"github.com/hibiken/asynq"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/directory"
	"github.com/trezcool/ecole/core/messaging"
)

// TypeNotify is the asynq task type carrying a messaging.Notification.
const TypeNotify = "messaging:notify"

var newMessageTmpl = core.MustParseEmailTemplate(
	"new_message",
	`Bonjour {{.Data.Name}},

{{.Data.SenderName}} vous a écrit dans « {{.Data.Title}} »{{if .Data.Important}} ({{.Data.Importance}}){{end}}.

{{.FrontendBaseURL}}/messagerie/conversations/{{.Data.ConversationID}}
`,
	`<p>Bonjour {{.Data.Name}},</p>
<p>{{.Data.SenderName}} vous a écrit dans « {{.Data.Title}} »{{if .Data.Important}} <strong>({{.Data.Importance}})</strong>{{end}}.</p>
<p><a href="{{.FrontendBaseURL}}/messagerie/conversations/{{.Data.ConversationID}}">Lire le message</a></p>
`,
)

type newMessageData struct {
	Name           string
	SenderName     string
	Title          string
	Importance     messaging.Importance
	Important      bool
	ConversationID int64
}

// AsynqNotifier enqueues notifications for the worker.
type AsynqNotifier struct {
	client *asynq.Client
}

var _ messaging.Notifier = (*AsynqNotifier)(nil)

func NewAsynqNotifier(client *asynq.Client) *AsynqNotifier {
	return &AsynqNotifier{client: client}
}

func NewTask(n messaging.Notification) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, errors.Wrap(err, "encoding notification")
	}
	return asynq.NewTask(TypeNotify, payload, asynq.MaxRetry(5), asynq.Timeout(time.Minute)), nil
}

func (n *AsynqNotifier) Notify(ctx context.Context, notif messaging.Notification) error {
	task, err := NewTask(notif)
	if err != nil {
		return err
	}
	if _, err = n.client.EnqueueContext(ctx, task); err != nil {
		return errors.Wrap(err, "enqueuing notification")
	}
	return nil
}

// Handler emails the recipients of a notification.
// It is both the worker's task handler and a synchronous messaging.Notifier.
type Handler struct {
	contacts directory.Repository
	email    core.EmailService
	logger   core.Logger
}

var (
	_ messaging.Notifier = (*Handler)(nil)
	_ asynq.Handler      = (*Handler)(nil)
)

func NewHandler(contacts directory.Repository, email core.EmailService, logger core.Logger) *Handler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(contacts, "contacts"),
		vala.IsNotNil(email, "email"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Handler{contacts: contacts, email: email, logger: logger}
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var n messaging.Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("decoding notification: %v: %w", err, asynq.SkipRetry)
	}
	return h.Notify(ctx, n)
}

func (h *Handler) Notify(ctx context.Context, n messaging.Notification) error {
	contacts, err := h.contacts.Contacts(ctx, n.Recipients)
	if err != nil {
		return err
	}

	subject := "Nouveau message : " + n.Title
	if n.Importance == messaging.ImportanceUrgent {
		subject = "[URGENT] " + subject
	}

	msgs := make([]*core.EmailMessage, 0, len(contacts))
	for _, c := range contacts {
		if !c.HasEmail() {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:       []mail.Address{c.Address()},
			Subject:  subject,
			Template: newMessageTmpl,
			TemplateData: newMessageData{
				Name:           c.Name,
				SenderName:     n.SenderName,
				Title:          n.Title,
				Importance:     n.Importance,
				Important:      n.Importance != messaging.ImportanceNormal && n.Importance != "",
				ConversationID: n.ConversationID,
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	if err = h.email.SendMessages(msgs...); err != nil {
		return errors.Wrap(err, "sending notification emails")
	}
	h.logger.Info("notification sent", map[string]interface{}{
		"conversation_id": n.ConversationID,
		"message_id":      n.MessageID,
		"emails":          len(msgs),
	})
	return nil
}
