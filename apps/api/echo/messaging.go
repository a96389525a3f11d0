package echoapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ecole/core/messaging"
	"github.com/trezcool/ecole/core/roster"
	"github.com/trezcool/ecole/core/user"
)

type messagingApi struct {
	svc     *messaging.Service
	roster  *roster.Service
	metrics *metrics
}

func registerMessagingAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	csrf echo.MiddlewareFunc,
	svc *messaging.Service,
	rosterSvc *roster.Service,
	m *metrics,
) {
	api := messagingApi{
		svc:     svc,
		roster:  rosterSvc,
		metrics: m,
	}

	// authentication first: an anonymous request is a 401 even without a csrf token
	mg := g.Group("/messagerie", jwt, principalMiddleware, csrf)
	mg.GET("/classes", api.classes)
	mg.POST("/broadcast", api.broadcast)

	cg := mg.Group("/conversations")
	cg.GET("", api.list)
	cg.POST("", api.dispatch)

	// detail endpoints
	dg := cg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.GET("/messages", api.messages)
	dg.POST("/messages", api.send)
	dg.POST("/leave", api.leave)
	dg.POST("/participants", api.addParticipants)
	dg.POST("/participants/:type/:uid/promote", api.promote)
	dg.POST("/participants/:type/:uid/demote", api.demote)
	dg.DELETE("/participants/:type/:uid", api.removeParticipant)
}

func (api messagingApi) list(ctx echo.Context) error {
	if isMutatingAction(ctx.QueryParam(actionParam)) {
		return errMethodNotAllowed
	}

	folder := messaging.Folder(ctx.QueryParam(folderParam))
	if folder == "" {
		folder = messaging.FolderInbox
	}
	convs, err := api.svc.List(ctx.Request().Context(), getContextPrincipal(ctx), folder)
	if err != nil {
		return errors.Wrap(err, "listing conversations")
	}
	if convs == nil {
		convs = []messaging.ConversationSummary{}
	}
	return respond(ctx, http.StatusOK, fmt.Sprintf("%d conversation(s)", len(convs)), echo.Map{
		"folder":        folder,
		"conversations": convs,
	})
}

// dispatch runs the conversation action named by the action parameter.
func (api messagingApi) dispatch(ctx echo.Context) error {
	var req conversationAction
	if err := req.Bind(ctx); err != nil {
		return err
	}

	err := api.run(ctx, req)
	action := req.Action
	if !isMutatingAction(action) {
		action = unknownActionLabel
	}
	api.metrics.observe(action, err)
	return err
}

func (api messagingApi) run(ctx echo.Context, req conversationAction) error {
	c := ctx.Request().Context()
	pr := getContextPrincipal(ctx)

	switch req.Action {
	case actionCreate:
		id, err := api.svc.Create(c, pr, req.NewConversation)
		if err != nil {
			return errors.Wrap(err, "creating conversation")
		}
		return respond(ctx, http.StatusCreated, "conversation created", echo.Map{"conversation_id": id})

	case actionDeleteMultiple:
		count, err := api.svc.DeleteMultiple(c, pr, req.IDs)
		if err != nil {
			return errors.Wrap(err, "deleting conversations")
		}
		return respond(ctx, http.StatusOK, fmt.Sprintf("%d conversation(s) moved to trash", count), echo.Map{"count": count})

	case actionDelete, actionArchive, actionRestore, actionPermanentDelete:
		convID, err := req.conversationID()
		if err != nil {
			return err
		}

		var msg string
		switch req.Action {
		case actionDelete:
			msg, err = "conversation moved to trash", api.svc.Delete(c, pr, convID)
		case actionArchive:
			msg, err = "conversation archived", api.svc.Archive(c, pr, convID)
		case actionRestore:
			msg, err = "conversation restored", api.svc.Restore(c, pr, convID)
		default:
			msg, err = "conversation permanently deleted", api.svc.PermanentlyDelete(c, pr, convID)
		}
		if err != nil {
			return errors.Wrapf(err, "running %s", req.Action)
		}
		return respond(ctx, http.StatusOK, msg, echo.Map{"conversation_id": convID})

	default:
		return errUnknownAction
	}
}

func (api messagingApi) retrieve(ctx echo.Context) error {
	convID, err := pathConversationID(ctx)
	if err != nil {
		return err
	}
	conv, err := api.svc.Get(ctx.Request().Context(), getContextPrincipal(ctx), convID)
	if err != nil {
		return errors.Wrap(err, "getting conversation")
	}
	return respond(ctx, http.StatusOK, "conversation", echo.Map{"conversation": conv})
}

func (api messagingApi) messages(ctx echo.Context) error {
	convID, err := pathConversationID(ctx)
	if err != nil {
		return err
	}
	msgs, err := api.svc.Messages(ctx.Request().Context(), getContextPrincipal(ctx), convID)
	if err != nil {
		return errors.Wrap(err, "listing messages")
	}
	if msgs == nil {
		msgs = []messaging.Message{}
	}
	return respond(ctx, http.StatusOK, fmt.Sprintf("%d message(s)", len(msgs)), echo.Map{"messages": msgs})
}

func (api messagingApi) send(ctx echo.Context) error {
	convID, err := pathConversationID(ctx)
	if err != nil {
		return err
	}
	var nm messaging.NewMessage
	if err = ctx.Bind(&nm); err != nil {
		return err
	}

	msg, err := api.svc.Send(ctx.Request().Context(), getContextPrincipal(ctx), convID, nm)
	api.metrics.observe("send", err)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return respond(ctx, http.StatusCreated, "message sent", echo.Map{"data": msg})
}

func (api messagingApi) addParticipants(ctx echo.Context) error {
	convID, err := pathConversationID(ctx)
	if err != nil {
		return err
	}
	var np messaging.NewParticipants
	if err = ctx.Bind(&np); err != nil {
		return err
	}

	added, err := api.svc.AddParticipants(ctx.Request().Context(), getContextPrincipal(ctx), convID, np)
	api.metrics.observe("add_participants", err)
	if err != nil {
		return errors.Wrap(err, "adding participants")
	}
	return respond(ctx, http.StatusOK, fmt.Sprintf("%d participant(s) added", added), echo.Map{"added": added})
}

func (api messagingApi) promote(ctx echo.Context) error {
	return api.manage(ctx, "promote", api.svc.PromoteModerator, "participant promoted to moderator")
}

func (api messagingApi) demote(ctx echo.Context) error {
	return api.manage(ctx, "demote", api.svc.DemoteModerator, "participant demoted")
}

func (api messagingApi) removeParticipant(ctx echo.Context) error {
	return api.manage(ctx, "remove_participant", api.svc.RemoveParticipant, "participant removed")
}

func (api messagingApi) manage(
	ctx echo.Context,
	action string,
	op func(context.Context, user.Principal, int64, user.Ref) error,
	msg string,
) error {
	convID, err := pathConversationID(ctx)
	if err != nil {
		return err
	}
	target, err := pathTarget(ctx)
	if err != nil {
		return err
	}

	err = op(ctx.Request().Context(), getContextPrincipal(ctx), convID, target)
	api.metrics.observe(action, err)
	if err != nil {
		return errors.Wrapf(err, "running %s", action)
	}
	return respond(ctx, http.StatusOK, msg, echo.Map{"conversation_id": convID, "participant": target})
}

func (api messagingApi) leave(ctx echo.Context) error {
	convID, err := pathConversationID(ctx)
	if err != nil {
		return err
	}
	err = api.svc.Leave(ctx.Request().Context(), getContextPrincipal(ctx), convID)
	api.metrics.observe("leave", err)
	if err != nil {
		return errors.Wrap(err, "leaving conversation")
	}
	return respond(ctx, http.StatusOK, "conversation left", echo.Map{"conversation_id": convID})
}

func (api messagingApi) broadcast(ctx echo.Context) error {
	var cb messaging.ClassBroadcast
	if err := ctx.Bind(&cb); err != nil {
		return err
	}

	id, err := api.svc.Broadcast(ctx.Request().Context(), getContextPrincipal(ctx), cb)
	api.metrics.observe("broadcast", err)
	if err != nil {
		return errors.Wrap(err, "broadcasting to class")
	}
	return respond(ctx, http.StatusCreated, "message sent to class", echo.Map{"conversation_id": id})
}

func (api messagingApi) classes(ctx echo.Context) error {
	classes, err := api.roster.Classes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	if classes == nil {
		classes = []string{}
	}
	return respond(ctx, http.StatusOK, fmt.Sprintf("%d class(es)", len(classes)), echo.Map{"classes": classes})
}
