package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/messaging"
	"github.com/trezcool/ecole/core/user"
)

const (
	actionParam = "action"
	folderParam = "folder"

	actionCreate          = "create"
	actionDelete          = "delete"
	actionArchive         = "archive"
	actionRestore         = "restore"
	actionPermanentDelete = "permanent_delete"
	actionDeleteMultiple  = "delete_multiple"
)

// mutatingActions must never run through a GET.
var mutatingActions = map[string]struct{}{
	actionCreate:          {},
	actionDelete:          {},
	actionArchive:         {},
	actionRestore:         {},
	actionPermanentDelete: {},
	actionDeleteMultiple:  {},
}

func isMutatingAction(action string) bool {
	_, ok := mutatingActions[action]
	return ok
}

// conversationAction is the body of POST /conversations.
// Fields of NewConversation are only read by the create action.
type conversationAction struct {
	Action         string  `json:"action"`
	ConversationID int64   `json:"conversation_id"`
	IDs            []int64 `json:"ids"`
	messaging.NewConversation
}

// Bind reads the JSON body; action and conversation id may also come from the query string.
func (ca *conversationAction) Bind(ctx echo.Context) error {
	if err := ctx.Bind(ca); err != nil {
		return err
	}
	if ca.Action == "" {
		ca.Action = ctx.QueryParam(actionParam)
	}
	ca.Action = strings.ToLower(strings.TrimSpace(ca.Action))

	if ca.ConversationID == 0 {
		if raw := ctx.QueryParam("id"); raw != "" {
			id, err := parseID(raw, "id")
			if err != nil {
				return err
			}
			ca.ConversationID = id
		}
	}
	return nil
}

func (ca conversationAction) conversationID() (int64, error) {
	if ca.ConversationID <= 0 {
		return 0, errMissingID
	}
	return ca.ConversationID, nil
}

func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: field, Error: "must be a positive integer"})
	}
	return id, nil
}

func pathConversationID(ctx echo.Context) (int64, error) {
	return parseID(ctx.Param("id"), "id")
}

// pathTarget reads the :type/:uid pair naming a participant.
func pathTarget(ctx echo.Context) (user.Ref, error) {
	typ, err := user.ParseType(ctx.Param("type"))
	if err != nil {
		return user.Ref{}, core.NewValidationError(nil, core.FieldError{Field: "type", Error: "unknown user type"})
	}
	id, err := parseID(ctx.Param("uid"), "uid")
	if err != nil {
		return user.Ref{}, err
	}
	return user.Ref{ID: id, Type: typ}, nil
}
