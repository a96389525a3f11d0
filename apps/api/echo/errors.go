package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/messaging"
)

var (
	errMethodNotAllowed = echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed")
	errUnknownAction    = core.NewValidationError(nil, core.FieldError{Field: "action", Error: "unknown action"})
	errMissingID        = core.NewValidationError(nil, core.FieldError{Field: "conversation_id", Error: "this field is required"})
)

// respond writes the success envelope: data keys are merged next to success and message.
func respond(ctx echo.Context, code int, message string, data echo.Map) error {
	body := echo.Map{"success": true, "message": message}
	for k, v := range data {
		body[k] = v
	}
	return ctx.JSON(code, body)
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code := http.StatusInternalServerError
		message := http.StatusText(http.StatusInternalServerError)
		var fields map[string]string

		var (
			httpErr *echo.HTTPError
			valErrs validator.ValidationErrors
			valErr  *core.ValidationError
		)
		switch {
		case errors.As(err, &httpErr):
			code = httpErr.Code
			message = fmt.Sprint(httpErr.Message)
		case errors.As(err, &valErrs):
			code = http.StatusBadRequest
			message = "invalid input"
			fields = make(map[string]string, len(valErrs))
			for _, vErr := range valErrs {
				fields[vErr.Field()] = vErr.Translate(translator)
			}
		case errors.As(err, &valErr):
			code = http.StatusBadRequest
			message = valErr.Error()
			if len(valErr.Fields) > 0 {
				fields = make(map[string]string, len(valErr.Fields))
				for _, fErr := range valErr.Fields {
					fields[fErr.Field] = fErr.Error
				}
			}
		case errors.Is(err, core.ErrNotAuthenticated):
			code, message = http.StatusUnauthorized, core.ErrNotAuthenticated.Error()
		case errors.Is(err, core.ErrNotAuthorized):
			code, message = http.StatusForbidden, core.ErrNotAuthorized.Error()
		case errors.Is(err, messaging.ErrConversationNotFound),
			errors.Is(err, messaging.ErrParticipantNotFound),
			errors.Is(err, messaging.ErrMessageNotFound),
			errors.Is(err, core.ErrNotFound):
			code, message = http.StatusNotFound, errors.Cause(err).Error()
		case errors.Is(err, core.ErrConflict):
			code, message = http.StatusConflict, core.ErrConflict.Error()
		default: // any other error is a server error
			logger.Error(message, errors.Wrap(err, message), getContextPrincipal(ctx), map[string]interface{}{
				"method":     ctx.Request().Method,
				"path":       ctx.Path(),
				"request_id": ctx.Response().Header().Get(echo.HeaderXRequestID),
			})

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		body := echo.Map{"success": false, "message": message}
		if fields != nil {
			body["errors"] = fields
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, body)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
