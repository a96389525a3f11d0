package echoapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/trezcool/ecole/core"
)

const (
	csrfHeader     = "X-CSRF-Token"
	csrfCookie     = "_csrf"
	contextCSRFKey = "csrf"
)

// csrfMiddleware checks the X-CSRF-Token header against the _csrf cookie on unsafe methods.
// Safe methods only (re)issue the cookie.
func csrfMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		Skipper:        func(echo.Context) bool { return conf.Server.DisableCSRF },
		TokenLookup:    "header:" + csrfHeader,
		ContextKey:     contextCSRFKey,
		CookieName:     csrfCookie,
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   !conf.Debug,
		CookieSameSite: http.SameSiteStrictMode,
		ErrorHandler: func(err error, _ echo.Context) error {
			return echo.NewHTTPError(http.StatusForbidden, "invalid csrf token").SetInternal(err)
		},
	})
}

func requestIDMiddleware() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	})
}

func csrfToken(ctx echo.Context) error {
	token, _ := ctx.Get(contextCSRFKey).(string)
	return respond(ctx, http.StatusOK, "csrf token issued", echo.Map{"csrf_token": token})
}
