package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/ecole/core"
	"github.com/trezcool/ecole/core/user"
)

const (
	contextTokenKey     = "userToken"
	contextPrincipalKey = "principal"
	tokenAudience       = "ecole-messagerie"
)

// Claims represents the authorization claims transmitted via a JWT.
// The subject is the user id, only unique within UserType.
type Claims struct {
	jwt.StandardClaims
	UserType user.Type `json:"user_type"`
	Name     string    `json:"name,omitempty"`
}

func NewClaims(pr user.Principal, conf *core.Config) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   strconv.FormatInt(pr.ID, 10),
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		UserType: pr.Type,
		Name:     pr.Name,
	}
}

func (c Claims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if !c.VerifyAudience(tokenAudience, true) {
		return errors.New("invalid audience")
	}
	if !c.UserType.IsValid() {
		return errors.New("invalid user type")
	}
	return nil
}

func (c Claims) Principal() (user.Principal, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return user.Principal{}, core.ErrNotAuthenticated
	}
	return user.Principal{ID: id, Type: c.UserType, Name: c.Name}, nil
}

// GenerateToken generates a signed JWT token string representing the principal.
func GenerateToken(conf *core.Config, pr user.Principal) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, NewClaims(pr, conf))
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
		ErrorHandler: func(err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, core.ErrNotAuthenticated.Error()).SetInternal(err)
		},
	}
}

// principalMiddleware loads the principal from the JWT claims set by the JWT middleware.
func principalMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		token, ok := ctx.Get(contextTokenKey).(*jwt.Token)
		if !ok {
			return core.ErrNotAuthenticated
		}
		claims, ok := token.Claims.(*Claims)
		if !ok {
			return core.ErrNotAuthenticated
		}
		pr, err := claims.Principal()
		if err != nil {
			return err
		}
		ctx.Set(contextPrincipalKey, pr)
		return next(ctx)
	}
}

func getContextPrincipal(ctx echo.Context) user.Principal {
	pr, _ := ctx.Get(contextPrincipalKey).(user.Principal)
	return pr
}
