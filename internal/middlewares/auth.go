package middlewares

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cast"
)

const (
	localUserID    = "userID"
	localUserEmail = "userEmail"
)

var (
	ErrMissingBearerToken = errors.New("missing bearer token")
	ErrInvalidBearerToken = errors.New("invalid bearer token")
)

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

func bearerToken(ctx *fiber.Ctx) string {
	header := ctx.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func parseUserClaims(tokenStr string, cfg AuthConfig) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RequireUser authenticates the request with the bearer JWT issued by the
// platform's auth provider and exposes the subject through GetUserID.
func RequireUser(cfg AuthConfig) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := bearerToken(ctx)
		if tokenStr == "" {
			return fiber.NewError(fiber.StatusUnauthorized, ErrMissingBearerToken.Error())
		}
		claims, err := parseUserClaims(tokenStr, cfg)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, ErrInvalidBearerToken.Error())
		}
		userID := cast.ToString(claims["sub"])
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, ErrInvalidBearerToken.Error())
		}
		ctx.Locals(localUserID, userID)
		ctx.Locals(localUserEmail, cast.ToString(claims["email"]))
		return ctx.Next()
	}
}

func GetUserID(ctx *fiber.Ctx) string {
	return cast.ToString(ctx.Locals(localUserID))
}

func GetUserEmail(ctx *fiber.Ctx) string {
	return cast.ToString(ctx.Locals(localUserEmail))
}
