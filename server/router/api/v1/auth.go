package v1

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// userIDFromRequest resolves the caller's user id for memory scoping. The
// User-ID header wins; otherwise a bearer token is inspected, preferring the
// JWT subject claim and falling back to a token prefix. The id is used for
// identification only and never grants privileges, so the token signature is
// not verified here.
func userIDFromRequest(c echo.Context) string {
	if userID := c.Request().Header.Get("User-ID"); userID != "" {
		return userID
	}

	authorization := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || token == "" {
		return ""
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if subject, err := claims.GetSubject(); err == nil && subject != "" {
			return subject
		}
	}

	if len(token) > 8 {
		return token[:8]
	}
	return token
}
