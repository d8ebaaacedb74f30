package middleware

// identity.go resolves the holder identity for reservation calls.  A
// reservation is held either by an authenticated user (bearer token) or
// by an anonymous checkout session (X-Session-ID header).  The
// middleware only populates the context; deciding whether an identity
// is required for a given call is left to the handlers, which mirror
// the engine's "exactly one of user or session" rule.

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by HolderIdentity.
const (
	ctxUserID    = "user_id"    // uint64 when a valid bearer token was presented
	ctxSessionID = "session_id" // string when the X-Session-ID header was present
)

// SessionHeader carries the anonymous session identifier for guests.
const SessionHeader = "X-Session-ID"

// HolderIdentity returns an Echo middleware that extracts the caller's
// holder identity.  A present-but-invalid bearer token is rejected with
// 401 — a caller who claims to be authenticated must actually be.  A
// request without an Authorization header is not an error; the
// anonymous session header is consulted instead.
func HolderIdentity(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				raw := strings.TrimPrefix(auth, "Bearer ")
				tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, echo.ErrUnauthorized
					}
					return []byte(secret), nil
				})
				if err != nil || !tok.Valid {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
				}
				claims, ok := tok.Claims.(jwt.MapClaims)
				if !ok {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
				}
				uid, ok := subjectID(claims)
				if !ok {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
				}
				c.Set(ctxUserID, uid)
				return next(c)
			}
			if sid := strings.TrimSpace(c.Request().Header.Get(SessionHeader)); sid != "" {
				c.Set(ctxSessionID, sid)
			}
			return next(c)
		}
	}
}

// subjectID pulls a numeric user ID from the token's sub or user_id
// claim.  Claims arrive as strings or JSON numbers depending on the
// issuer, so both forms are accepted.
func subjectID(claims jwt.MapClaims) (uint64, bool) {
	for _, key := range []string{"sub", "user_id"} {
		switch v := claims[key].(type) {
		case string:
			if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
				return n, true
			}
		case float64:
			if v > 0 {
				return uint64(v), true
			}
		}
	}
	return 0, false
}

// HolderUserID returns the authenticated user ID stored by
// HolderIdentity, or nil for anonymous callers.
func HolderUserID(c echo.Context) *uint64 {
	if v, ok := c.Get(ctxUserID).(uint64); ok && v > 0 {
		return &v
	}
	return nil
}

// HolderSessionID returns the anonymous session ID stored by
// HolderIdentity, or nil when the header was absent.
func HolderSessionID(c echo.Context) *string {
	if v, ok := c.Get(ctxSessionID).(string); ok && v != "" {
		return &v
	}
	return nil
}
