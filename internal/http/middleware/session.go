// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the session cookie: one server-issued opaque token per
// browser, resolved against the sessions table on every request. The cookie
// carries nothing but the token; participation state and history live
// server-side, keyed by it. The cookie is refreshed on every hit so an active
// browser never ages out mid-use.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// SessionCookieName is the cookie holding the opaque session token.
	SessionCookieName = "voting_session_token"

	// ctxKeySessionToken is the Gin context key for the resolved token.
	ctxKeySessionToken = "sessionToken"
)

// SessionResolver resolves (or mints) the session for a presented token,
// returning the token the cookie should carry afterwards. Implemented by
// services.SessionService.Initialize.
type SessionResolver func(ctx context.Context, token, userAgent string) (string, error)

// SessionToken returns the session token attached to the request, if any.
func SessionToken(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeySessionToken)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// Session returns a middleware that reads the session cookie, resolves it via
// the supplied resolver, stashes the live token in the Gin context, and
// (re)writes the cookie with a sliding expiry.
//
// Resolution failures are not fatal: the request proceeds without a session
// and endpoints that need one respond accordingly. Secure is set on the
// cookie when the request arrived over HTTPS.
func Session(resolve SessionResolver, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return func(c *gin.Context) {
		presented, _ := c.Cookie(SessionCookieName)

		token, err := resolve(c.Request.Context(), presented, c.Request.UserAgent())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("session resolve failed")
			c.Next()
			return
		}

		c.Set(ctxKeySessionToken, token)

		http.SetCookie(c.Writer, &http.Cookie{
			Name:     SessionCookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(ttl.Seconds()),
			HttpOnly: true,
			Secure:   isHTTPS(c.Request),
			SameSite: http.SameSiteLaxMode,
		})

		c.Next()
	}
}
