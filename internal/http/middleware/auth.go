// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements optional bearer authentication. Most of the API works
// for anonymous browsers identified only by their session cookie; when an
// Authorization header is present, the token is verified and the user ID is
// attached to the request context. A malformed or expired token is rejected
// rather than silently downgraded, so clients notice a broken credential.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxKeyUserID is the Gin context key for the authenticated user ID.
const ctxKeyUserID = "userID"

// TokenValidator verifies a bearer token and returns the user ID it names.
// Implemented by services.AuthService.ValidateToken.
type TokenValidator func(token string) (string, error)

// UserID returns the authenticated user ID attached to the request, if any.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyUserID)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// BearerAuth returns a middleware that validates an optional Authorization
// header. Requests without one pass through unauthenticated; requests with
// an invalid one are rejected with 401.
func BearerAuth(validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			unauthorized(c, "malformed Authorization header")
			return
		}

		uid, err := validate(strings.TrimSpace(token))
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// unauthorized aborts the request with a structured 401.
func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
