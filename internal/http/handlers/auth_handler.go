// Auth HTTP handlers.
//
// This file exposes the identity endpoints:
//   - POST /auth/anonymous  (mint an anonymous identity)
//   - POST /auth/register   (create or upgrade to a credentialed account)
//   - POST /auth/login      (verify credentials)
//
// Every success binds the new identity to the browser's session so history
// and vote deduplication survive the sign-in. Tokens are bearer JWTs; clients
// send them in the Authorization header on later requests.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/khaled-alabsi/voting/internal/domain"
	"github.com/khaled-alabsi/voting/internal/http/middleware"
)

//
// DTOs
//

// AnonymousRequest is the JSON payload for anonymous sign-in.
type AnonymousRequest struct {
	// DisplayName is an optional name shown on polls the user creates.
	DisplayName string `json:"display_name,omitempty" example:"alex"`
}

// RegisterRequest is the JSON payload for account registration.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email" example:"alex@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery"`
	// DisplayName is optional; an upgraded anonymous user keeps its old
	// name when this is empty.
	DisplayName string `json:"display_name,omitempty" example:"alex"`
	// UpgradeID optionally names an anonymous identity to upgrade in place,
	// preserving ownership of polls created before registration.
	UpgradeID string `json:"upgrade_id,omitempty" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
}

// LoginRequest is the JSON payload for credential login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"alex@example.com"`
	Password string `json:"password" binding:"required" example:"correct horse battery"`
}

// AuthResponse carries the signed-in user and its bearer token.
type AuthResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// bindSession attaches the user to the browser's session, best effort.
func (h *Handlers) bindSession(c *gin.Context, userID string) {
	tok, okTok := middleware.SessionToken(c)
	if !okTok {
		return
	}
	if err := h.sessSvc.Bind(c.Request.Context(), tok, userID); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("session bind failed")
	}
}

//
// Handlers
//

// SignInAnonymously godoc
// @ID          signInAnonymously
// @Summary     Anonymous sign-in
// @Description Mints a fresh anonymous identity and bearer token. Anonymous users can create polls and vote; they can later register and keep the same ID.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.AnonymousRequest  false  "Optional display name"
//
// @Success     201  {object}  handlers.AuthResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/anonymous [post]
func (h *Handlers) SignInAnonymously(c *gin.Context) {
	var req AnonymousRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	u, token, err := h.authSvc.SignInAnonymously(c.Request.Context(), req.DisplayName)
	if err != nil {
		failErr(c, err)
		return
	}

	h.bindSession(c, u.ID)
	ok(c, 201, AuthResponse{User: *u, Token: token})
}

// Register godoc
// @ID          register
// @Summary     Register an account
// @Description Creates a credentialed account. When upgrade_id names an existing anonymous identity, that identity is upgraded in place.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterRequest  true  "Registration payload"
//
// @Success     201  {object}  handlers.AuthResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Email already registered"
// @Failure     422  {object}  handlers.ErrorResponse  "Password too short"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, ErrCodeBadRequest, "email and password required")
		return
	}

	u, token, err := h.authSvc.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName, req.UpgradeID)
	if err != nil {
		failErr(c, err)
		return
	}

	h.bindSession(c, u.ID)
	ok(c, 201, AuthResponse{User: *u, Token: token})
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Verifies an email/password pair and returns the user with a fresh bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
//
// @Success     200  {object}  handlers.AuthResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid credentials"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, ErrCodeBadRequest, "email and password required")
		return
	}

	u, token, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}

	h.bindSession(c, u.ID)
	ok(c, 200, AuthResponse{User: *u, Token: token})
}
