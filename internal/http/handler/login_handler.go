package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/config"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/http/middleware"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/repository"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/service"
)

// LoginHandler serves the comment-code login flow.
type LoginHandler struct {
	login    *service.LoginService
	sessions repository.SessionStore
	cfg      config.Config
	logger   *zap.Logger
}

// NewLoginHandler constructs the handler.
func NewLoginHandler(login *service.LoginService, sessions repository.SessionStore, cfg config.Config, logger *zap.Logger) *LoginHandler {
	return &LoginHandler{login: login, sessions: sessions, cfg: cfg, logger: logger}
}

// Challenge handles PUT /login/:username: issue the verification code
// the user must comment on their profile.
func (h *LoginHandler) Challenge(c *gin.Context) {
	sess := middleware.GetSession(c)
	challenge, err := h.login.IssueChallenge(c.Request.Context(), sess, c.Param("username"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

type confirmRequest struct {
	CSRF string `json:"csrf"`
}

// Confirm handles POST /login/:username: check the profile's comments
// for the code and authenticate the session.
func (h *LoginHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}

	sess := middleware.GetSession(c)
	ok, err := h.login.ConfirmLogin(c.Request.Context(), sess, c.Param("username"), req.CSRF)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{
			"error":             "forbidden",
			"error_description": "verification comment not found",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// Logout handles DELETE /login: discard the session entirely.
func (h *LoginHandler) Logout(c *gin.Context) {
	sess := middleware.GetSession(c)
	if err := h.sessions.Delete(c.Request.Context(), sess.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.SetCookie("session", "", -1, "/", "", h.cfg.CookieSecure, true)
	c.Status(http.StatusNoContent)
}
