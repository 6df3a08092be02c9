package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/http/middleware"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/service"
)

// AuthorizeHandler serves the consent leg of the code grant.
type AuthorizeHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

// NewAuthorizeHandler constructs the handler.
func NewAuthorizeHandler(auth *service.AuthService, logger *zap.Logger) *AuthorizeHandler {
	return &AuthorizeHandler{auth: auth, logger: logger}
}

// Show handles GET /authorize: validate the query parameters and
// return what the consent page should display.
func (h *AuthorizeHandler) Show(c *gin.Context) {
	req, ok := h.requestFromQuery(c)
	if !ok {
		return
	}
	info, err := h.auth.ValidateRequest(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Approve handles POST /authorize: record consent and hand back the
// code to deliver via the redirect URI.
func (h *AuthorizeHandler) Approve(c *gin.Context) {
	req, ok := h.requestFromQuery(c)
	if !ok {
		return
	}
	sess := middleware.GetSession(c)
	result, err := h.auth.StartConsent(c.Request.Context(), sess, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Deny handles DELETE /authorize: withdraw pending authorizations.
func (h *AuthorizeHandler) Deny(c *gin.Context) {
	sess := middleware.GetSession(c)
	if err := h.auth.CancelConsent(c.Request.Context(), sess); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthorizeHandler) requestFromQuery(c *gin.Context) (service.AuthRequest, bool) {
	clientID, err := strconv.ParseInt(c.Query("client_id"), 10, 32)
	if err != nil || clientID <= 0 {
		badRequest(c, "client_id must be a positive integer")
		return service.AuthRequest{}, false
	}
	return service.AuthRequest{
		ClientID:    int32(clientID),
		State:       c.Query("state"),
		Scopes:      domain.ParseScopes(c.Query("scopes")),
		RedirectURI: c.Query("redirect_uri"),
	}, true
}
