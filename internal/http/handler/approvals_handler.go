package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/http/middleware"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/service"
)

// ApprovalsHandler lets users review and revoke the grants they gave.
type ApprovalsHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

// NewApprovalsHandler constructs the handler.
func NewApprovalsHandler(auth *service.AuthService, logger *zap.Logger) *ApprovalsHandler {
	return &ApprovalsHandler{auth: auth, logger: logger}
}

// List handles GET /approvals.
func (h *ApprovalsHandler) List(c *gin.Context) {
	sess := middleware.GetSession(c)
	approvals, err := h.auth.ListApprovals(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, approvals)
}

// Revoke handles DELETE /approvals/:token.
func (h *ApprovalsHandler) Revoke(c *gin.Context) {
	sess := middleware.GetSession(c)
	if err := h.auth.RevokeApproval(c.Request.Context(), c.Param("token"), sess.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
