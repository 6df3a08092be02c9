package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/http/middleware"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/service"
)

// UserHandler serves the bearer-gated identity resource.
type UserHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

// NewUserHandler constructs the handler.
func NewUserHandler(auth *service.AuthService, logger *zap.Logger) *UserHandler {
	return &UserHandler{auth: auth, logger: logger}
}

// Get handles GET /user. A 203 instead of 200 means the Scratch
// account behind the grant looks deleted; the identity is still served.
func (h *UserHandler) Get(c *gin.Context) {
	identity, err := h.auth.Identify(c.Request.Context(), middleware.GetBearerToken(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if identity.Degraded {
		status = http.StatusNonAuthoritativeInfo
	}
	c.JSON(status, identity)
}
