package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/http/middleware"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/service"
)

// AppHandler serves application registration for logged-in owners.
type AppHandler struct {
	apps   *service.AppService
	logger *zap.Logger
}

// NewAppHandler constructs the handler.
func NewAppHandler(apps *service.AppService, logger *zap.Logger) *AppHandler {
	return &AppHandler{apps: apps, logger: logger}
}

// List handles GET /applications.
func (h *AppHandler) List(c *gin.Context) {
	sess := middleware.GetSession(c)
	partials, err := h.apps.List(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if partials == nil {
		partials = []domain.PartialApplication{}
	}
	c.JSON(http.StatusOK, partials)
}

type registerAppRequest struct {
	AppName      *string   `json:"app_name"`
	RedirectURIs *[]string `json:"redirect_uris"`
}

// Register handles PUT /applications.
func (h *AppHandler) Register(c *gin.Context) {
	var req registerAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	if req.RedirectURIs == nil {
		badRequest(c, "missing redirect_uris")
		return
	}

	sess := middleware.GetSession(c)
	app, err := h.apps.Register(c.Request.Context(), sess.UserID, req.AppName, *req.RedirectURIs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// Get handles GET /applications/:client_id.
func (h *AppHandler) Get(c *gin.Context) {
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}
	sess := middleware.GetSession(c)
	app, err := h.apps.Get(c.Request.Context(), clientID, sess.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// Update handles PATCH /applications/:client_id. Key presence decides
// what changes: an explicit null app_name differs from an absent one,
// so the body is inspected before decoding.
func (h *AppHandler) Update(c *gin.Context) {
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}

	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		badRequest(c, "malformed request body")
		return
	}

	var params service.UpdateAppParams
	if v, ok := raw["reset_secret"]; ok {
		if err := json.Unmarshal(v, &params.ResetSecret); err != nil {
			badRequest(c, "reset_secret must be a boolean")
			return
		}
	}
	if v, ok := raw["app_name"]; ok {
		if err := json.Unmarshal(v, &params.AppName); err != nil {
			badRequest(c, "app_name must be a string or null")
			return
		}
		params.AppNameSet = true
	}
	if v, ok := raw["redirect_uris"]; ok {
		if err := json.Unmarshal(v, &params.RedirectURIs); err != nil {
			badRequest(c, "redirect_uris must be an array of strings")
			return
		}
		params.RedirectURIsSet = true
	}

	sess := middleware.GetSession(c)
	app, err := h.apps.Update(c.Request.Context(), clientID, sess.UserID, params)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// Delete handles DELETE /applications/:client_id.
func (h *AppHandler) Delete(c *gin.Context) {
	clientID, ok := clientIDParam(c)
	if !ok {
		return
	}
	sess := middleware.GetSession(c)
	if err := h.apps.Delete(c.Request.Context(), clientID, sess.UserID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func clientIDParam(c *gin.Context) (int32, bool) {
	id, err := strconv.ParseInt(c.Param("client_id"), 10, 32)
	if err != nil || id <= 0 {
		badRequest(c, "client_id must be a positive integer")
		return 0, false
	}
	return int32(id), true
}
