package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/service"
)

// TokenHandler serves the stateless credential endpoints.
type TokenHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

// NewTokenHandler constructs the handler.
func NewTokenHandler(auth *service.AuthService, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{auth: auth, logger: logger}
}

type exchangeRequest struct {
	ClientID     int32           `json:"client_id"`
	ClientSecret string          `json:"client_secret"`
	Code         string          `json:"code"`
	Scopes       json.RawMessage `json:"scopes"`
}

// Exchange handles POST /tokens: redeem an authorization code. The
// client_id must be a JSON number; scopes may be a separator-delimited
// string or an array of strings.
func (h *TokenHandler) Exchange(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	if req.ClientID <= 0 || req.ClientSecret == "" || req.Code == "" {
		badRequest(c, "client_id, client_secret and code are required")
		return
	}
	scopes, ok := decodeScopes(req.Scopes)
	if !ok {
		badRequest(c, "scopes must be a string or an array of strings")
		return
	}

	pair, err := h.auth.ExchangeCode(c.Request.Context(), req.ClientID, req.ClientSecret, req.Code, scopes)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	ClientID     int32  `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles PATCH /tokens: mint a new access token under an
// existing refresh token.
func (h *TokenHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed request body")
		return
	}
	if req.ClientID <= 0 || req.ClientSecret == "" || req.RefreshToken == "" {
		badRequest(c, "client_id, client_secret and refresh_token are required")
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.ClientID, req.ClientSecret, req.RefreshToken)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// decodeScopes accepts either wire shape for scopes. Absent scopes
// decode to an empty set, which the exchange rejects as a mismatch.
func decodeScopes(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 {
		return nil, true
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return domain.ParseScopes(joined), true
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, s := range list {
			out = append(out, domain.ParseScopes(s)...)
		}
		return out, true
	}
	return nil, false
}
