// Package handler holds the gin handlers for the HTTP surface. Each
// handler translates between wire shapes and the service layer; all
// protocol failures travel as *service.OAuthError.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/service"
)

// respondError writes the wire form of a service failure. Anything that
// is not an OAuthError is an internal error and stays opaque.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var oauthErr *service.OAuthError
	if errors.As(err, &oauthErr) {
		c.JSON(oauthErr.Status, oauthErr)
		return
	}
	logger.Error("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":             "internal",
		"error_description": "internal server error",
	})
}

func badRequest(c *gin.Context, description string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":             "invalid_request",
		"error_description": description,
	})
}
