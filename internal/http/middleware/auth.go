package middleware

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const bearerTokenKey = "soa2.bearer"

// BearerToken parses the Authorization header. The credential is the
// base64 encoding of the hex access token; the header must be exactly
// two space-separated parts with a case-insensitive Bearer scheme.
func BearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Split(c.GetHeader("Authorization"), " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			unauthorized(c)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			unauthorized(c)
			return
		}
		c.Set(bearerTokenKey, string(raw))
		c.Next()
	}
}

// GetBearerToken returns the decoded access token set by BearerToken.
func GetBearerToken(c *gin.Context) string {
	return c.GetString(bearerTokenKey)
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             "unauthenticated",
		"error_description": "missing or malformed bearer credentials",
	})
}
