package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/config"
)

// CORS answers preflights and stamps response headers from the
// configured allowlist. An allowlist of "*" echoes any origin.
func CORS(cfg config.Config) gin.HandlerFunc {
	allowAll := len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*"
	methods := strings.Join(cfg.CORSAllowedMethods, ", ")
	headers := strings.Join(cfg.CORSAllowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowed := allowAll
		if !allowed {
			for _, candidate := range cfg.CORSAllowedOrigins {
				if strings.EqualFold(candidate, origin) {
					allowed = true
					break
				}
			}
		}
		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
			c.Header("Vary", "Origin")
			if cfg.CORSAllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
