package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/config"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/domain"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/repository"
)

const (
	sessionCookie = "session"
	sessionKey    = "soa2.session"
)

// Session attaches a browser session to the request, creating one when
// the cookie is missing or stale. Handlers mutate the session through
// GetSession and persist it themselves.
func Session(store repository.SessionStore, cfg config.Config, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var sess *domain.Session

		if id, err := c.Cookie(sessionCookie); err == nil && id != "" {
			sess, err = store.Get(c.Request.Context(), id)
			if err != nil {
				logger.Warn("session load failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":             "internal",
					"error_description": "session store unavailable",
				})
				return
			}
		}

		if sess == nil {
			sess = &domain.Session{ID: uuid.NewString()}
			if err := store.Save(c.Request.Context(), *sess, cfg.SessionTTL); err != nil {
				logger.Warn("session create failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":             "internal",
					"error_description": "session store unavailable",
				})
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(sessionCookie, sess.ID, int(cfg.SessionTTL.Seconds()), "/", "", cfg.CookieSecure, true)
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

// GetSession returns the request's session. It only exists under the
// Session middleware.
func GetSession(c *gin.Context) *domain.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(*domain.Session); ok {
			return sess
		}
	}
	return nil
}

// RequireLogin rejects requests whose session has not completed the
// comment-code verification.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := GetSession(c)
		if sess == nil || sess.UserID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthenticated",
				"error_description": "login required",
			})
			return
		}
		c.Next()
	}
}
