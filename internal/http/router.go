// Package http assembles the gin engine: middleware chain, route
// table, and 404/405 fallbacks.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/ScratchVerifier/ScratchOAuth2/internal/config"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/http/handler"
	httpmiddleware "github.com/ScratchVerifier/ScratchOAuth2/internal/http/middleware"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/middleware"
	"github.com/ScratchVerifier/ScratchOAuth2/internal/repository"
)

// RouterParams collects everything the route table needs.
type RouterParams struct {
	Config   config.Config
	Logger   *zap.Logger
	Sessions repository.SessionStore

	Apps      *handler.AppHandler
	Login     *handler.LoginHandler
	Authorize *handler.AuthorizeHandler
	Tokens    *handler.TokenHandler
	User      *handler.UserHandler
	Approvals *handler.ApprovalsHandler
	Health    *handler.HealthHandler
}

// NewRouter builds the engine. Browser flows run under the session
// middleware; the tokens and user endpoints are stateless.
func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		httpmiddleware.RequestLogger(p.Logger),
		otelgin.Middleware(p.Config.ServiceName),
		middleware.CORS(p.Config),
		middleware.NewRateLimiter(p.Config.RateLimitRPM).Handler(),
	)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "no such resource",
		})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error":             "method_not_allowed",
			"error_description": "method not allowed on this resource",
		})
	})

	r.GET("/healthz", p.Health.Check)

	session := r.Group("/", httpmiddleware.Session(p.Sessions, p.Config, p.Logger))
	{
		session.PUT("/login/:username", p.Login.Challenge)
		session.POST("/login/:username", p.Login.Confirm)
		session.DELETE("/login", p.Login.Logout)

		authed := session.Group("/", httpmiddleware.RequireLogin())
		{
			authed.GET("/applications", p.Apps.List)
			authed.PUT("/applications", p.Apps.Register)
			authed.GET("/applications/:client_id", p.Apps.Get)
			authed.PATCH("/applications/:client_id", p.Apps.Update)
			authed.DELETE("/applications/:client_id", p.Apps.Delete)

			authed.GET("/authorize", p.Authorize.Show)
			authed.POST("/authorize", p.Authorize.Approve)
			authed.DELETE("/authorize", p.Authorize.Deny)

			authed.GET("/approvals", p.Approvals.List)
			authed.DELETE("/approvals/:token", p.Approvals.Revoke)
		}
	}

	r.POST("/tokens", p.Tokens.Exchange)
	r.PATCH("/tokens", p.Tokens.Refresh)
	r.GET("/user", httpmiddleware.BearerToken(), p.User.Get)

	return r
}
