package service

import (
	"github.com/gin-gonic/gin"

	"github.com/chatdesk/chatdesk/app/core"
	"github.com/chatdesk/chatdesk/app/response"
	"github.com/chatdesk/chatdesk/cmd/service/handler"
	"github.com/chatdesk/chatdesk/cmd/service/middleware"
	"github.com/chatdesk/chatdesk/pkg/metrics"
)

func serve(core *core.Core) {
	httpSrv := &handler.HttpSrv{
		Core:   core,
		Engine: core.HttpEngine(),
	}
	setupHttpRouter(httpSrv)

	core.HttpEngine().Run(core.Cfg().Addr)
}

func GetUserLimitBuilder(appCore *core.Core) middleware.LimiterFunc {
	return func(key string, opts ...core.LimitOption) gin.HandlerFunc {
		return middleware.UseLimit(appCore, key, func(c *gin.Context) string {
			return middleware.GetTokenClaims(c).GetUser()
		}, opts...)
	}
}

func GetIPLimitBuilder(appCore *core.Core) middleware.LimiterFunc {
	return func(key string, opts ...core.LimitOption) gin.HandlerFunc {
		return middleware.UseLimit(appCore, key, func(c *gin.Context) string {
			return c.ClientIP()
		}, opts...)
	}
}

func setupHttpRouter(s *handler.HttpSrv) {
	userLimit := GetUserLimitBuilder(s.Core)
	ipLimit := GetIPLimitBuilder(s.Core)

	s.Engine.Use(middleware.I18n(), response.NewResponse())
	s.Engine.Use(middleware.Cors)

	s.Engine.GET("/metrics", metrics.DefaultExportHandler())

	apiV1 := s.Engine.Group("/api/v1")
	{
		// Identity is negotiated over the socket itself through the login
		// events.
		apiV1.GET("/connect", ipLimit("connect"), handler.Websocket(s.Core))

		authed := apiV1.Group("")
		authed.Use(middleware.Authorization(s.Core))

		chat := authed.Group("/chat")
		{
			chat.POST("/session/end", userLimit("end_session"), s.EndSession)
			chat.GET("/session/:sessionid/history", s.GetSessionHistory)

			agent := chat.Group("")
			agent.Use(middleware.VerifyAgentRole)
			agent.POST("/session/transfer", userLimit("transfer_session"), s.TransferSession)
			agent.GET("/statistics", s.GetStatistics)
		}
	}
}
