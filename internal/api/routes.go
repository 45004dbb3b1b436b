package api

import (
	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/taoyao-code/pulseox/internal/api/docs"
	"github.com/taoyao-code/pulseox/internal/api/middleware"
)

// RegisterRoutes 注册控制 API（/api 前缀，需认证）
func RegisterRoutes(r gin.IRouter, h *Handler, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api")
	api.Use(middleware.RequestID(), middleware.CORS())
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	api.GET("/ports", h.ListPorts)

	api.GET("/session", h.GetSession)
	api.POST("/session/open", h.OpenSession)
	api.POST("/session/close", h.CloseSession)

	cmds := api.Group("/commands")
	cmds.GET("", h.ListCommands)
	cmds.POST("/check-com", h.CheckCom)
	cmds.POST("/read-record", h.ReadRecord)
	cmds.POST("/clear-record", h.ClearRecord)
	cmds.POST("/threshold", h.SetThreshold)
	cmds.POST("/interval", h.SetInterval)
	cmds.POST("/rtc", h.SetRTC)

	api.GET("/telemetry/latest", h.LatestTelemetry)
	api.GET("/telemetry/samples", h.ListSamples)

	logger.Info("control api routes registered", zap.Int("endpoints", 14))
}

// RegisterSwagger 挂载 OpenAPI 文档（/swagger/index.html）
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler,
		ginSwagger.InstanceName(docs.SwaggerInfo.InstanceName())))
}
