package app

import (
	"net/http"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pulseox/internal/config"
	"github.com/taoyao-code/pulseox/internal/httpserver"
)

// NewHTTPServer 根据配置创建 HTTP 服务器，metrics 关闭时不挂载指标路由
func NewHTTPServer(cfg cfgpkg.HTTPConfig, mcfg cfgpkg.MetricsConfig, metricsHandler http.Handler, readyFn func() bool, logger *zap.Logger) *httpserver.Server {
	if !mcfg.Enable {
		metricsHandler = nil
	}
	return httpserver.New(cfg, mcfg.Path, metricsHandler, readyFn, logger)
}
