package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pulseox/internal/config"
	"github.com/taoyao-code/pulseox/internal/mqtt"
)

// NewMQTTPublisher 连接 MQTT broker，未启用时返回 nil。
// 未配置 clientId 时使用实例ID
func NewMQTTPublisher(cfg cfgpkg.MQTTConfig, serverID string, logger *zap.Logger) (*mqtt.Publisher, error) {
	if !cfg.Enable {
		logger.Info("mqtt is disabled, skipping initialization")
		return nil, nil
	}
	if cfg.ClientID == "" {
		cfg.ClientID = serverID
	}
	pub, err := mqtt.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("mqtt publisher connected",
		zap.String("broker", cfg.Broker),
		zap.String("client_id", cfg.ClientID),
		zap.String("topic_prefix", cfg.TopicPrefix))
	return pub, nil
}
