package health

import (
	"context"
	"time"
)

// Connector MQTT 连接状态（mqtt.Publisher 实现）
type Connector interface {
	Connected() bool
}

// MQTTChecker paho 客户端断线期间自动重连，记为降级
type MQTTChecker struct {
	conn Connector
}

func NewMQTTChecker(conn Connector) *MQTTChecker { return &MQTTChecker{conn: conn} }

func (c *MQTTChecker) Name() string { return "mqtt" }

func (c *MQTTChecker) Check(context.Context) CheckResult {
	start := time.Now()
	if !c.conn.Connected() {
		return CheckResult{Status: StatusDegraded, Message: "broker disconnected", Latency: time.Since(start)}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok", Latency: time.Since(start)}
}
