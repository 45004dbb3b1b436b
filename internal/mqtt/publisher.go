package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pulseox/internal/config"
	"github.com/taoyao-code/pulseox/internal/telemetry"
)

// ErrNotConnected broker 未连接
var ErrNotConnected = errors.New("mqtt: not connected")

// pahoClient Publisher 用到的 paho 客户端能力
type pahoClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// 事件类型 -> 主题后缀
var topicSuffix = map[telemetry.EventType]string{
	telemetry.EventHeartRate:       "hr",
	telemetry.EventPPGRaw:          "ppg/raw",
	telemetry.EventPPGFiltered:     "ppg/filtered",
	telemetry.EventPPGHostFiltered: "ppg/host_filtered",
	telemetry.EventLog:             "log",
	telemetry.EventThreshold:       "threshold",
	telemetry.EventDeviceError:     "device/error",
	telemetry.EventDeviceRTC:       "device/rtc",
	telemetry.EventProtocolError:   "protocol/error",
}

// Publisher 将遥测事件以 JSON 发布到 MQTT
type Publisher struct {
	client pahoClient
	prefix string
	qos    byte
	log    *zap.Logger
}

// Connect 按配置连接 broker（自动重连），连接超时不视为致命错误
func Connect(cfg cfgpkg.MQTTConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("mqtt")

	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(MQTT.Client) {
		log.Info("mqtt connected", zap.String("broker", cfg.Broker))
	})

	c := MQTT.NewClient(opts)
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	tok := c.Connect()
	if !tok.WaitTimeout(timeout) {
		log.Warn("mqtt initial connect pending, retrying in background", zap.String("broker", cfg.Broker))
	} else if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return NewPublisher(c, cfg.TopicPrefix, cfg.QoS, logger), nil
}

// NewPublisher 使用已有客户端创建发布器
func NewPublisher(c pahoClient, prefix string, qos byte, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = "pulseox"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: c, prefix: prefix, qos: qos, log: logger.Named("mqtt")}
}

// Topic 事件对应主题
func (p *Publisher) Topic(t telemetry.EventType) string {
	s, ok := topicSuffix[t]
	if !ok {
		s = "other"
	}
	return p.prefix + "/" + s
}

// Name 实现 telemetry.Sink
func (p *Publisher) Name() string { return "mqtt" }

// Publish 实现 telemetry.Sink；阈值状态以 retained 发布
func (p *Publisher) Publish(ctx context.Context, ev telemetry.Event) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	retained := ev.EventType == telemetry.EventThreshold
	tok := p.client.Publish(p.Topic(ev.EventType), p.qos, retained, data)
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected 健康检查用
func (p *Publisher) Connected() bool { return p.client.IsConnectionOpen() }

// Close 断开连接
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
