package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pulseox/internal/config"
	"github.com/taoyao-code/pulseox/internal/device"
	"github.com/taoyao-code/pulseox/internal/metrics"
	"github.com/taoyao-code/pulseox/internal/ports"
	"github.com/taoyao-code/pulseox/internal/protocol/oxi"
	"github.com/taoyao-code/pulseox/internal/serial"
	"github.com/taoyao-code/pulseox/internal/storage"
	"github.com/taoyao-code/pulseox/internal/telemetry"
)

// NewTelemetryHub 按配置创建事件中心
func NewTelemetryHub(cfg cfgpkg.TelemetryConfig, logger *zap.Logger, appm *metrics.AppMetrics, sinks ...telemetry.Sink) (*telemetry.Hub, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	opts := telemetry.Options{
		Policy:      telemetry.UnanchoredPolicy(cfg.UnanchoredPolicy),
		BufferSize:  cfg.BufferSize,
		HostFilter:  cfg.HostFilter,
		HistorySize: cfg.HistorySize,
		Location:    loc,
	}
	return telemetry.NewHub(opts, logger.Named("telemetry"), appm, sinks...), nil
}

// NewDispatcher 帧分发器，时间显示使用 hub 的时区
func NewDispatcher(cfg cfgpkg.TelemetryConfig, hub *telemetry.Hub, appm *metrics.AppMetrics) (*oxi.Dispatcher, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return oxi.NewDispatcher(hub, oxi.WithLocation(loc), oxi.WithObserver(appm.ObserveDispatch)), nil
}

// DeviceConfig 串口配置映射到控制器配置
func DeviceConfig(cfg cfgpkg.SerialConfig) device.Config {
	return device.Config{
		Serial: serial.Config{
			Port:        cfg.Port,
			BaudRate:    cfg.BaudRate,
			ReadTimeout: cfg.ReadTimeout,
			Resync:      cfg.Resync,
		},
		Reconnect:  cfg.Reconnect.Enable,
		MinBackoff: cfg.Reconnect.MinBackoff,
		MaxBackoff: cfg.Reconnect.MaxBackoff,
		SendRate:   cfg.SendRate,
		SendBurst:  cfg.SendBurst,
	}
}

// NewController 设备控制器；audit 为 nil 时使用内存审计
func NewController(cfg cfgpkg.SerialConfig, d *oxi.Dispatcher, hub *telemetry.Hub, audit storage.CommandAudit, appm *metrics.AppMetrics, logger *zap.Logger) *device.Controller {
	opts := []device.Option{
		device.WithLogger(logger.Named("device")),
		device.WithMetrics(appm),
		device.WithSessionListener(hub),
	}
	if audit != nil {
		opts = append(opts, device.WithAudit(audit))
	}
	return device.NewController(DeviceConfig(cfg), d, opts...)
}

// LoadPorts 读取端口清单并合并配置中的默认端口
func LoadPorts(cfg cfgpkg.SerialConfig) ([]ports.Port, error) {
	cat, err := ports.Load(cfg.PortsFile)
	if err != nil {
		return nil, err
	}
	return cat.WithDefault(cfg.Port, cfg.BaudRate), nil
}
