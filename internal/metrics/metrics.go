package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	SerialBytesReceived prometheus.Counter
	FramesReceived      prometheus.Counter
	DispatchTotal       *prometheus.CounterVec // labels: result=data_sample|timestamp_tag|error_report|<错误分类>
	SamplesTotal        *prometheus.CounterVec // labels: kind, anchored
	CommandsTotal       *prometheus.CounterVec // labels: cmd, result
	RateLimitedTotal    prometheus.Counter
	SessionOpen         prometheus.Gauge // 1=串口会话已打开
	ReconnectTotal      prometheus.Counter
	ThresholdState      *prometheus.GaugeVec   // labels: state，当前状态为 1
	HeartRate           prometheus.Gauge       // 最近一次心率
	SinkErrorsTotal     *prometheus.CounterVec // labels: sink
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		SerialBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulseox_serial_bytes_received_total",
			Help: "Total bytes received over the serial link.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulseox_frames_received_total",
			Help: "Total 7-byte frames cut from the serial stream.",
		}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseox_dispatch_total",
			Help: "Inbound frames by dispatch result.",
		}, []string{"result"}),
		SamplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseox_samples_total",
			Help: "Decoded data samples by kind.",
		}, []string{"kind", "anchored"}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseox_commands_total",
			Help: "Outbound commands by command and result.",
		}, []string{"cmd", "result"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulseox_commands_rate_limited_total",
			Help: "Outbound commands rejected by the rate limiter.",
		}),
		SessionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulseox_serial_session_open",
			Help: "1 when a serial session is open.",
		}),
		ReconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulseox_serial_reconnect_total",
			Help: "Serial reconnect attempts.",
		}),
		ThresholdState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulseox_threshold_state",
			Help: "Current heart-rate threshold state (1 for the active state).",
		}, []string{"state"}),
		HeartRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pulseox_heart_rate",
			Help: "Last reported heart rate.",
		}),
		SinkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseox_sink_errors_total",
			Help: "Telemetry sink write failures.",
		}, []string{"sink"}),
	}
	reg.MustRegister(
		m.SerialBytesReceived, m.FramesReceived, m.DispatchTotal, m.SamplesTotal,
		m.CommandsTotal, m.RateLimitedTotal, m.SessionOpen, m.ReconnectTotal,
		m.ThresholdState, m.HeartRate, m.SinkErrorsTotal,
	)
	return m
}

// SetThreshold 仅将当前状态置 1
func (m *AppMetrics) SetThreshold(state string) {
	for _, s := range []string{"normal", "high", "low", "unknown"} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ThresholdState.WithLabelValues(s).Set(v)
	}
}

// ObserveDispatch 作为 oxi.WithObserver 回调
func (m *AppMetrics) ObserveDispatch(result string, _ error) {
	m.DispatchTotal.WithLabelValues(result).Inc()
}
