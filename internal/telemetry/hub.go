package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/pulseox/internal/dsp"
	"github.com/taoyao-code/pulseox/internal/metrics"
	"github.com/taoyao-code/pulseox/internal/protocol/oxi"
)

// Sink 事件下游（MQTT、Redis、PostgreSQL）
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// UnanchoredPolicy 未挂时间样本的处理方式
type UnanchoredPolicy string

const (
	PolicyDrop   UnanchoredPolicy = "drop"
	PolicyBuffer UnanchoredPolicy = "buffer"
)

// Options Hub 配置
type Options struct {
	Policy         UnanchoredPolicy
	BufferSize     int
	HostFilter     bool
	HistorySize    int
	QueueSize      int
	PublishTimeout time.Duration
	Location       *time.Location

	// 连续失败 BreakerThreshold 次后暂停该 Sink BreakerCooldown
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Policy == "" {
		o.Policy = PolicyDrop
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 256
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 300
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 3 * time.Second
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	return o
}

// Hub 实现 oxi.Consumer：更新内存快照并异步扇出到各 Sink。
// 回调在串口接收 goroutine 中执行，不做任何阻塞 I/O。
type Hub struct {
	opts    Options
	sinks   []guardedSink
	queue   chan Event
	log     *zap.Logger
	metrics *metrics.AppMetrics
	now     func() time.Time

	mu        sync.Mutex
	sessionID string
	pending   []oxi.DataSample
	filter    *dsp.IIR
	snap      snapshotState

	dropped  atomic.Int64
	overflow atomic.Int64
}

// NewHub 创建事件中心
func NewHub(opts Options, logger *zap.Logger, m *metrics.AppMetrics, sinks ...Sink) *Hub {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	guarded := make([]guardedSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			guarded = append(guarded, guardedSink{Sink: s, breaker: newCircuitBreaker(opts.BreakerThreshold, opts.BreakerCooldown)})
		}
	}
	h := &Hub{
		opts:    opts,
		sinks:   guarded,
		queue:   make(chan Event, opts.QueueSize),
		log:     logger,
		metrics: m,
		now:     time.Now,
		snap:    newSnapshotState(opts.HistorySize),
	}
	if opts.HostFilter {
		h.filter = dsp.NewPPGFilter()
	}
	return h
}

// BeginSession 新会话开始：清空未挂时间缓冲与滤波历史
func (h *Hub) BeginSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionID = id
	h.pending = nil
	if h.filter != nil {
		h.filter.Reset()
	}
}

// OnThresholdStatus 阈值状态仅在变化时发布
func (h *Hub) OnThresholdStatus(s oxi.ThresholdStatus) {
	if h.metrics != nil {
		h.metrics.SetThreshold(s.State.String())
	}
	h.mu.Lock()
	changed := h.snap.setThreshold(s.State.String())
	h.mu.Unlock()
	if !changed {
		return
	}
	ev := newEvent(EventThreshold, h.now())
	ev.State = s.State.String()
	ev.RawStatus = fmt.Sprintf("%02X", s.Raw)
	h.emit(ev)
}

// OnDataSample 处理样本；未挂时间的样本按策略丢弃或缓冲
func (h *Hub) OnDataSample(s oxi.DataSample) {
	if h.metrics != nil {
		h.metrics.SamplesTotal.WithLabelValues(s.Kind.String(), strconv.FormatBool(s.Time.Anchored)).Inc()
	}
	if s.Kind.Anchorable() && !s.Time.Anchored {
		if h.opts.Policy == PolicyBuffer {
			h.mu.Lock()
			if len(h.pending) >= h.opts.BufferSize {
				h.pending = h.pending[1:]
				h.dropped.Add(1)
			}
			h.pending = append(h.pending, s)
			h.mu.Unlock()
			return
		}
		h.dropped.Add(1)
		return
	}
	h.publishSample(s)
}

// OnTimestampTag 发布时间戳并释放缓冲的样本
func (h *Hub) OnTimestampTag(t oxi.TimestampTag) {
	now := h.now()
	ev := newEvent(EventDeviceRTC, now)
	ev.Epoch = t.Epoch
	ev.Hours = t.FractionalHours()
	dt := t.Time().In(h.opts.Location)
	ev.DeviceTime = &dt

	h.mu.Lock()
	h.snap.lastRTC = &ev
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	h.emit(ev)

	st := oxi.SampleTime{Anchored: true, Hours: t.FractionalHours(), Tag: t}
	for _, s := range pending {
		s.Time = st
		h.publishSample(s)
	}
}

// OnErrorReport 设备错误报告
func (h *Hub) OnErrorReport(oxi.ErrorReport) {
	ev := newEvent(EventDeviceError, h.now())
	h.mu.Lock()
	h.snap.lastDeviceError = &ev
	h.mu.Unlock()
	h.emit(ev)
}

// OnMalformedFrame 结构错误
func (h *Hub) OnMalformedFrame(err error) { h.protocolError(err) }

// OnDecodeError 语义错误
func (h *Hub) OnDecodeError(err error) { h.protocolError(err) }

func (h *Hub) protocolError(err error) {
	ev := newEvent(EventProtocolError, h.now())
	ev.ErrorClass = oxi.ErrorClass(err)
	ev.Error = err.Error()
	h.mu.Lock()
	h.snap.protocolErrors++
	h.mu.Unlock()
	h.log.Debug("protocol error", zap.String("class", ev.ErrorClass), zap.Error(err))
	h.emit(ev)
}

func (h *Hub) publishSample(s oxi.DataSample) {
	now := h.now()
	ev := sampleEvent(s, now, h.opts.Location)
	var filtered *Event
	if s.Kind == oxi.KindRawPPG && h.filter != nil {
		fe := ev
		fe.EventID = newEvent(EventPPGHostFiltered, now).EventID
		fe.EventType = EventPPGHostFiltered
		fe.Value = h.filter.Apply(ev.Value)
		filtered = &fe
	}
	if s.Kind == oxi.KindHeartRate && h.metrics != nil {
		h.metrics.HeartRate.Set(ev.Value)
	}

	h.mu.Lock()
	h.snap.recordSample(ev)
	if filtered != nil {
		h.snap.recordSample(*filtered)
	}
	h.mu.Unlock()

	h.emit(ev)
	if filtered != nil {
		h.emit(*filtered)
	}
}

// emit 非阻塞入队，队列满时丢弃
func (h *Hub) emit(ev Event) {
	h.mu.Lock()
	ev.SessionID = h.sessionID
	h.mu.Unlock()
	if len(h.sinks) == 0 {
		return
	}
	select {
	case h.queue <- ev:
	default:
		if n := h.overflow.Add(1); n == 1 || n%1000 == 0 {
			h.log.Warn("telemetry queue full, dropping events", zap.Int64("dropped_total", n))
		}
	}
}

// Run 消费事件队列并写入各 Sink，ctx 结束后尽量发完剩余事件
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.drain()
			return
		case ev := <-h.queue:
			h.deliver(context.Background(), ev)
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case ev := <-h.queue:
			h.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (h *Hub) deliver(parent context.Context, ev Event) {
	for _, s := range h.sinks {
		if err := s.breaker.allow(); err != nil {
			if h.metrics != nil {
				h.metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			}
			continue
		}
		ctx, cancel := context.WithTimeout(parent, h.opts.PublishTimeout)
		err := s.Publish(ctx, ev)
		cancel()
		from, to := s.breaker.record(err)
		if err != nil {
			if h.metrics != nil {
				h.metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			}
			h.log.Warn("telemetry sink publish failed",
				zap.String("sink", s.Name()),
				zap.String("event_type", string(ev.EventType)),
				zap.Error(err))
		}
		if from != to {
			h.log.Info("telemetry sink circuit changed",
				zap.String("sink", s.Name()),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		}
	}
}

// Snapshot 当前内存快照
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.snap.export()
	s.SessionID = h.sessionID
	s.Buffered = len(h.pending)
	s.Dropped = h.dropped.Load()
	s.QueueOverflow = h.overflow.Load()
	if len(h.sinks) > 0 {
		s.Sinks = make(map[string]SinkState, len(h.sinks))
		for _, g := range h.sinks {
			s.Sinks[g.Name()] = g.breaker.snapshot()
		}
	}
	return s
}
