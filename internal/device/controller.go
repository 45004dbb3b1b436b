package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/pulseox/internal/metrics"
	"github.com/taoyao-code/pulseox/internal/protocol/oxi"
	"github.com/taoyao-code/pulseox/internal/serial"
	"github.com/taoyao-code/pulseox/internal/storage"
	"github.com/taoyao-code/pulseox/internal/storage/models"
	"github.com/taoyao-code/pulseox/internal/timeentry"
)

var (
	// ErrAlreadyOpen 已有会话（或重连守护）在运行
	ErrAlreadyOpen = errors.New("device: session already open")
	// ErrRateLimited 下行命令超出速率
	ErrRateLimited = errors.New("device: command rate limited")
)

const auditTimeout = 3 * time.Second

// SessionListener 会话建立通知（telemetry.Hub 实现）
type SessionListener interface {
	BeginSession(id string)
}

// Config 控制器配置
type Config struct {
	Serial     serial.Config
	Reconnect  bool
	MinBackoff time.Duration
	MaxBackoff time.Duration
	SendRate   float64
	SendBurst  int
}

// Option 控制器可选项
type Option func(*Controller)

// WithOpener 替换串口打开方式（测试注入内存端口）
func WithOpener(o serial.Opener) Option {
	return func(c *Controller) { c.opener = o }
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.AppMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithAudit 设置命令审计存储
func WithAudit(a storage.CommandAudit) Option {
	return func(c *Controller) { c.audit = a }
}

// WithSessionListener 新会话建立时回调
func WithSessionListener(l SessionListener) Option {
	return func(c *Controller) { c.listener = l }
}

// Result 单次命令调用结果
type Result struct {
	CorrelationID string    `json:"correlation_id"`
	Command       string    `json:"command"`
	Frame         string    `json:"frame,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	Result        string    `json:"result"`
	SentAt        time.Time `json:"sent_at"`
}

// Status 链路状态
type Status struct {
	State     string           `json:"state"` // open | closed | reconnecting
	Port      string           `json:"port,omitempty"`
	BaudRate  int              `json:"baud_rate,omitempty"`
	Reconnect bool             `json:"reconnect"`
	Session   *serial.Stats    `json:"session,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	Limiter   RateLimiterStats `json:"rate_limiter"`
}

// Controller 命令调用边界：持有当前串口会话，
// 每条命令依次经过 构造校验 -> 限流 -> 发送 -> 审计 -> 指标
type Controller struct {
	cfg        Config
	dispatcher *oxi.Dispatcher
	opener     serial.Opener
	limiter    *RateLimiter
	audit      storage.CommandAudit
	listener   SessionListener
	metrics    *metrics.AppMetrics
	log        *zap.Logger

	mu        sync.Mutex
	active    serial.Config
	sess      *serial.Session
	sup       *serial.Supervisor
	supCancel context.CancelFunc
	supDone   chan struct{}
	lastErr   error
}

// NewController 创建控制器，dispatcher 接收全部上行帧
func NewController(cfg Config, dispatcher *oxi.Dispatcher, opts ...Option) *Controller {
	c := &Controller{
		cfg:        cfg,
		dispatcher: dispatcher,
		limiter:    NewRateLimiter(cfg.SendRate, cfg.SendBurst),
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.audit == nil {
		c.audit = storage.NewMemoryAudit(500)
	}
	return c
}

// Audit 审计存储
func (c *Controller) Audit() storage.CommandAudit { return c.audit }

// Open 打开串口；port/baud 为零值时使用配置默认值。
// 开启重连时首次打开失败同样直接返回错误。
func (c *Controller) Open(ctx context.Context, port string, baud int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil || c.sup != nil {
		return ErrAlreadyOpen
	}

	scfg := c.cfg.Serial
	if port != "" {
		scfg.Port = port
	}
	if baud > 0 {
		scfg.BaudRate = baud
	}
	if scfg.Port == "" {
		return &oxi.ValidationError{Field: "port", Reason: "must not be empty"}
	}
	c.active = scfg
	c.lastErr = nil

	handler := &countingHandler{next: c.dispatcher, metrics: c.metrics}
	opts := []serial.Option{
		serial.WithLogger(c.log),
		serial.WithLostHandler(c.onLost),
		serial.WithStartHook(c.sessionStarting),
	}
	if c.metrics != nil {
		opts = append(opts, serial.WithBytesObserver(func(n int) {
			c.metrics.SerialBytesReceived.Add(float64(n))
		}))
	}

	if !c.cfg.Reconnect {
		s, err := serial.Open(ctx, c.opener, scfg, handler, opts...)
		if err != nil {
			c.lastErr = err
			return err
		}
		c.sess = s
		c.sessionOpened()
		return nil
	}
	return c.startSupervisor(ctx, scfg, handler, opts)
}

func (c *Controller) startSupervisor(ctx context.Context, scfg serial.Config, handler serial.FrameHandler, opts []serial.Option) error {
	first := make(chan error, 1)
	var once sync.Once
	signal := func(err error) { once.Do(func() { first <- err }) }

	sup := serial.NewSupervisor(c.opener, scfg, handler, serial.SupervisorConfig{
		MinBackoff: c.cfg.MinBackoff,
		MaxBackoff: c.cfg.MaxBackoff,
		OnOpen: func(*serial.Session) {
			c.sessionOpened()
			signal(nil)
		},
		OnRetry: func(_ int, _ time.Duration, err error) {
			if c.metrics != nil {
				c.metrics.ReconnectTotal.Inc()
			}
			signal(err)
		},
	}, c.log, opts...)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sup.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("serial supervisor stopped", zap.Error(err))
		}
	}()

	var err error
	select {
	case err = <-first:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		<-done
		c.lastErr = err
		return err
	}
	c.sup, c.supCancel, c.supDone = sup, cancel, done
	return nil
}

// sessionStarting 在接收循环启动前调用（含每次重连），
// 新会话的样本不能沿用旧会话的时间戳
func (c *Controller) sessionStarting(id string) {
	c.dispatcher.Clock().Reset()
	if c.listener != nil {
		c.listener.BeginSession(id)
	}
}

func (c *Controller) sessionOpened() {
	if c.metrics != nil {
		c.metrics.SessionOpen.Set(1)
	}
}

// onLost 在接收 goroutine 中、会话完全关闭后调用
func (c *Controller) onLost(err error) {
	if c.metrics != nil {
		c.metrics.SessionOpen.Set(0)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	if c.sess != nil {
		select {
		case <-c.sess.Done():
			c.sess = nil
		default:
		}
	}
}

// Close 关闭当前会话并停止重连，可重复调用
func (c *Controller) Close() error {
	c.mu.Lock()
	s, cancel, done := c.sess, c.supCancel, c.supDone
	c.sess, c.sup, c.supCancel, c.supDone = nil, nil, nil, nil
	c.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		<-done
	}
	if s != nil {
		err = s.Close()
	}
	if c.metrics != nil {
		c.metrics.SessionOpen.Set(0)
	}
	return err
}

func (c *Controller) current() *serial.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sup != nil {
		return c.sup.Session()
	}
	return c.sess
}

// State 串口会话状态
func (c *Controller) State() serial.State {
	if s := c.current(); s != nil {
		return s.State()
	}
	return serial.StateClosed
}

// Status 链路状态快照
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:     "closed",
		Reconnect: c.cfg.Reconnect,
		Limiter:   c.limiter.Stats(),
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	s := c.sess
	if c.sup != nil {
		s = c.sup.Session()
		st.State = "reconnecting"
	}
	if c.sess != nil || c.sup != nil {
		st.Port, st.BaudRate = c.active.Port, c.active.BaudRate
	}
	c.mu.Unlock()

	if s != nil && s.State() == serial.StateOpen {
		stats := s.Stats()
		st.State = "open"
		st.Session = &stats
	}
	return st
}

// CheckCom 通信检测
func (c *Controller) CheckCom(ctx context.Context) (Result, error) {
	return c.send(ctx, oxi.CmdCheckCom, func() ([]byte, error) { return oxi.BuildCheckCom(), nil })
}

// ReadRecord 读取设备记录
func (c *Controller) ReadRecord(ctx context.Context) (Result, error) {
	return c.send(ctx, oxi.CmdData, func() ([]byte, error) { return oxi.BuildReadRecord(), nil })
}

// ClearRecord 清除设备记录
func (c *Controller) ClearRecord(ctx context.Context) (Result, error) {
	return c.send(ctx, oxi.CmdClearRecord, func() ([]byte, error) { return oxi.BuildClearRecord(), nil })
}

// SetThreshold 设置心率上下限
func (c *Controller) SetThreshold(ctx context.Context, high, low uint8) (Result, error) {
	return c.send(ctx, oxi.CmdSetThreshold, func() ([]byte, error) { return oxi.BuildSetThreshold(high, low) })
}

// SetInterval 设置上报间隔
func (c *Controller) SetInterval(ctx context.Context, seconds uint32) (Result, error) {
	return c.send(ctx, oxi.CmdSetInterval, func() ([]byte, error) { return oxi.BuildSetInterval(seconds) })
}

// SetRTC 以 epoch 秒设置设备时间
func (c *Controller) SetRTC(ctx context.Context, epoch uint32) (Result, error) {
	return c.send(ctx, oxi.CmdSetRTC, func() ([]byte, error) { return oxi.BuildSetRTC(epoch), nil })
}

// SetRTCEntry 按用户输入（12h/24h/epoch）设置设备时间，时区与遥测一致
func (c *Controller) SetRTCEntry(ctx context.Context, e timeentry.Entry) (Result, error) {
	return c.send(ctx, oxi.CmdSetRTC, func() ([]byte, error) {
		epoch, err := e.Resolve(c.dispatcher.Location())
		if err != nil {
			return nil, err
		}
		return oxi.BuildSetRTC(epoch), nil
	})
}

func (c *Controller) send(ctx context.Context, cmd oxi.CommandID, build func() ([]byte, error)) (Result, error) {
	rec := &models.CommandLog{
		CorrelationID: uuid.NewString(),
		Command:       cmd.String(),
	}

	frame, err := build()
	if err != nil {
		return c.finish(ctx, rec, models.ResultRejected, err)
	}
	rec.FrameHex = fmt.Sprintf("%X", frame)

	if !c.limiter.Allow() {
		if c.metrics != nil {
			c.metrics.RateLimitedTotal.Inc()
		}
		return c.finish(ctx, rec, models.ResultRateLimited, ErrRateLimited)
	}

	s := c.current()
	if s == nil {
		return c.finish(ctx, rec, models.ResultFailed, serial.ErrNotConnected)
	}
	rec.SessionID, rec.Port = s.ID(), s.PortName()
	if err := s.Send(frame); err != nil {
		return c.finish(ctx, rec, models.ResultFailed, err)
	}
	return c.finish(ctx, rec, models.ResultOK, nil)
}

func (c *Controller) finish(ctx context.Context, rec *models.CommandLog, result string, cause error) (Result, error) {
	rec.Result = result
	rec.CreatedAt = time.Now()
	if cause != nil {
		rec.Error = cause.Error()
	}

	// 请求被取消也要留下审计记录
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := c.audit.Record(actx, rec); err != nil {
		c.log.Warn("command audit failed", zap.String("correlation_id", rec.CorrelationID), zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.CommandsTotal.WithLabelValues(rec.Command, result).Inc()
	}

	fields := []zap.Field{
		zap.String("command", rec.Command),
		zap.String("correlation_id", rec.CorrelationID),
		zap.String("frame", rec.FrameHex),
		zap.String("result", result),
	}
	if cause != nil {
		c.log.Warn("command not sent", append(fields, zap.Error(cause))...)
	} else {
		c.log.Info("command sent", fields...)
	}

	return Result{
		CorrelationID: rec.CorrelationID,
		Command:       rec.Command,
		Frame:         rec.FrameHex,
		SessionID:     rec.SessionID,
		Result:        result,
		SentAt:        rec.CreatedAt,
	}, cause
}

// countingHandler 统计切出的帧后交给 Dispatcher
type countingHandler struct {
	next    serial.FrameHandler
	metrics *metrics.AppMetrics
}

func (h *countingHandler) HandleRaw(raw []byte) {
	if h.metrics != nil {
		h.metrics.FramesReceived.Inc()
	}
	h.next.HandleRaw(raw)
}

func (h *countingHandler) ReportMalformed(err error) { h.next.ReportMalformed(err) }
