package serial

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/pulseox/internal/protocol/oxi"
)

// State 会话状态
type State int32

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// FrameHandler 接收拆好的 7 字节帧（oxi.Dispatcher 实现该接口）
type FrameHandler interface {
	HandleRaw(raw []byte)
	ReportMalformed(err error)
}

// Stats 会话统计
type Stats struct {
	SessionID string    `json:"session_id"`
	Port      string    `json:"port"`
	State     string    `json:"state"`
	OpenedAt  time.Time `json:"opened_at"`
	BytesIn   int64     `json:"bytes_in"`
	BytesOut  int64     `json:"bytes_out"`
	FramesIn  int64     `json:"frames_in"`
	Skipped   int64     `json:"skipped_runs"`
	Writes    int64     `json:"writes"`
}

// Option 会话可选项
type Option func(*Session)

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLostHandler 读循环因端口错误退出时回调（在会话完全关闭后调用）
func WithLostHandler(fn func(err error)) Option {
	return func(s *Session) { s.onLost = fn }
}

// WithBytesObserver 每次读到数据时回调字节数
func WithBytesObserver(fn func(n int)) Option {
	return func(s *Session) { s.onBytes = fn }
}

// WithStartHook 接收循环启动前回调，此时尚无任何帧被分发
func WithStartHook(fn func(id string)) Option {
	return func(s *Session) { s.onStart = fn }
}

// Session 单个串口会话：一个接收 goroutine，发送方串行写入
type Session struct {
	id      string
	cfg     Config
	port    Port
	handler FrameHandler
	decoder *oxi.StreamDecoder
	log     *zap.Logger
	onLost  func(err error)
	onBytes func(n int)
	onStart func(id string)

	writeMu   sync.Mutex
	state     atomic.Int32
	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	doneC     chan struct{}
	lostErr   atomic.Pointer[ConnectionError]
	openedAt  time.Time

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
	framesIn atomic.Int64
	skipped  atomic.Int64
	writes   atomic.Int64
}

// Open 打开串口并启动接收循环。
// opener 为 nil 时使用 DefaultOpener。
func Open(ctx context.Context, opener Opener, cfg Config, handler FrameHandler, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, newConnectionError("open", cfg.Port, err)
	}
	if opener == nil {
		opener = DefaultOpener
	}
	p, err := opener(cfg.Port, cfg.BaudRate)
	if err != nil {
		return nil, newConnectionError("open", cfg.Port, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, newConnectionError("open", cfg.Port, err)
	}

	s := &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		port:     p,
		handler:  handler,
		decoder:  oxi.NewStreamDecoder(cfg.Resync),
		log:      zap.NewNop(),
		doneC:    make(chan struct{}),
		openedAt: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(zap.String("session_id", s.id), zap.String("port", cfg.Port))
	if s.onStart != nil {
		s.onStart(s.id)
	}
	s.state.Store(int32(StateOpen))
	go s.readLoop()

	s.log.Info("serial session opened",
		zap.Int("baud", cfg.BaudRate),
		zap.Duration("read_timeout", cfg.ReadTimeout),
		zap.Bool("resync", cfg.Resync))
	return s, nil
}

// ID 会话 ID
func (s *Session) ID() string { return s.id }

// PortName 端口名
func (s *Session) PortName() string { return s.cfg.Port }

// State 当前状态
func (s *Session) State() State { return State(s.state.Load()) }

// Done 会话结束通知
func (s *Session) Done() <-chan struct{} { return s.doneC }

// Err 会话因端口错误结束时返回原因；正常关闭或仍在运行返回 nil
func (s *Session) Err() error {
	if e := s.lostErr.Load(); e != nil {
		return e
	}
	return nil
}

// Stats 统计快照
func (s *Session) Stats() Stats {
	return Stats{
		SessionID: s.id,
		Port:      s.cfg.Port,
		State:     s.State().String(),
		OpenedAt:  s.openedAt,
		BytesIn:   s.bytesIn.Load(),
		BytesOut:  s.bytesOut.Load(),
		FramesIn:  s.framesIn.Load(),
		Skipped:   s.skipped.Load(),
		Writes:    s.writes.Load(),
	}
}

// Send 写入一帧。会话未打开返回 ErrNotConnected，写失败返回 *ConnectionError
func (s *Session) Send(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.State() != StateOpen {
		return ErrNotConnected
	}
	n, err := s.port.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if n > 0 {
		s.bytesOut.Add(int64(n))
	}
	if err != nil {
		if s.closing.Load() {
			return ErrNotConnected
		}
		return newConnectionError("write", s.cfg.Port, err)
	}
	s.writes.Add(1)
	return nil
}

// Close 停止接收循环并释放端口，可重复调用。
// 不可在 FrameHandler 回调中调用（会等待接收循环退出）。
func (s *Session) Close() error {
	s.shutdown()
	<-s.doneC
	return s.closeErr
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.state.Store(int32(StateClosed))
		// 关闭端口会唤醒阻塞中的 Read；否则最多等待一个读超时
		s.closeErr = s.port.Close()
	})
}

func (s *Session) readLoop() {
	var lost *ConnectionError
	defer func() {
		s.shutdown()
		close(s.doneC)
		if lost != nil {
			s.log.Warn("serial session lost", zap.Error(lost))
			if s.onLost != nil {
				s.onLost(lost)
			}
			return
		}
		s.log.Info("serial session closed")
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.bytesIn.Add(int64(n))
			if s.onBytes != nil {
				s.onBytes(n)
			}
			s.deliver(buf[:n])
		}
		if s.closing.Load() {
			return
		}
		if err != nil {
			lost = newConnectionError("read", s.cfg.Port, err)
			s.lostErr.Store(lost)
			return
		}
		// n == 0 且无错误：读超时，继续
	}
}

func (s *Session) deliver(p []byte) {
	for _, c := range s.decoder.Feed(p) {
		if s.handler == nil {
			continue
		}
		if c.Err != nil {
			s.skipped.Add(1)
			s.safeCall(func() { s.handler.ReportMalformed(c.Err) })
			continue
		}
		s.framesIn.Add(1)
		raw := c.Raw
		s.safeCall(func() { s.handler.HandleRaw(raw) })
	}
}

// safeCall 下游 panic 不影响接收循环
func (s *Session) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("frame handler panic", zap.Any("panic", r))
		}
	}()
	fn()
}
