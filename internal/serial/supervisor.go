package serial

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SupervisorConfig 断线重连参数
type SupervisorConfig struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// OnOpen 每次会话（重新）建立后回调
	OnOpen func(s *Session)
	// OnRetry 打开失败或会话丢失后、等待重试前回调
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Supervisor 维持一个串口会话：端口丢失后按指数退避重新打开，直到 ctx 取消
type Supervisor struct {
	opener  Opener
	cfg     Config
	handler FrameHandler
	opts    []Option
	sc      SupervisorConfig
	log     *zap.Logger

	mu  sync.RWMutex
	cur *Session
}

// NewSupervisor 创建重连守护
func NewSupervisor(opener Opener, cfg Config, handler FrameHandler, sc SupervisorConfig, logger *zap.Logger, opts ...Option) *Supervisor {
	if sc.MinBackoff <= 0 {
		sc.MinBackoff = 500 * time.Millisecond
	}
	if sc.MaxBackoff < sc.MinBackoff {
		sc.MaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		opener:  opener,
		cfg:     cfg,
		handler: handler,
		opts:    append([]Option{WithLogger(logger)}, opts...),
		sc:      sc,
		log:     logger,
	}
}

// Session 当前会话，未连接时为 nil
func (sv *Supervisor) Session() *Session {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return sv.cur
}

func (sv *Supervisor) setSession(s *Session) {
	sv.mu.Lock()
	sv.cur = s
	sv.mu.Unlock()
}

// Run 阻塞运行，ctx 取消时关闭当前会话并返回。
// 会话被外部主动 Close 时也返回（不重连）。
func (sv *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	for {
		s, err := Open(ctx, sv.opener, sv.cfg, sv.handler, sv.opts...)
		if err == nil {
			attempt = 0
			sv.setSession(s)
			if sv.sc.OnOpen != nil {
				sv.sc.OnOpen(s)
			}
			select {
			case <-ctx.Done():
				sv.setSession(nil)
				_ = s.Close()
				return ctx.Err()
			case <-s.Done():
				sv.setSession(nil)
			}
			err = s.Err()
			if err == nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		wait := sv.backoff(attempt)
		sv.log.Warn("serial reconnect scheduled",
			zap.String("port", sv.cfg.Port),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		if sv.sc.OnRetry != nil {
			sv.sc.OnRetry(attempt, wait, err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (sv *Supervisor) backoff(attempt int) time.Duration {
	d := sv.sc.MinBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= sv.sc.MaxBackoff {
			return sv.sc.MaxBackoff
		}
	}
	return d
}
