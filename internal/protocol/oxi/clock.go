package oxi

import "sync"

// Clock 会话内最近一次收到的设备时间戳
// 只由 Dispatcher 处理时间戳帧时写入，样本打时间时读取
type Clock struct {
	mu   sync.RWMutex
	last TimestampTag
	set  bool
}

func NewClock() *Clock { return &Clock{} }

// Update 记录最新时间戳
func (c *Clock) Update(t TimestampTag) {
	c.mu.Lock()
	c.last, c.set = t, true
	c.mu.Unlock()
}

// Latest 返回最新时间戳；从未收到时 ok=false
func (c *Clock) Latest() (TimestampTag, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.set
}

// Reset 新会话开始时清空
func (c *Clock) Reset() {
	c.mu.Lock()
	c.last, c.set = TimestampTag{}, false
	c.mu.Unlock()
}

// Stamp 为样本生成时间
func (c *Clock) Stamp(kind SampleKind) SampleTime {
	if !kind.Anchorable() {
		return SampleTime{}
	}
	tag, ok := c.Latest()
	if !ok {
		return SampleTime{}
	}
	return SampleTime{Anchored: true, Hours: tag.FractionalHours(), Tag: tag}
}
