package serial

import (
	"errors"
	"sync"
	"time"
)

var errUnplugged = errors.New("input/output error")

// fakePort 内存串口：InjectRx 注入上行数据，Written 读取下行数据
type fakePort struct {
	mu       sync.Mutex
	rx       [][]byte
	tx       []byte
	timeout  time.Duration
	closed   bool
	unplug   bool
	writeErr error
}

func newFakePort() *fakePort {
	p := &fakePort{timeout: 50 * time.Millisecond}
	return p
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.timeout = t
	p.mu.Unlock()
	return nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	deadline := time.Now().Add(p.timeout)
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return 0, errors.New("port closed")
		}
		if p.unplug {
			return 0, errUnplugged
		}
		if len(p.rx) > 0 {
			n := copy(b, p.rx[0])
			if n < len(p.rx[0]) {
				p.rx[0] = p.rx[0][n:]
			} else {
				p.rx = p.rx[1:]
			}
			return n, nil
		}
		if !time.Now().Before(deadline) {
			return 0, nil
		}
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		p.mu.Lock()
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.tx = append(p.tx, b...)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePort) InjectRx(b []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, append([]byte(nil), b...))
	p.mu.Unlock()
}

func (p *fakePort) Unplug() {
	p.mu.Lock()
	p.unplug = true
	p.mu.Unlock()
}

func (p *fakePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.tx...)
}

func (p *fakePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// recordingHandler 记录收到的帧
type recordingHandler struct {
	mu        sync.Mutex
	frames    [][]byte
	malformed []error
}

func (h *recordingHandler) HandleRaw(raw []byte) {
	h.mu.Lock()
	h.frames = append(h.frames, append([]byte(nil), raw...))
	h.mu.Unlock()
}

func (h *recordingHandler) ReportMalformed(err error) {
	h.mu.Lock()
	h.malformed = append(h.malformed, err)
	h.mu.Unlock()
}

func (h *recordingHandler) Frames() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.frames...)
}

func (h *recordingHandler) Malformed() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.malformed...)
}

func openerFor(p *fakePort) Opener {
	return func(string, int) (Port, error) { return p, nil }
}
