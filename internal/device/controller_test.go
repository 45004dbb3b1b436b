package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pulseox/internal/metrics"
	"github.com/taoyao-code/pulseox/internal/protocol/oxi"
	"github.com/taoyao-code/pulseox/internal/serial"
	"github.com/taoyao-code/pulseox/internal/storage"
	"github.com/taoyao-code/pulseox/internal/storage/models"
	"github.com/taoyao-code/pulseox/internal/timeentry"
)

var errUnplugged = errors.New("input/output error")

// memPort 内存串口
type memPort struct {
	mu     sync.Mutex
	rx     [][]byte
	tx     [][]byte
	closed bool
	unplug bool
}

func (p *memPort) SetReadTimeout(time.Duration) error { return nil }

func (p *memPort) Read(b []byte) (int, error) {
	deadline := time.Now().Add(20 * time.Millisecond)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		switch {
		case p.closed:
			p.mu.Unlock()
			return 0, errors.New("port closed")
		case p.unplug:
			p.mu.Unlock()
			return 0, errUnplugged
		case len(p.rx) > 0:
			n := copy(b, p.rx[0])
			p.rx = p.rx[1:]
			p.mu.Unlock()
			return n, nil
		}
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	return 0, nil
}

func (p *memPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	p.tx = append(p.tx, append([]byte(nil), b...))
	return len(b), nil
}

func (p *memPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *memPort) inject(b []byte) {
	p.mu.Lock()
	p.rx = append(p.rx, append([]byte(nil), b...))
	p.mu.Unlock()
}

func (p *memPort) pull() {
	p.mu.Lock()
	p.unplug = true
	p.mu.Unlock()
}

func (p *memPort) written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.tx...)
}

// portFactory 每次打开返回新的 memPort
type portFactory struct {
	mu    sync.Mutex
	ports []*memPort
	fail  error
}

func (f *portFactory) open(string, int) (serial.Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	p := &memPort{}
	f.ports = append(f.ports, p)
	return p, nil
}

func (f *portFactory) latest() *memPort {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ports) == 0 {
		return nil
	}
	return f.ports[len(f.ports)-1]
}

func (f *portFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ports)
}

type sessionRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *sessionRecorder) BeginSession(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *sessionRecorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

type fixture struct {
	ctl      *Controller
	ports    *portFactory
	audit    *storage.MemoryAudit
	metrics  *metrics.AppMetrics
	sessions *sessionRecorder
	disp     *oxi.Dispatcher
	samples  chan oxi.DataSample
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		ports:    &portFactory{},
		audit:    storage.NewMemoryAudit(100),
		metrics:  metrics.NewAppMetrics(prometheus.NewRegistry()),
		sessions: &sessionRecorder{},
		samples:  make(chan oxi.DataSample, 16),
	}
	f.disp = oxi.NewDispatcher(oxi.ConsumerFuncs{
		DataSample: func(s oxi.DataSample) { f.samples <- s },
	})
	if cfg.Serial.Port == "" {
		cfg.Serial.Port = "/dev/ttyUSB0"
	}
	if cfg.SendRate == 0 {
		cfg.SendRate, cfg.SendBurst = 1000, 100
	}
	f.ctl = NewController(cfg, f.disp,
		WithOpener(f.ports.open),
		WithAudit(f.audit),
		WithMetrics(f.metrics),
		WithSessionListener(f.sessions),
	)
	t.Cleanup(func() { _ = f.ctl.Close() })
	return f
}

func (f *fixture) lastAudit(t *testing.T) models.CommandLog {
	t.Helper()
	recs, err := f.audit.List(context.Background(), storage.ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func TestController_NotConnected(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	res, err := f.ctl.CheckCom(ctx)
	require.ErrorIs(t, err, serial.ErrNotConnected)
	assert.Equal(t, models.ResultFailed, res.Result)
	assert.Equal(t, "10FFFFFFFFFF04", res.Frame)

	rec := f.lastAudit(t)
	assert.Equal(t, "check_com", rec.Command)
	assert.Equal(t, models.ResultFailed, rec.Result)
	assert.Equal(t, res.CorrelationID, rec.CorrelationID)
	assert.Equal(t, serial.StateClosed, f.ctl.State())
	assert.Equal(t, "closed", f.ctl.Status().State)
}

func TestController_ValidationRejectedBeforeWire(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.ctl.Open(ctx, "", 0))

	_, err := f.ctl.SetThreshold(ctx, 0, 50)
	var ve *oxi.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "high", ve.Field)

	_, err = f.ctl.SetInterval(ctx, 0)
	require.ErrorIs(t, err, oxi.ErrValidation)

	_, err = f.ctl.SetRTCEntry(ctx, timeentry.Entry{Mode: timeentry.ModeTwentyFourHour, Date: "2023-02-30", Clock: "10:00:00"})
	var ee *timeentry.EntryError
	require.ErrorAs(t, err, &ee)

	_, err = f.ctl.SetRTCEntry(ctx, timeentry.Entry{})
	require.ErrorIs(t, err, timeentry.ErrNoTimeMode)

	assert.Empty(t, f.ports.latest().written())
	recs, err := f.audit.List(ctx, storage.ListFilter{Result: models.ResultRejected})
	require.NoError(t, err)
	require.Len(t, recs, 4)
	for _, r := range recs {
		assert.Empty(t, r.FrameHex)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.CommandsTotal.WithLabelValues("set_rtc", models.ResultRejected)))
}

func TestController_SendsCommands(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.ctl.Open(ctx, "/dev/ttyACM0", 9600))

	st := f.ctl.Status()
	assert.Equal(t, "open", st.State)
	assert.Equal(t, "/dev/ttyACM0", st.Port)
	assert.Equal(t, 9600, st.BaudRate)
	require.NotNil(t, st.Session)

	calls := []func() (Result, error){
		func() (Result, error) { return f.ctl.CheckCom(ctx) },
		func() (Result, error) { return f.ctl.ReadRecord(ctx) },
		func() (Result, error) { return f.ctl.ClearRecord(ctx) },
		func() (Result, error) { return f.ctl.SetThreshold(ctx, 0x78, 0x3C) },
		func() (Result, error) { return f.ctl.SetInterval(ctx, 5) },
		func() (Result, error) { return f.ctl.SetRTC(ctx, 1700000000) },
		func() (Result, error) {
			return f.ctl.SetRTCEntry(ctx, timeentry.Entry{Mode: timeentry.ModeTwelveHour, Date: "2023-11-14", Clock: "10:13:20 PM"})
		},
	}
	for _, call := range calls {
		res, err := call()
		require.NoError(t, err)
		assert.Equal(t, models.ResultOK, res.Result)
		assert.Equal(t, st.Session.SessionID, res.SessionID)
	}

	want := [][]byte{
		oxi.BuildCheckCom(),
		oxi.BuildReadRecord(),
		oxi.BuildClearRecord(),
		{0x12, 0xFF, 0xFF, 0x78, 0x3C, 0xFF, 0x04},
		{0x13, 0x00, 0x00, 0x00, 0x05, 0xFF, 0x04},
		{0x14, 0x65, 0x53, 0xF1, 0x00, 0xFF, 0x04},
		{0x14, 0x65, 0x53, 0xF1, 0x00, 0xFF, 0x04},
	}
	assert.Equal(t, want, f.ports.latest().written())

	rec := f.lastAudit(t)
	assert.Equal(t, "set_rtc", rec.Command)
	assert.Equal(t, "146553F100FF04", rec.FrameHex)
	assert.Equal(t, "/dev/ttyACM0", rec.Port)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CommandsTotal.WithLabelValues("check_com", models.ResultOK)))
}

func TestController_OpenResetsClockAndForwardsFrames(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.disp.Clock().Update(oxi.TimestampTag{Epoch: 1})

	require.NoError(t, f.ctl.Open(ctx, "", 0))
	_, ok := f.disp.Clock().Latest()
	assert.False(t, ok)
	require.Len(t, f.sessions.IDs(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SessionOpen))

	f.ports.latest().inject([]byte{0x11, 0x00, 0x00, 0x04, 0x80, 0xFF, 0x04})
	select {
	case s := <-f.samples:
		assert.Equal(t, oxi.KindHeartRate, s.Kind)
		assert.Equal(t, uint32(0x48), s.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("sample not dispatched")
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FramesReceived))
	assert.Equal(t, 7.0, testutil.ToFloat64(f.metrics.SerialBytesReceived))
}

// orderRecorder 记录会话开始与时间戳到达的先后
type orderRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *orderRecorder) add(step string) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
}

func (r *orderRecorder) BeginSession(string) {
	r.add("begin")
	// 放大会话开始通知与接收循环之间的窗口
	time.Sleep(30 * time.Millisecond)
}

func (r *orderRecorder) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

func TestController_TimestampBeforeOpenReturnsIsKept(t *testing.T) {
	rec := &orderRecorder{}
	samples := make(chan oxi.DataSample, 4)
	disp := oxi.NewDispatcher(oxi.ConsumerFuncs{
		TimestampTag: func(oxi.TimestampTag) { rec.add("tag") },
		DataSample:   func(s oxi.DataSample) { samples <- s },
	})
	disp.Clock().Update(oxi.TimestampTag{Epoch: 1})

	var port *memPort
	opener := func(string, int) (serial.Port, error) {
		// 设备在端口打开后立即上报时间戳
		port = &memPort{}
		port.inject(oxi.BuildSetRTC(1700000000))
		return port, nil
	}
	ctl := NewController(Config{Serial: serial.Config{Port: "/dev/ttyUSB0"}, SendRate: 10, SendBurst: 1}, disp,
		WithOpener(opener), WithSessionListener(rec))
	t.Cleanup(func() { _ = ctl.Close() })

	require.NoError(t, ctl.Open(context.Background(), "", 0))
	require.Eventually(t, func() bool { return len(rec.Steps()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"begin", "tag"}, rec.Steps())

	tag, ok := disp.Clock().Latest()
	require.True(t, ok, "首个时间戳不能被会话重置清掉")
	assert.Equal(t, uint32(1700000000), tag.Epoch)

	port.inject([]byte{0x11, 0x00, 0x00, 0x04, 0x80, 0xFF, 0x04})
	select {
	case s := <-samples:
		assert.True(t, s.Time.Anchored)
	case <-time.After(2 * time.Second):
		t.Fatal("sample not dispatched")
	}
}

func TestController_AlreadyOpenAndClose(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	require.NoError(t, f.ctl.Open(ctx, "", 0))
	require.ErrorIs(t, f.ctl.Open(ctx, "", 0), ErrAlreadyOpen)

	require.NoError(t, f.ctl.Close())
	require.NoError(t, f.ctl.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.SessionOpen))

	_, err := f.ctl.CheckCom(ctx)
	require.ErrorIs(t, err, serial.ErrNotConnected)

	// 关闭后可以重新打开
	require.NoError(t, f.ctl.Open(ctx, "", 0))
	assert.Equal(t, 2, f.ports.count())
}

func TestController_OpenFailure(t *testing.T) {
	for _, reconnect := range []bool{false, true} {
		f := newFixture(t, Config{Reconnect: reconnect, MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
		f.ports.fail = errors.New("no such file or directory")

		err := f.ctl.Open(context.Background(), "", 0)
		var ce *serial.ConnectionError
		require.ErrorAs(t, err, &ce, "reconnect=%v", reconnect)
		assert.Equal(t, "open", ce.Op)
		assert.Equal(t, "closed", f.ctl.Status().State)
		assert.Contains(t, f.ctl.Status().LastError, "no such file")

		// 失败后不残留会话
		f.ports.fail = nil
		require.NoError(t, f.ctl.Open(context.Background(), "", 0))
	}
}

func TestController_RateLimited(t *testing.T) {
	f := newFixture(t, Config{SendRate: 0.001, SendBurst: 1})
	ctx := context.Background()
	require.NoError(t, f.ctl.Open(ctx, "", 0))

	_, err := f.ctl.CheckCom(ctx)
	require.NoError(t, err)
	res, err := f.ctl.CheckCom(ctx)
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, models.ResultRateLimited, res.Result)

	assert.Len(t, f.ports.latest().written(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RateLimitedTotal))
	assert.Equal(t, int64(1), f.ctl.Status().Limiter.RejectedTotal)
}

func TestController_LostWithoutReconnect(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.ctl.Open(context.Background(), "", 0))

	f.ports.latest().pull()
	require.Eventually(t, func() bool {
		st := f.ctl.Status()
		return st.State == "closed" && st.LastError != ""
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, f.ctl.Status().LastError, errUnplugged.Error())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.SessionOpen))

	// 会话已释放，可以直接重新打开
	require.NoError(t, f.ctl.Open(context.Background(), "", 0))
}

func TestController_ReconnectsAfterLoss(t *testing.T) {
	f := newFixture(t, Config{Reconnect: true, MinBackoff: 5 * time.Millisecond, MaxBackoff: 20 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, f.ctl.Open(ctx, "", 0))
	require.Equal(t, "open", f.ctl.Status().State)
	first := f.ports.latest()

	first.pull()
	require.Eventually(t, func() bool {
		p := f.ports.latest()
		return p != first && f.ctl.State() == serial.StateOpen && len(f.sessions.IDs()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ReconnectTotal))

	_, err := f.ctl.CheckCom(ctx)
	require.NoError(t, err)
	assert.Len(t, f.ports.latest().written(), 1)

	require.NoError(t, f.ctl.Close())
	assert.Equal(t, "closed", f.ctl.Status().State)
}
