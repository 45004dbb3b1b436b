package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pulseox/internal/metrics"
	"github.com/taoyao-code/pulseox/internal/protocol/oxi"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *memSink) Name() string { return "mem" }

func (s *memSink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *memSink) Types() []EventType {
	var out []EventType
	for _, e := range s.Events() {
		out = append(out, e.EventType)
	}
	return out
}

// runHub 启动 Run，返回停止并等待排空的函数
func runHub(h *Hub) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func frame(t *testing.T, cmd oxi.CommandID, payload uint32) []byte {
	t.Helper()
	raw, err := oxi.Encode(cmd, oxi.PayloadFromUint32(payload), oxi.StatusNormal)
	require.NoError(t, err)
	return raw
}

func TestHub_DropPolicy(t *testing.T) {
	sink := &memSink{}
	h := NewHub(Options{Policy: PolicyDrop}, nil, nil, sink)
	d := oxi.NewDispatcher(h)
	stop := runHub(h)

	d.HandleRaw(frame(t, oxi.CmdData, 0x00000480)) // 未挂时间心率，丢弃
	d.HandleRaw(frame(t, oxi.CmdData, 0x00000013)) // 日志样本不需要时间
	d.HandleRaw(frame(t, oxi.CmdSetRTC, 1700000000))
	d.HandleRaw(frame(t, oxi.CmdData, 0x00000490))
	stop()

	assert.Equal(t, []EventType{EventThreshold, EventLog, EventDeviceRTC, EventHeartRate}, sink.Types())
	hr := sink.Events()[3]
	assert.Equal(t, float64(0x49), hr.Value)
	assert.True(t, hr.Anchored)
	require.NotNil(t, hr.DeviceTime)
	assert.Equal(t, int64(1700000000), hr.DeviceTime.Unix())

	snap := h.Snapshot()
	assert.Equal(t, int64(1), snap.Dropped)
	assert.Equal(t, "normal", snap.Threshold)
	require.Len(t, snap.HeartRates, 1)
}

func TestHub_BufferPolicyReleasesOnTimestamp(t *testing.T) {
	sink := &memSink{}
	h := NewHub(Options{Policy: PolicyBuffer, BufferSize: 2}, nil, nil, sink)
	d := oxi.NewDispatcher(h)
	stop := runHub(h)

	d.HandleRaw(frame(t, oxi.CmdData, 0x00000010)) // 心率 1，超出缓冲被挤掉
	d.HandleRaw(frame(t, oxi.CmdData, 0x00000021)) // 滤波 PPG 2
	d.HandleRaw(frame(t, oxi.CmdData, 0x00000032)) // 原始 PPG 3
	assert.Equal(t, 2, h.Snapshot().Buffered)
	d.HandleRaw(frame(t, oxi.CmdSetRTC, 3600*8))
	stop()

	assert.Equal(t, []EventType{EventThreshold, EventDeviceRTC, EventPPGFiltered, EventPPGRaw}, sink.Types())
	for _, ev := range sink.Events()[2:] {
		assert.True(t, ev.Anchored)
		assert.InDelta(t, 8.0, ev.Hours, 1e-9)
	}
	snap := h.Snapshot()
	assert.Equal(t, 0, snap.Buffered)
	assert.Equal(t, int64(1), snap.Dropped)
}

func TestHub_HostFilter(t *testing.T) {
	sink := &memSink{}
	h := NewHub(Options{HostFilter: true}, nil, nil, sink)
	d := oxi.NewDispatcher(h)
	stop := runHub(h)
	d.HandleRaw(frame(t, oxi.CmdSetRTC, 0))
	d.HandleRaw(frame(t, oxi.CmdData, 0x00010002))
	stop()

	types := sink.Types()
	require.Equal(t, []EventType{EventThreshold, EventDeviceRTC, EventPPGRaw, EventPPGHostFiltered}, types)
	raw, filtered := sink.Events()[2], sink.Events()[3]
	assert.NotEqual(t, raw.EventID, filtered.EventID)
	assert.InDelta(t, 7.92609259e-06*float64(0x1000), filtered.Value, 1e-9)
}

func TestHub_ThresholdOnlyOnChange(t *testing.T) {
	sink := &memSink{}
	reg := metrics.NewRegistry()
	m := metrics.NewAppMetrics(reg)
	h := NewHub(Options{}, nil, m, sink)
	stop := runHub(h)
	h.OnThresholdStatus(oxi.ClassifyStatus(oxi.StatusNormal))
	h.OnThresholdStatus(oxi.ClassifyStatus(oxi.StatusNormal))
	h.OnThresholdStatus(oxi.ClassifyStatus(oxi.StatusHigh))
	h.OnThresholdStatus(oxi.ClassifyStatus(0x42))
	stop()

	evs := sink.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, "high", evs[1].State)
	assert.Equal(t, "0F", evs[1].RawStatus)
	assert.Equal(t, "unknown", evs[2].State)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ThresholdState.WithLabelValues("unknown")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ThresholdState.WithLabelValues("high")))
}

func TestHub_ProtocolAndDeviceErrors(t *testing.T) {
	sink := &memSink{}
	h := NewHub(Options{}, nil, nil, sink)
	d := oxi.NewDispatcher(h)
	stop := runHub(h)
	d.HandleRaw([]byte{0x99})
	d.HandleRaw(frame(t, oxi.CmdErrorReport, 0xFFFFFFFF))
	d.HandleRaw(frame(t, oxi.CmdErrorReport, 0x00000001))
	stop()

	evs := sink.Events()
	require.Len(t, evs, 4)
	assert.Equal(t, EventProtocolError, evs[0].EventType)
	assert.Equal(t, "malformed_frame", evs[0].ErrorClass)
	assert.Equal(t, EventDeviceError, evs[2].EventType)
	assert.Equal(t, "invalid_error_payload", evs[3].ErrorClass)

	snap := h.Snapshot()
	assert.Equal(t, int64(2), snap.ProtocolErrors)
	assert.NotNil(t, snap.LastDeviceError)
}

func TestHub_SinkErrorsCounted(t *testing.T) {
	sink := &memSink{err: errors.New("broker unavailable")}
	reg := metrics.NewRegistry()
	m := metrics.NewAppMetrics(reg)
	h := NewHub(Options{}, nil, m, sink)
	stop := runHub(h)
	h.OnErrorReport(oxi.ErrorReport{})
	stop()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SinkErrorsTotal.WithLabelValues("mem")))
}

type flakySink struct {
	mu    sync.Mutex
	calls int
}

func (s *flakySink) Name() string { return "flaky" }

func (s *flakySink) Publish(context.Context, Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("redis down")
}

func TestHub_SinkCircuitOpens(t *testing.T) {
	bad := &flakySink{}
	good := &memSink{}
	m := metrics.NewAppMetrics(metrics.NewRegistry())
	h := NewHub(Options{BreakerThreshold: 2, BreakerCooldown: time.Hour}, nil, m, bad, good)
	stop := runHub(h)
	for i := 0; i < 5; i++ {
		h.OnErrorReport(oxi.ErrorReport{})
	}
	stop()

	assert.Equal(t, 2, bad.calls, "熔断后不再调用")
	assert.Len(t, good.Events(), 5, "其他下游不受影响")
	assert.Equal(t, float64(5), testutil.ToFloat64(m.SinkErrorsTotal.WithLabelValues("flaky")))

	snap := h.Snapshot()
	assert.Equal(t, "open", snap.Sinks["flaky"].Circuit)
	assert.Equal(t, "closed", snap.Sinks["mem"].Circuit)
}

func TestHub_SessionAndHistory(t *testing.T) {
	sink := &memSink{}
	h := NewHub(Options{HistorySize: 3}, nil, nil, sink)
	h.now = func() time.Time { return time.Unix(1700000000, 0) }
	h.BeginSession("s-1")
	st := oxi.SampleTime{Anchored: true, Hours: 1, Tag: oxi.NewTimestampTag(3600, nil)}
	stop := runHub(h)
	for v := uint32(1); v <= 5; v++ {
		h.OnDataSample(oxi.DataSample{Kind: oxi.KindHeartRate, Value: v, Time: st})
	}
	stop()

	snap := h.Snapshot()
	assert.Equal(t, "s-1", snap.SessionID)
	require.Len(t, snap.HeartRates, 3)
	assert.Equal(t, float64(3), snap.HeartRates[0].Value)
	assert.Equal(t, float64(5), snap.HeartRates[2].Value)
	assert.Equal(t, float64(5), snap.Latest[string(EventHeartRate)].Value)
	for _, ev := range sink.Events() {
		assert.Equal(t, "s-1", ev.SessionID)
	}
}

func TestHub_QueueOverflowDoesNotBlock(t *testing.T) {
	h := NewHub(Options{QueueSize: 1}, nil, nil, &memSink{})
	for i := 0; i < 10; i++ {
		h.OnErrorReport(oxi.ErrorReport{})
	}
	assert.Equal(t, int64(9), h.Snapshot().QueueOverflow)
}
