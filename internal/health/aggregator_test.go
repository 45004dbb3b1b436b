package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pulseox/internal/device"
	"github.com/taoyao-code/pulseox/internal/serial"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()

	t.Run("全部健康", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"serial", StatusHealthy}, &mockChecker{"redis", StatusHealthy})
		assert.Equal(t, StatusHealthy, agg.OverallStatus(ctx))
		assert.True(t, agg.Ready(ctx))
	})

	t.Run("部分降级仍就绪", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"serial", StatusDegraded}, &mockChecker{"redis", StatusHealthy})
		assert.Equal(t, StatusDegraded, agg.OverallStatus(ctx))
		assert.True(t, agg.Ready(ctx))
	})

	t.Run("任一不健康", func(t *testing.T) {
		agg := NewAggregator(
			&mockChecker{"serial", StatusDegraded},
			&mockChecker{"database", StatusUnhealthy},
		)
		assert.Equal(t, StatusUnhealthy, agg.OverallStatus(ctx))
		assert.False(t, agg.Ready(ctx))
	})

	t.Run("动态添加与忽略nil", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"initial", StatusHealthy}, nil)
		agg.AddChecker(&mockChecker{"added", StatusHealthy})
		agg.AddChecker(nil)
		assert.Len(t, agg.CheckAll(ctx), 2)
	})

	t.Run("检查器超时", func(t *testing.T) {
		slow := CheckerFunc{CheckName: "slow", Fn: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			return CheckResult{Status: StatusUnhealthy, Message: ctx.Err().Error()}
		}}
		report := NewAggregator(slow).Report(ctx)
		assert.Equal(t, StatusUnhealthy, report.Status)
		assert.Equal(t, context.DeadlineExceeded.Error(), report.Checks["slow"].Message)
	})
}

type staticLink device.Status

func (s staticLink) Status() device.Status { return device.Status(s) }

func TestSerialChecker(t *testing.T) {
	open := staticLink{
		State: "open", Port: "/dev/ttyUSB0", BaudRate: 115200,
		Session: &serial.Stats{SessionID: "s1", FramesIn: 12},
	}
	res := NewSerialChecker(open).Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "s1", res.Details["session_id"])
	assert.Equal(t, int64(12), res.Details["frames_in"])

	lost := staticLink{State: "reconnecting", Reconnect: true, LastError: "serial read /dev/ttyUSB0: EOF"}
	res = NewSerialChecker(lost).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "serial read /dev/ttyUSB0: EOF", res.Details["last_error"])

	res = NewSerialChecker(staticLink{State: "closed"}).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "serial link closed", res.Message)
}

type fakeConn bool

func (f fakeConn) Connected() bool { return bool(f) }

func TestMQTTChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewMQTTChecker(fakeConn(true)).Check(context.Background()).Status)
	assert.Equal(t, StatusDegraded, NewMQTTChecker(fakeConn(false)).Check(context.Background()).Status)
}

func TestHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(agg *Aggregator, path string) *httptest.ResponseRecorder {
		r := gin.New()
		RegisterHTTPRoutes(r, agg)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	degraded := NewAggregator(&mockChecker{"serial", StatusDegraded})
	rr := serve(degraded, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Contains(t, report.Checks, "serial")

	down := NewAggregator(&mockChecker{"database", StatusUnhealthy})
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, serve(down, "/health/live").Code)
	assert.Equal(t, http.StatusOK, serve(degraded, "/health/ready").Code)
}

func TestReadiness(t *testing.T) {
	r := New()
	assert.False(t, r.Ready())
	r.SetDBReady(true)
	assert.False(t, r.Ready())
	r.SetHubReady(true)
	assert.True(t, r.Ready())
}
