package health

import (
	"context"
	"time"

	"github.com/taoyao-code/pulseox/internal/device"
)

// LinkStatus 串口链路状态来源（device.Controller 实现）
type LinkStatus interface {
	Status() device.Status
}

// SerialChecker 串口链路检查。链路关闭只算降级：
// 网关仍可接收打开请求，遥测查询也照常可用
type SerialChecker struct {
	link LinkStatus
}

// NewSerialChecker 创建串口检查器
func NewSerialChecker(link LinkStatus) *SerialChecker {
	return &SerialChecker{link: link}
}

func (c *SerialChecker) Name() string { return "serial" }

// Check 执行健康检查
func (c *SerialChecker) Check(context.Context) CheckResult {
	start := time.Now()
	st := c.link.Status()

	details := map[string]interface{}{
		"state":            st.State,
		"reconnect":        st.Reconnect,
		"commands_allowed": st.Limiter.AllowedTotal,
		"commands_limited": st.Limiter.RejectedTotal,
	}
	if st.Port != "" {
		details["port"] = st.Port
		details["baud_rate"] = st.BaudRate
	}
	if st.Session != nil {
		details["session_id"] = st.Session.SessionID
		details["bytes_in"] = st.Session.BytesIn
		details["frames_in"] = st.Session.FramesIn
		details["skipped_runs"] = st.Session.Skipped
	}

	res := CheckResult{Status: StatusHealthy, Message: "ok", Details: details}
	switch st.State {
	case "open":
	case "reconnecting":
		res.Status, res.Message = StatusDegraded, "serial link lost, reconnecting"
	default:
		res.Status, res.Message = StatusDegraded, "serial link closed"
	}
	if st.LastError != "" {
		details["last_error"] = st.LastError
	}
	res.Latency = time.Since(start)
	return res
}
