package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/pulseox/internal/api/middleware"
	"github.com/taoyao-code/pulseox/internal/device"
	"github.com/taoyao-code/pulseox/internal/ports"
	"github.com/taoyao-code/pulseox/internal/protocol/oxi"
	"github.com/taoyao-code/pulseox/internal/serial"
	"github.com/taoyao-code/pulseox/internal/storage"
	pgstorage "github.com/taoyao-code/pulseox/internal/storage/pg"
	"github.com/taoyao-code/pulseox/internal/telemetry"
	"github.com/taoyao-code/pulseox/internal/timeentry"
)

// errBadRequest 请求参数无法解析
var errBadRequest = errors.New("bad request")

// SampleHistory 持久化样本查询（pg.SampleRepository 实现）
type SampleHistory interface {
	RecentSamples(ctx context.Context, kind string, limit int) ([]pgstorage.SampleRow, error)
}

// Handler 控制 API
type Handler struct {
	ctl     *device.Controller
	hub     *telemetry.Hub
	ports   []ports.Port
	history SampleHistory
	logger  *zap.Logger
}

// NewHandler history 可为 nil（未启用数据库）
func NewHandler(ctl *device.Controller, hub *telemetry.Hub, portList []ports.Port, history SampleHistory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ctl: ctl, hub: hub, ports: portList, history: history, logger: logger}
}

// StandardResponse 标准响应格式
type StandardResponse struct {
	Code      int         `json:"code"`           // 0=成功, >0=HTTP 状态码
	Message   string      `json:"message"`        // 消息
	Data      interface{} `json:"data,omitempty"` // 业务数据
	RequestID string      `json:"request_id"`     // 请求追踪ID
	Timestamp int64       `json:"timestamp"`      // 时间戳
}

// OpenSessionRequest 打开串口，字段为空时使用配置默认值
type OpenSessionRequest struct {
	Port     string `json:"port"`
	BaudRate int    `json:"baud_rate" binding:"min=0"`
}

// ThresholdRequest 心率上下限（0 由命令构造拒绝）
type ThresholdRequest struct {
	High int `json:"high" binding:"min=0,max=255"`
	Low  int `json:"low" binding:"min=0,max=255"`
}

// IntervalRequest 上报间隔（秒）
type IntervalRequest struct {
	Seconds int64 `json:"seconds" binding:"min=0,max=4294967295"`
}

// RTCRequest 设备时间：mode=12h 时 time 形如 "03:04:05 PM"，24h 形如 "15:04:05"，epoch 为十进制秒
type RTCRequest struct {
	Mode  string `json:"mode" binding:"required"`
	Date  string `json:"date"`
	Time  string `json:"time"`
	Epoch string `json:"epoch"`
}

// ListPorts 外部提供的串口清单
// @Summary 串口清单
// @Tags 串口会话
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse
// @Router /api/ports [get]
func (h *Handler) ListPorts(c *gin.Context) {
	h.ok(c, "ok", gin.H{"ports": h.ports})
}

// GetSession 链路状态
// @Summary 串口会话状态
// @Tags 串口会话
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse
// @Router /api/session [get]
func (h *Handler) GetSession(c *gin.Context) {
	h.ok(c, "ok", h.ctl.Status())
}

// OpenSession 打开串口
// @Summary 打开串口会话
// @Tags 串口会话
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body OpenSessionRequest false "端口与波特率"
// @Success 200 {object} StandardResponse
// @Failure 409 {object} StandardResponse "已打开"
// @Failure 502 {object} StandardResponse "串口打开失败"
// @Router /api/session/open [post]
func (h *Handler) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err), nil)
			return
		}
	}
	if err := h.ctl.Open(c.Request.Context(), req.Port, req.BaudRate); err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, "session opened", h.ctl.Status())
}

// CloseSession 关闭串口
// @Summary 关闭串口会话
// @Tags 串口会话
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse
// @Router /api/session/close [post]
func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.ctl.Close(); err != nil {
		// 端口释放失败不影响会话已结束
		h.logger.Warn("serial close error", zap.Error(err))
	}
	h.ok(c, "session closed", h.ctl.Status())
}

// CheckCom 通信检测
// @Summary 通信检测
// @Tags 设备命令
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse
// @Failure 409 {object} StandardResponse "串口未连接"
// @Failure 429 {object} StandardResponse "命令过于频繁"
// @Router /api/commands/check-com [post]
func (h *Handler) CheckCom(c *gin.Context) {
	h.command(c, h.ctl.CheckCom)
}

// ReadRecord 读取设备记录
// @Summary 读取设备记录
// @Tags 设备命令
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse
// @Router /api/commands/read-record [post]
func (h *Handler) ReadRecord(c *gin.Context) {
	h.command(c, h.ctl.ReadRecord)
}

// ClearRecord 清除设备记录
// @Summary 清除设备记录
// @Tags 设备命令
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse
// @Router /api/commands/clear-record [post]
func (h *Handler) ClearRecord(c *gin.Context) {
	h.command(c, h.ctl.ClearRecord)
}

// SetThreshold 设置心率上下限
// @Summary 设置心率上下限
// @Tags 设备命令
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body ThresholdRequest true "上下限"
// @Success 200 {object} StandardResponse
// @Failure 400 {object} StandardResponse "参数错误"
// @Router /api/commands/threshold [post]
func (h *Handler) SetThreshold(c *gin.Context) {
	var req ThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}
	h.command(c, func(ctx context.Context) (device.Result, error) {
		return h.ctl.SetThreshold(ctx, uint8(req.High), uint8(req.Low))
	})
}

// SetInterval 设置上报间隔
// @Summary 设置上报间隔
// @Tags 设备命令
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body IntervalRequest true "间隔秒数"
// @Success 200 {object} StandardResponse
// @Failure 400 {object} StandardResponse "参数错误"
// @Router /api/commands/interval [post]
func (h *Handler) SetInterval(c *gin.Context) {
	var req IntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}
	h.command(c, func(ctx context.Context) (device.Result, error) {
		return h.ctl.SetInterval(ctx, uint32(req.Seconds))
	})
}

// SetRTC 设置设备时间
// @Summary 设置设备时间
// @Description mode 取 12h、24h 或 epoch；日期时间按遥测时区解析
// @Tags 设备命令
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body RTCRequest true "时间输入"
// @Success 200 {object} StandardResponse
// @Failure 400 {object} StandardResponse "时间无效"
// @Router /api/commands/rtc [post]
func (h *Handler) SetRTC(c *gin.Context) {
	var req RTCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}
	mode, err := timeentry.ParseMode(req.Mode)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %v", errBadRequest, err), nil)
		return
	}
	entry := timeentry.Entry{Mode: mode, Date: req.Date, Clock: req.Time, Epoch: req.Epoch}
	h.command(c, func(ctx context.Context) (device.Result, error) {
		return h.ctl.SetRTCEntry(ctx, entry)
	})
}

// ListCommands 命令审计
// @Summary 下行命令审计
// @Tags 设备命令
// @Produce json
// @Security ApiKeyAuth
// @Param command query string false "命令名，如 set_rtc"
// @Param result query string false "ok|rejected|rate_limited|failed"
// @Param since query string false "RFC3339 起始时间"
// @Param limit query int false "条数(默认50，最大500)"
// @Success 200 {object} StandardResponse
// @Router /api/commands [get]
func (h *Handler) ListCommands(c *gin.Context) {
	f := storage.ListFilter{
		Command: c.Query("command"),
		Result:  c.Query("result"),
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.fail(c, fmt.Errorf("%w: since: %v", errBadRequest, err), nil)
			return
		}
		f.Since = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.fail(c, fmt.Errorf("%w: limit: %v", errBadRequest, err), nil)
			return
		}
		f.Limit = n
	}
	logs, err := h.ctl.Audit().List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, "ok", gin.H{"commands": logs})
}

// LatestTelemetry 内存遥测快照
// @Summary 最新遥测
// @Tags 遥测
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse
// @Router /api/telemetry/latest [get]
func (h *Handler) LatestTelemetry(c *gin.Context) {
	h.ok(c, "ok", h.hub.Snapshot())
}

// ListSamples 已持久化的样本
// @Summary 历史样本
// @Tags 遥测
// @Produce json
// @Security ApiKeyAuth
// @Param kind query string false "heart_rate|ppg.raw|ppg.filtered|ppg.host_filtered|log"
// @Param limit query int false "条数(默认100，最大1000)"
// @Success 200 {object} StandardResponse
// @Failure 503 {object} StandardResponse "未启用数据库"
// @Router /api/telemetry/samples [get]
func (h *Handler) ListSamples(c *gin.Context) {
	if h.history == nil {
		h.respond(c, http.StatusServiceUnavailable, "sample persistence disabled", nil)
		return
	}
	kind := c.DefaultQuery("kind", string(telemetry.EventHeartRate))
	if !telemetry.EventType(kind).IsSample() {
		h.fail(c, fmt.Errorf("%w: unknown sample kind %q", errBadRequest, kind), nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := h.history.RecentSamples(c.Request.Context(), kind, limit)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	h.ok(c, "ok", gin.H{"kind": kind, "samples": rows})
}

func (h *Handler) command(c *gin.Context, call func(ctx context.Context) (device.Result, error)) {
	res, err := call(c.Request.Context())
	if err != nil {
		h.fail(c, err, res)
		return
	}
	h.ok(c, "command sent", res)
}

func (h *Handler) ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, StandardResponse{
		Code:      0,
		Message:   message,
		Data:      data,
		RequestID: c.GetString(middleware.RequestIDKey),
		Timestamp: time.Now().Unix(),
	})
}

func (h *Handler) fail(c *gin.Context, err error, data interface{}) {
	status := classifyError(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		h.logger.Error("api request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	h.respond(c, status, err.Error(), data)
}

func (h *Handler) respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, StandardResponse{
		Code:      status,
		Message:   message,
		Data:      data,
		RequestID: c.GetString(middleware.RequestIDKey),
		Timestamp: time.Now().Unix(),
	})
}

// classifyError 错误 -> HTTP 状态码
func classifyError(err error) int {
	var entryErr *timeentry.EntryError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadRequest),
		errors.Is(err, oxi.ErrValidation),
		errors.Is(err, timeentry.ErrNoTimeMode),
		errors.As(err, &entryErr):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, serial.ErrNotConnected), errors.Is(err, device.ErrAlreadyOpen):
		return http.StatusConflict
	// 打开被取消时 ConnectionError 同时包装 ctx 错误，超时优先
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, serial.ErrConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
