package telemetry

import (
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/pulseox/internal/protocol/oxi"
)

// EventType 事件类型
type EventType string

const (
	// EventHeartRate 心率样本
	EventHeartRate EventType = "heart_rate"
	// EventPPGRaw 原始 PPG 样本
	EventPPGRaw EventType = "ppg.raw"
	// EventPPGFiltered 设备侧滤波后的 PPG
	EventPPGFiltered EventType = "ppg.filtered"
	// EventPPGHostFiltered 主机侧滤波后的 PPG
	EventPPGHostFiltered EventType = "ppg.host_filtered"
	// EventLog 设备日志样本
	EventLog EventType = "log"
	// EventThreshold 心率阈值状态变化
	EventThreshold EventType = "threshold"
	// EventDeviceError 设备错误报告
	EventDeviceError EventType = "device.error"
	// EventDeviceRTC 设备时间戳
	EventDeviceRTC EventType = "device.rtc"
	// EventProtocolError 上行帧结构/语义错误
	EventProtocolError EventType = "protocol.error"
)

// Event 下游统一事件
type Event struct {
	EventID    string    `json:"event_id"`
	EventType  EventType `json:"event_type"`
	SessionID  string    `json:"session_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`

	// 样本
	Value    float64 `json:"value,omitempty"`
	Anchored bool    `json:"anchored,omitempty"`
	Hours    float64 `json:"hours,omitempty"` // 小数小时

	// 时间戳
	Epoch      uint32     `json:"epoch,omitempty"`
	DeviceTime *time.Time `json:"device_time,omitempty"`

	State      string `json:"state,omitempty"`
	RawStatus  string `json:"raw_status,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newEvent(t EventType, now time.Time) Event {
	return Event{EventID: uuid.NewString(), EventType: t, ReceivedAt: now}
}

// SampleEventType 样本类型对应的事件
func SampleEventType(k oxi.SampleKind) EventType {
	switch k {
	case oxi.KindHeartRate:
		return EventHeartRate
	case oxi.KindFilteredPPG:
		return EventPPGFiltered
	case oxi.KindRawPPG:
		return EventPPGRaw
	default:
		return EventLog
	}
}

// IsSample 是否为样本事件类型
func (t EventType) IsSample() bool {
	switch t {
	case EventHeartRate, EventPPGRaw, EventPPGFiltered, EventPPGHostFiltered, EventLog:
		return true
	}
	return false
}

// IsSample 是否为样本事件
func (e Event) IsSample() bool { return e.EventType.IsSample() }

func sampleEvent(s oxi.DataSample, now time.Time, loc *time.Location) Event {
	ev := newEvent(SampleEventType(s.Kind), now)
	ev.Value = float64(s.Value)
	applyTime(&ev, s.Time, loc)
	return ev
}

func applyTime(ev *Event, st oxi.SampleTime, loc *time.Location) {
	if !st.Anchored {
		return
	}
	ev.Anchored = true
	ev.Hours = st.Hours
	ev.Epoch = st.Tag.Epoch
	dt := st.Tag.Time().In(loc)
	ev.DeviceTime = &dt
}
