package oxi

import "time"

// Event 语义事件：DataSample | ErrorReport | TimestampTag
type Event interface {
	eventName() string
}

// SampleKind 数据帧子类型（负载最后一个十六进制位）
type SampleKind uint8

const (
	KindHeartRate   SampleKind = 0x0
	KindFilteredPPG SampleKind = 0x1
	KindRawPPG      SampleKind = 0x2
	KindLog         SampleKind = 0x3
)

func (k SampleKind) String() string {
	switch k {
	case KindHeartRate:
		return "heart_rate"
	case KindFilteredPPG:
		return "filtered_ppg"
	case KindRawPPG:
		return "raw_ppg"
	case KindLog:
		return "log"
	default:
		return "unknown"
	}
}

func (k SampleKind) known() bool { return k <= KindLog }

// Anchorable 心率与 PPG 样本需要挂接最近时间戳
func (k SampleKind) Anchorable() bool { return k <= KindRawPPG }

// sampleValueBits 样本值取负载前 7 个十六进制位
const sampleValueBits = 28

// SampleTime 样本时间：未收到过时间戳时 Anchored=false
type SampleTime struct {
	Anchored bool
	Hours    float64 // hour + minute/60 + second/3600
	Tag      TimestampTag
}

// DataSample 心率/PPG/日志样本
type DataSample struct {
	Kind  SampleKind
	Value uint32
	Time  SampleTime
}

func (DataSample) eventName() string { return "data_sample" }

// ErrorReport 设备错误上报
type ErrorReport struct{}

func (ErrorReport) eventName() string { return "error_report" }

// TimestampTag 设备时间戳及其日历分解
type TimestampTag struct {
	Epoch   uint32
	Weekday time.Weekday
	Day     int
	Month   time.Month
	Year    int
	Hour    int
	Minute  int
	Second  int
}

func (TimestampTag) eventName() string { return "timestamp_tag" }

// NewTimestampTag 按时区分解 epoch；任意 u32 均合法
func NewTimestampTag(epoch uint32, loc *time.Location) TimestampTag {
	if loc == nil {
		loc = time.UTC
	}
	t := time.Unix(int64(epoch), 0).In(loc)
	return TimestampTag{
		Epoch:   epoch,
		Weekday: t.Weekday(),
		Day:     t.Day(),
		Month:   t.Month(),
		Year:    t.Year(),
		Hour:    t.Hour(),
		Minute:  t.Minute(),
		Second:  t.Second(),
	}
}

// FractionalHours 小数小时，用作样本横轴
func (t TimestampTag) FractionalHours() float64 {
	return float64(t.Hour) + float64(t.Minute)/60 + float64(t.Second)/3600
}

// Time 转回 time.Time
func (t TimestampTag) Time() time.Time { return time.Unix(int64(t.Epoch), 0) }

// ThresholdState 心率阈值状态
type ThresholdState uint8

const (
	ThresholdNormal ThresholdState = iota
	ThresholdHigh
	ThresholdLow
	ThresholdUnknown
)

func (s ThresholdState) String() string {
	switch s {
	case ThresholdNormal:
		return "normal"
	case ThresholdHigh:
		return "high"
	case ThresholdLow:
		return "low"
	default:
		return "unknown"
	}
}

// ThresholdStatus 每一帧都携带的阈值状态
type ThresholdStatus struct {
	State ThresholdState
	Raw   byte
}

// ClassifyStatus 状态字节映射
func ClassifyStatus(b byte) ThresholdStatus {
	switch b {
	case StatusNormal:
		return ThresholdStatus{State: ThresholdNormal, Raw: b}
	case StatusHigh:
		return ThresholdStatus{State: ThresholdHigh, Raw: b}
	case StatusLow:
		return ThresholdStatus{State: ThresholdLow, Raw: b}
	default:
		return ThresholdStatus{State: ThresholdUnknown, Raw: b}
	}
}
