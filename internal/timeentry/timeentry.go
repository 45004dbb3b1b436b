// Package timeentry 将用户输入的 RTC 时间解析为设备 epoch。
package timeentry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Mode RTC 输入方式
type Mode int

const (
	ModeNone Mode = iota
	ModeTwelveHour
	ModeTwentyFourHour
	ModeEpoch
)

const (
	dateLayout = "2006-01-02"
	clock12    = "03:04:05 PM"
	clock24    = "15:04:05"
	maxEpoch   = math.MaxUint32
)

// ErrNoTimeMode 未选择输入方式
var ErrNoTimeMode = errors.New("timeentry: no time mode selected")

// EntryError 输入无法组成合法日期时间
type EntryError struct {
	Mode  Mode
	Input string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("timeentry: invalid %s input %q: %v", e.Mode, e.Input, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeTwelveHour:
		return "12h"
	case ModeTwentyFourHour:
		return "24h"
	case ModeEpoch:
		return "epoch"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode 解析 API 传入的方式名
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ModeNone, nil
	case "12h":
		return ModeTwelveHour, nil
	case "24h":
		return ModeTwentyFourHour, nil
	case "epoch":
		return ModeEpoch, nil
	default:
		return ModeNone, fmt.Errorf("timeentry: unknown mode %q", s)
	}
}

// Entry 一次 RTC 输入；Date/Clock 用于 12h/24h，Epoch 用于 epoch 方式
type Entry struct {
	Mode  Mode
	Date  string
	Clock string
	Epoch string
}

// Resolve 在 loc 时区下解析为 epoch 秒
func (e Entry) Resolve(loc *time.Location) (uint32, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch e.Mode {
	case ModeNone:
		return 0, ErrNoTimeMode
	case ModeTwelveHour:
		return e.resolveDateTime(clock12, loc)
	case ModeTwentyFourHour:
		return e.resolveDateTime(clock24, loc)
	case ModeEpoch:
		v, err := strconv.ParseUint(strings.TrimSpace(e.Epoch), 10, 64)
		if err != nil {
			return 0, &EntryError{Mode: e.Mode, Input: e.Epoch, Err: err}
		}
		if v > maxEpoch {
			return 0, &EntryError{Mode: e.Mode, Input: e.Epoch, Err: errors.New("exceeds 32-bit epoch")}
		}
		return uint32(v), nil
	default:
		return 0, fmt.Errorf("timeentry: unsupported mode %s", e.Mode)
	}
}

func (e Entry) resolveDateTime(clockLayout string, loc *time.Location) (uint32, error) {
	input := strings.TrimSpace(e.Date) + " " + strings.TrimSpace(e.Clock)
	t, err := time.ParseInLocation(dateLayout+" "+clockLayout, input, loc)
	if err != nil {
		return 0, &EntryError{Mode: e.Mode, Input: input, Err: err}
	}
	sec := t.Unix()
	if sec < 0 || sec > maxEpoch {
		return 0, &EntryError{Mode: e.Mode, Input: input, Err: errors.New("outside 32-bit epoch range")}
	}
	return uint32(sec), nil
}
