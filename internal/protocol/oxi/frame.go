package oxi

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Frame 血氧设备串口帧（固定 7 字节，无分隔符、无长度前缀）
// 布局：
// [0] 高 4 位固定 0x1，低 4 位为命令字 | [1..4] 负载（大端 u32） | [5] 阈值状态 | [6] 结束符 0x04
type Frame struct {
	Cmd     CommandID
	Payload [4]byte
	Status  byte
}

// FrameSize 帧长度
const FrameSize = 7

const (
	startNibble = 0x1
	endMarker   = 0x04
)

// CommandID 命令字
type CommandID uint8

const (
	CmdCheckCom     CommandID = 0x0
	CmdData         CommandID = 0x1
	CmdSetThreshold CommandID = 0x2
	CmdSetInterval  CommandID = 0x3
	CmdSetRTC       CommandID = 0x4 // 上行方向为时间戳
	CmdClearRecord  CommandID = 0x5
	CmdErrorReport  CommandID = 0x6

	maxCommandID = CmdErrorReport
)

func (c CommandID) String() string {
	switch c {
	case CmdCheckCom:
		return "check_com"
	case CmdData:
		return "data"
	case CmdSetThreshold:
		return "set_threshold"
	case CmdSetInterval:
		return "set_interval"
	case CmdSetRTC:
		return "set_rtc"
	case CmdClearRecord:
		return "clear_record"
	case CmdErrorReport:
		return "error_report"
	default:
		return fmt.Sprintf("cmd_%X", uint8(c))
	}
}

// 阈值状态字节
const (
	StatusNormal byte = 0xFF
	StatusHigh   byte = 0x0F
	StatusLow    byte = 0xF0
)

// PayloadFromUint32 大端写入负载
func PayloadFromUint32(v uint32) [4]byte {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], v)
	return p
}

// PayloadUint32 负载按大端 u32 解释
func (f *Frame) PayloadUint32() uint32 {
	return binary.BigEndian.Uint32(f.Payload[:])
}

// Bytes 按线上格式输出 7 字节（不校验命令字范围）
func (f *Frame) Bytes() []byte {
	b := make([]byte, FrameSize)
	b[0] = startNibble<<4 | byte(f.Cmd)&0x0F
	copy(b[1:5], f.Payload[:])
	b[5] = f.Status
	b[6] = endMarker
	return b
}

// Hex 大写十六进制形式（14 个字符）
func (f *Frame) Hex() string {
	return strings.ToUpper(hex.EncodeToString(f.Bytes()))
}

func (f *Frame) String() string { return f.Hex() }

// ParseHex 解析 14 字符十六进制帧
func ParseHex(s string) (*Frame, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, &MalformedFrameError{Reason: "invalid hex: " + err.Error()}
	}
	return Decode(raw)
}
