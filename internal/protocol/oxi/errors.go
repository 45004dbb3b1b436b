package oxi

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame      = errors.New("malformed frame")
	ErrEncoding            = errors.New("encoding error")
	ErrValidation          = errors.New("validation error")
	ErrUnknownDataKind     = errors.New("unknown data kind")
	ErrInvalidErrorPayload = errors.New("invalid error-report payload")
	ErrUnexpectedCommandID = errors.New("unexpected command id")
	ErrUnknownStatus       = errors.New("unknown threshold status")
)

// MalformedFrameError 帧结构错误（长度、起始半字节、结束符）
type MalformedFrameError struct {
	Reason string
	Raw    []byte
}

func (e *MalformedFrameError) Error() string {
	if len(e.Raw) == 0 {
		return "malformed frame: " + e.Reason
	}
	return fmt.Sprintf("malformed frame %X: %s", e.Raw, e.Reason)
}

func (e *MalformedFrameError) Unwrap() error { return ErrMalformedFrame }

// EncodingError 命令字超出 0..6
type EncodingError struct {
	Cmd CommandID
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: command id %d out of range 0..%d", uint8(e.Cmd), uint8(maxCommandID))
}

func (e *EncodingError) Unwrap() error { return ErrEncoding }

// ValidationError 命令参数校验失败，不会进入链路
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnknownDataKindError 数据帧子类型无法识别
type UnknownDataKindError struct {
	Kind uint8
}

func (e *UnknownDataKindError) Error() string {
	return fmt.Sprintf("unknown data kind %X", e.Kind)
}

func (e *UnknownDataKindError) Unwrap() error { return ErrUnknownDataKind }

// InvalidErrorPayloadError 错误上报帧的负载必须为 FFFFFFFF
type InvalidErrorPayloadError struct {
	Payload uint32
}

func (e *InvalidErrorPayloadError) Error() string {
	return fmt.Sprintf("invalid error-report payload %08X", e.Payload)
}

func (e *InvalidErrorPayloadError) Unwrap() error { return ErrInvalidErrorPayload }

// UnexpectedCommandIDError 上行收到仅限下行的命令字
type UnexpectedCommandIDError struct {
	Cmd CommandID
}

func (e *UnexpectedCommandIDError) Error() string {
	return fmt.Sprintf("unexpected inbound command id %X (%s)", uint8(e.Cmd), e.Cmd)
}

func (e *UnexpectedCommandIDError) Unwrap() error { return ErrUnexpectedCommandID }

// UnknownStatusError 阈值状态字节无法识别（负载仍会继续处理）
type UnknownStatusError struct {
	Status byte
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown threshold status byte %02X", e.Status)
}

func (e *UnknownStatusError) Unwrap() error { return ErrUnknownStatus }

// ErrorClass 返回错误分类标签（用于指标与日志）
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrUnknownDataKind):
		return "unknown_data_kind"
	case errors.Is(err, ErrInvalidErrorPayload):
		return "invalid_error_payload"
	case errors.Is(err, ErrUnexpectedCommandID):
		return "unexpected_command_id"
	case errors.Is(err, ErrUnknownStatus):
		return "unknown_status"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	default:
		return "other"
	}
}
