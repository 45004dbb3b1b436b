package serial

import (
	"errors"
	"fmt"

	bugserial "go.bug.st/serial"
)

var (
	// ErrNotConnected 会话未打开或已关闭
	ErrNotConnected = errors.New("serial: not connected")
	// ErrConnection 串口打开/读写失败
	ErrConnection = errors.New("serial: connection error")
)

// ConnectionError 串口层错误，Op 为 open/read/write
type ConnectionError struct {
	Op   string
	Port string
	Code string // go.bug.st/serial 错误码，如 port_not_found
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("serial %s %s: %s: %v", e.Op, e.Port, e.Code, e.Err)
	}
	return fmt.Sprintf("serial %s %s: %v", e.Op, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }

// Disconnected 设备被拔出或端口失效
func (e *ConnectionError) Disconnected() bool {
	switch e.Code {
	case "port_not_found", "port_closed", "invalid_serial_port":
		return true
	}
	return e.Op == "read"
}

func newConnectionError(op, port string, err error) *ConnectionError {
	return &ConnectionError{Op: op, Port: port, Code: portErrorCode(err), Err: err}
}

type codedError interface {
	Code() bugserial.PortErrorCode
}

func portErrorCode(err error) string {
	var ce codedError
	if !errors.As(err, &ce) {
		return ""
	}
	switch ce.Code() {
	case bugserial.PortBusy:
		return "port_busy"
	case bugserial.PortNotFound:
		return "port_not_found"
	case bugserial.InvalidSerialPort:
		return "invalid_serial_port"
	case bugserial.PermissionDenied:
		return "permission_denied"
	case bugserial.InvalidSpeed:
		return "invalid_speed"
	case bugserial.InvalidDataBits, bugserial.InvalidParity, bugserial.InvalidStopBits:
		return "invalid_mode"
	case bugserial.InvalidTimeoutValue:
		return "invalid_timeout"
	case bugserial.PortClosed:
		return "port_closed"
	default:
		return "other"
	}
}
