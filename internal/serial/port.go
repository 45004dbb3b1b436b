package serial

import (
	"io"
	"time"

	bugserial "go.bug.st/serial"
)

// Port 会话使用的串口能力（go.bug.st/serial.Port 的子集，测试可替换）
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener 按名称与波特率打开串口
type Opener func(name string, baudRate int) (Port, error)

// DefaultOpener 以 8N1 打开真实串口
func DefaultOpener(name string, baudRate int) (Port, error) {
	p, err := bugserial.Open(name, &bugserial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   bugserial.NoParity,
		StopBits: bugserial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Config 会话配置
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration // 读超时，决定 Close 的最长等待
	Resync      bool          // 拆帧时跳过非法字节寻找帧边界
}

const (
	defaultBaudRate    = 115200
	defaultReadTimeout = 500 * time.Millisecond
	maxReadTimeout     = time.Second
	readBufferSize     = 4096
)

func (c Config) withDefaults() Config {
	if c.BaudRate <= 0 {
		c.BaudRate = defaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.ReadTimeout > maxReadTimeout {
		c.ReadTimeout = maxReadTimeout
	}
	return c
}
