// Package dsp 主机侧 PPG 信号处理
package dsp

import "sync"

// 与设备固件一致的 4 阶 IIR 低通（采样率 100Hz）z 域系数
var (
	ppgA = [...]float64{1, -3.7128, 5.1789, -3.2162, 0.7502}
	ppgB = [...]float64{7.92609259e-06, 3.17043703e-05, 4.75565555e-05, 3.17043704e-05, 7.92609258e-06}
)

// IIR 直接 I 型实时滤波器，每次输入一个样本
type IIR struct {
	mu sync.Mutex
	a  []float64
	b  []float64
	x  []float64 // x[0] 为当前输入
	y  []float64 // y[0] 为当前输出
}

// NewIIR 按系数创建滤波器，a[0] 视为 1
func NewIIR(a, b []float64) *IIR {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	f := &IIR{
		a: make([]float64, n),
		b: make([]float64, n),
		x: make([]float64, n),
		y: make([]float64, n),
	}
	copy(f.a, a)
	copy(f.b, b)
	return f
}

// NewPPGFilter 设备同款 PPG 低通
func NewPPGFilter() *IIR { return NewIIR(ppgA[:], ppgB[:]) }

// Apply 输入一个样本返回滤波结果
func (f *IIR) Apply(in float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.x) - 1; i > 0; i-- {
		f.x[i] = f.x[i-1]
		f.y[i] = f.y[i-1]
	}
	f.x[0] = in
	out := f.b[0] * f.x[0]
	for j := 1; j < len(f.x); j++ {
		out += f.b[j]*f.x[j] - f.a[j]*f.y[j]
	}
	f.y[0] = out
	return out
}

// Reset 清空历史（新会话）
func (f *IIR) Reset() {
	f.mu.Lock()
	for i := range f.x {
		f.x[i], f.y[i] = 0, 0
	}
	f.mu.Unlock()
}
