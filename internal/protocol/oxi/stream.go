package oxi

import "fmt"

// maxSkipRun 重同步时单次上报的最大跳过字节数，避免持续垃圾数据无界增长
const maxSkipRun = 64

// Chunk 流式拆帧结果：Raw 为完整 7 字节；Err 非空表示重同步跳过的字节段
type Chunk struct {
	Raw []byte
	Err error
}

// StreamDecoder 按固定 7 字节切分串口字节流（处理半包/粘包）
//
// 默认模式与设备固件一致：每累计 7 字节即视为一帧，结构错误交给 Dispatcher 上报。
// resync 模式下遇到结构非法的数据逐字节滑动，直到找到 0x1? ... 0x04 的帧边界，
// 跳过的字节段作为一次 MalformedFrameError 上报。
type StreamDecoder struct {
	buf     []byte
	skipped []byte
	resync  bool
}

// NewStreamDecoder 创建流式拆帧器
func NewStreamDecoder(resync bool) *StreamDecoder {
	return &StreamDecoder{resync: resync}
}

// Feed 追加数据并按到达顺序尽可能切出多帧
func (d *StreamDecoder) Feed(p []byte) []Chunk {
	if len(p) == 0 {
		return nil
	}
	d.buf = append(d.buf, p...)
	var out []Chunk
	for len(d.buf) >= FrameSize {
		candidate := d.buf[:FrameSize]
		if !d.resync || wellFormed(candidate) {
			if c, ok := d.flushSkipped(); ok {
				out = append(out, c)
			}
			out = append(out, Chunk{Raw: dup(candidate)})
			d.buf = d.buf[FrameSize:]
			continue
		}
		d.skipped = append(d.skipped, d.buf[0])
		d.buf = d.buf[1:]
		if len(d.skipped) >= maxSkipRun {
			c, _ := d.flushSkipped()
			out = append(out, c)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Buffered 尚未凑满一帧的字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

// Reset 丢弃缓冲（重新打开端口时调用）
func (d *StreamDecoder) Reset() {
	d.buf, d.skipped = nil, nil
}

func (d *StreamDecoder) flushSkipped() (Chunk, bool) {
	if len(d.skipped) == 0 {
		return Chunk{}, false
	}
	err := &MalformedFrameError{
		Reason: fmt.Sprintf("resync: skipped %d byte(s)", len(d.skipped)),
		Raw:    d.skipped,
	}
	d.skipped = nil
	return Chunk{Err: err}, true
}
