package oxi

import "time"

// Consumer 解码结果的唯一出口
type Consumer interface {
	OnThresholdStatus(ThresholdStatus)
	OnDataSample(DataSample)
	OnErrorReport(ErrorReport)
	OnTimestampTag(TimestampTag)
	// OnMalformedFrame 结构错误（*MalformedFrameError）
	OnMalformedFrame(err error)
	// OnDecodeError 语义错误：未知子类型、错误负载、非预期命令字、未知状态字节
	OnDecodeError(err error)
}

// ConsumerFuncs 以函数实现 Consumer，未设置的回调直接忽略
type ConsumerFuncs struct {
	ThresholdStatus func(ThresholdStatus)
	DataSample      func(DataSample)
	ErrorReport     func(ErrorReport)
	TimestampTag    func(TimestampTag)
	MalformedFrame  func(error)
	DecodeError     func(error)
}

func (c ConsumerFuncs) OnThresholdStatus(s ThresholdStatus) {
	if c.ThresholdStatus != nil {
		c.ThresholdStatus(s)
	}
}

func (c ConsumerFuncs) OnDataSample(s DataSample) {
	if c.DataSample != nil {
		c.DataSample(s)
	}
}

func (c ConsumerFuncs) OnErrorReport(r ErrorReport) {
	if c.ErrorReport != nil {
		c.ErrorReport(r)
	}
}

func (c ConsumerFuncs) OnTimestampTag(t TimestampTag) {
	if c.TimestampTag != nil {
		c.TimestampTag(t)
	}
}

func (c ConsumerFuncs) OnMalformedFrame(err error) {
	if c.MalformedFrame != nil {
		c.MalformedFrame(err)
	}
}

func (c ConsumerFuncs) OnDecodeError(err error) {
	if c.DecodeError != nil {
		c.DecodeError(err)
	}
}

// decodeFunc 单个命令字的语义解码
type decodeFunc func(f *Frame) (Event, error)

// Dispatcher 上行帧解码与分发（cmd -> 语义处理器）
type Dispatcher struct {
	handlers map[CommandID]decodeFunc
	clock    *Clock
	loc      *time.Location
	consumer Consumer
	observe  func(result string, err error)
}

// Option Dispatcher 可选项
type Option func(*Dispatcher)

// WithLocation 时间戳分解所用时区（默认 UTC）
func WithLocation(loc *time.Location) Option {
	return func(d *Dispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

// WithClock 共享外部 Clock
func WithClock(c *Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithObserver 每帧处理结束回调（指标用），result 为事件名或错误分类
func WithObserver(fn func(result string, err error)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

// NewDispatcher 创建分发器，consumer 可为 nil（仅用 Dispatch）
func NewDispatcher(consumer Consumer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clock:    NewClock(),
		loc:      time.UTC,
		consumer: consumer,
	}
	for _, o := range opts {
		o(d)
	}
	if d.consumer == nil {
		d.consumer = ConsumerFuncs{}
	}
	// 当前协议版本仅接受 {1,4,6} 上行
	d.handlers = map[CommandID]decodeFunc{
		CmdData:        d.decodeData,
		CmdSetRTC:      d.decodeTimestamp,
		CmdErrorReport: d.decodeErrorReport,
	}
	return d
}

// Clock 返回会话时钟
func (d *Dispatcher) Clock() *Clock { return d.clock }

// Location 返回时间戳分解时区
func (d *Dispatcher) Location() *time.Location { return d.loc }

// Dispatch 对已通过结构校验的帧做语义解码。
// 阈值状态总是返回；未知状态字节不影响负载处理。
func (d *Dispatcher) Dispatch(f *Frame) (ThresholdStatus, Event, error) {
	status := ClassifyStatus(f.Status)
	h := d.handlers[f.Cmd]
	if h == nil {
		return status, nil, &UnexpectedCommandIDError{Cmd: f.Cmd}
	}
	ev, err := h(f)
	return status, ev, err
}

// HandleRaw 解码一帧原始字节并回调 Consumer，任何错误都只上报不中断
func (d *Dispatcher) HandleRaw(raw []byte) {
	f, err := Decode(raw)
	if err != nil {
		d.ReportMalformed(err)
		return
	}
	status, ev, err := d.Dispatch(f)
	d.consumer.OnThresholdStatus(status)
	if status.State == ThresholdUnknown {
		uerr := &UnknownStatusError{Status: status.Raw}
		d.consumer.OnDecodeError(uerr)
		d.notify(ErrorClass(uerr), uerr)
	}
	if err != nil {
		d.consumer.OnDecodeError(err)
		d.notify(ErrorClass(err), err)
		return
	}
	switch e := ev.(type) {
	case DataSample:
		d.consumer.OnDataSample(e)
	case TimestampTag:
		d.consumer.OnTimestampTag(e)
	case ErrorReport:
		d.consumer.OnErrorReport(e)
	}
	d.notify(ev.eventName(), nil)
}

// ReportMalformed 上报结构错误（流重同步时也会调用）
func (d *Dispatcher) ReportMalformed(err error) {
	d.consumer.OnMalformedFrame(err)
	d.notify(ErrorClass(err), err)
}

func (d *Dispatcher) notify(result string, err error) {
	if d.observe != nil {
		d.observe(result, err)
	}
}

func (d *Dispatcher) decodeData(f *Frame) (Event, error) {
	v := f.PayloadUint32()
	kind := SampleKind(v & 0x0F)
	if !kind.known() {
		return nil, &UnknownDataKindError{Kind: uint8(kind)}
	}
	return DataSample{
		Kind:  kind,
		Value: v >> (32 - sampleValueBits),
		Time:  d.clock.Stamp(kind),
	}, nil
}

func (d *Dispatcher) decodeTimestamp(f *Frame) (Event, error) {
	tag := NewTimestampTag(f.PayloadUint32(), d.loc)
	d.clock.Update(tag)
	return tag, nil
}

func (d *Dispatcher) decodeErrorReport(f *Frame) (Event, error) {
	if p := f.PayloadUint32(); p != 0xFFFFFFFF {
		return nil, &InvalidErrorPayloadError{Payload: p}
	}
	return ErrorReport{}, nil
}
