package telemetry

// Snapshot 遥测内存快照（HTTP 查询用）
type Snapshot struct {
	SessionID       string               `json:"session_id,omitempty"`
	Threshold       string               `json:"threshold"`
	Latest          map[string]Event     `json:"latest"`
	LastRTC         *Event               `json:"last_rtc,omitempty"`
	LastDeviceError *Event               `json:"last_device_error,omitempty"`
	HeartRates      []Event              `json:"heart_rates"` // 最近的心率样本，旧的在前
	Samples         int64                `json:"samples"`
	ProtocolErrors  int64                `json:"protocol_errors"`
	Buffered        int                  `json:"buffered"`
	Dropped         int64                `json:"dropped"`
	QueueOverflow   int64                `json:"queue_overflow"`
	Sinks           map[string]SinkState `json:"sinks,omitempty"`
}

type snapshotState struct {
	threshold       string
	latest          map[EventType]Event
	lastRTC         *Event
	lastDeviceError *Event
	history         []Event
	head            int
	full            bool
	samples         int64
	protocolErrors  int64
}

func newSnapshotState(historySize int) snapshotState {
	return snapshotState{
		latest:  make(map[EventType]Event),
		history: make([]Event, historySize),
	}
}

func (s *snapshotState) setThreshold(state string) bool {
	if s.threshold == state {
		return false
	}
	s.threshold = state
	return true
}

func (s *snapshotState) recordSample(ev Event) {
	s.samples++
	s.latest[ev.EventType] = ev
	if ev.EventType != EventHeartRate {
		return
	}
	s.history[s.head] = ev
	s.head = (s.head + 1) % len(s.history)
	if s.head == 0 {
		s.full = true
	}
}

func (s *snapshotState) export() Snapshot {
	out := Snapshot{
		Threshold:       s.threshold,
		Latest:          make(map[string]Event, len(s.latest)),
		LastRTC:         s.lastRTC,
		LastDeviceError: s.lastDeviceError,
		Samples:         s.samples,
		ProtocolErrors:  s.protocolErrors,
	}
	for k, v := range s.latest {
		out.Latest[string(k)] = v
	}
	if s.full {
		out.HeartRates = append(out.HeartRates, s.history[s.head:]...)
	}
	out.HeartRates = append(out.HeartRates, s.history[:s.head]...)
	if out.HeartRates == nil {
		out.HeartRates = []Event{}
	}
	return out
}
