package oxi

import "fmt"

// Encode 构造一帧：1{cmd}{payload:8hex}{status:2hex}04
func Encode(cmd CommandID, payload [4]byte, status byte) ([]byte, error) {
	if cmd > maxCommandID {
		return nil, &EncodingError{Cmd: cmd}
	}
	f := Frame{Cmd: cmd, Payload: payload, Status: status}
	return f.Bytes(), nil
}

// Decode 结构校验并拆帧，语义解释由 Dispatcher 负责
func Decode(raw []byte) (*Frame, error) {
	if len(raw) != FrameSize {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("length %d, want %d", len(raw), FrameSize), Raw: dup(raw)}
	}
	if raw[0]>>4 != startNibble {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("start nibble %X, want 1", raw[0]>>4), Raw: dup(raw)}
	}
	if raw[FrameSize-1] != endMarker {
		return nil, &MalformedFrameError{Reason: fmt.Sprintf("end marker %02X, want 04", raw[FrameSize-1]), Raw: dup(raw)}
	}
	f := &Frame{Cmd: CommandID(raw[0] & 0x0F), Status: raw[5]}
	copy(f.Payload[:], raw[1:5])
	return f, nil
}

// wellFormed 与 Decode 相同的结构判定，不分配
func wellFormed(raw []byte) bool {
	return len(raw) == FrameSize && raw[0]>>4 == startNibble && raw[FrameSize-1] == endMarker
}

func dup(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
