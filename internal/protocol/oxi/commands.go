package oxi

// 下行命令构造：先校验参数，再交给 Encode。
// 读记录负载固定取 FFFFFFF1（对应固件当前版本）。

var (
	payloadNone       = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}
	payloadReadRecord = [4]byte{0xFF, 0xFF, 0xFF, 0xF1}
)

// BuildCheckCom 通信检测
func BuildCheckCom() []byte { return mustEncode(CmdCheckCom, payloadNone) }

// BuildReadRecord 读取设备记录
func BuildReadRecord() []byte { return mustEncode(CmdData, payloadReadRecord) }

// BuildClearRecord 清除设备记录
func BuildClearRecord() []byte { return mustEncode(CmdClearRecord, payloadNone) }

// BuildSetThreshold 设置心率上下限，负载 FFFF{high}{low}
func BuildSetThreshold(high, low uint8) ([]byte, error) {
	if high == 0 {
		return nil, &ValidationError{Field: "high", Reason: "must be greater than 0"}
	}
	if low == 0 {
		return nil, &ValidationError{Field: "low", Reason: "must be greater than 0"}
	}
	return mustEncode(CmdSetThreshold, [4]byte{0xFF, 0xFF, high, low}), nil
}

// BuildSetInterval 设置采样上报间隔（秒）
func BuildSetInterval(seconds uint32) ([]byte, error) {
	if seconds == 0 {
		return nil, &ValidationError{Field: "seconds", Reason: "must be greater than 0"}
	}
	return mustEncode(CmdSetInterval, PayloadFromUint32(seconds)), nil
}

// BuildSetRTC 设置设备 RTC（epoch 秒）
func BuildSetRTC(epochSeconds uint32) []byte {
	return mustEncode(CmdSetRTC, PayloadFromUint32(epochSeconds))
}

// mustEncode 仅用于包内常量命令字
func mustEncode(cmd CommandID, payload [4]byte) []byte {
	b, err := Encode(cmd, payload, StatusNormal)
	if err != nil {
		panic(err)
	}
	return b
}
