package oxi

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []byte{StatusNormal, StatusHigh, StatusLow, 0x00, 0x7A}
	for cmd := CmdCheckCom; cmd <= CmdErrorReport; cmd++ {
		for i := 0; i < 50; i++ {
			var payload [4]byte
			rng.Read(payload[:])
			status := statuses[rng.Intn(len(statuses))]

			raw, err := Encode(cmd, payload, status)
			require.NoError(t, err)
			require.Len(t, raw, FrameSize)

			f, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, cmd, f.Cmd)
			assert.Equal(t, payload, f.Payload)
			assert.Equal(t, status, f.Status)
		}
	}
}

func TestEncode_CommandOutOfRange(t *testing.T) {
	_, err := Encode(CommandID(7), payloadNone, StatusNormal)
	require.Error(t, err)
	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Equal(t, CommandID(7), encErr.Cmd)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestEncode_HexLayout(t *testing.T) {
	raw, err := Encode(CmdSetRTC, PayloadFromUint32(0x6553F100), StatusNormal)
	require.NoError(t, err)
	f, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "146553F100FF04", f.Hex())
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"空", nil},
		{"过短", []byte{0x10, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"过长", []byte{0x10, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x04, 0x00}},
		{"起始半字节错误", []byte{0x20, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x04}},
		{"结束符错误", []byte{0x10, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x05}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.raw)
			assert.Nil(t, f)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedFrame)
			var mf *MalformedFrameError
			require.True(t, errors.As(err, &mf))
			assert.NotEmpty(t, mf.Reason)
		})
	}
}

func TestDecode_AcceptsAnyStatusAndCommandNibble(t *testing.T) {
	// 结构校验只看长度/起始/结束，状态与命令字交给 Dispatcher
	f, err := Decode([]byte{0x1F, 0x00, 0x00, 0x00, 0x00, 0x12, 0x04})
	require.NoError(t, err)
	assert.Equal(t, CommandID(0xF), f.Cmd)
	assert.Equal(t, byte(0x12), f.Status)
}

func TestParseHex(t *testing.T) {
	f, err := ParseHex("1300000005FF04")
	require.NoError(t, err)
	assert.Equal(t, CmdSetInterval, f.Cmd)
	assert.Equal(t, uint32(5), f.PayloadUint32())

	_, err = ParseHex("13ZZ")
	assert.ErrorIs(t, err, ErrMalformedFrame)
}
