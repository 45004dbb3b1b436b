package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/pulseox/internal/telemetry"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	pending   bool
	err       error
	msgs      []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) MQTT.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic, qos, retained, payload.([]byte)})
	return newFakeToken(c.err, !c.pending)
}

func (c *fakeClient) IsConnectionOpen() bool { return c.connected }
func (c *fakeClient) Disconnect(uint)        { c.connected = false }

func TestPublisher_Topics(t *testing.T) {
	p := NewPublisher(&fakeClient{}, "ward3/bed7", 1, nil)
	assert.Equal(t, "ward3/bed7/hr", p.Topic(telemetry.EventHeartRate))
	assert.Equal(t, "ward3/bed7/ppg/host_filtered", p.Topic(telemetry.EventPPGHostFiltered))
	assert.Equal(t, "ward3/bed7/device/rtc", p.Topic(telemetry.EventDeviceRTC))
	assert.Equal(t, "ward3/bed7/protocol/error", p.Topic(telemetry.EventProtocolError))
	assert.Equal(t, "pulseox/threshold", NewPublisher(&fakeClient{}, "", 0, nil).Topic(telemetry.EventThreshold))
}

func TestPublisher_Publish(t *testing.T) {
	c := &fakeClient{connected: true}
	p := NewPublisher(c, "pulseox", 1, nil)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, telemetry.Event{EventType: telemetry.EventHeartRate, Value: 72, Anchored: true}))
	require.NoError(t, p.Publish(ctx, telemetry.Event{EventType: telemetry.EventThreshold, State: "high"}))

	require.Len(t, c.msgs, 2)
	assert.Equal(t, "pulseox/hr", c.msgs[0].topic)
	assert.False(t, c.msgs[0].retained)
	assert.Equal(t, byte(1), c.msgs[0].qos)
	var ev telemetry.Event
	require.NoError(t, json.Unmarshal(c.msgs[0].payload, &ev))
	assert.Equal(t, float64(72), ev.Value)
	assert.True(t, c.msgs[1].retained)
}

func TestPublisher_Errors(t *testing.T) {
	p := NewPublisher(&fakeClient{}, "pulseox", 0, nil)
	assert.ErrorIs(t, p.Publish(context.Background(), telemetry.Event{}), ErrNotConnected)

	boom := errors.New("broker refused")
	p = NewPublisher(&fakeClient{connected: true, err: boom}, "pulseox", 0, nil)
	assert.ErrorIs(t, p.Publish(context.Background(), telemetry.Event{EventType: telemetry.EventLog}), boom)

	p = NewPublisher(&fakeClient{connected: true, pending: true}, "pulseox", 1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Publish(ctx, telemetry.Event{EventType: telemetry.EventLog}), context.DeadlineExceeded)
}
