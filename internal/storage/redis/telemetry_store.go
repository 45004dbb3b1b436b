package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/pulseox/internal/telemetry"
)

// TelemetryStore 遥测快照：最新值、心率历史与事件广播
//
//	<prefix>:latest  HASH  event_type -> 事件 JSON
//	<prefix>:hr      LIST  最近心率（新的在左）
//	<prefix>:events  PUBSUB 每个事件的 JSON
type TelemetryStore struct {
	rdb         *redis.Client
	prefix      string
	historySize int64
}

// NewTelemetryStore 创建遥测快照存储
func NewTelemetryStore(c *Client, prefix string, historySize int64) *TelemetryStore {
	if prefix == "" {
		prefix = "pulseox"
	}
	if historySize <= 0 {
		historySize = 600
	}
	return &TelemetryStore{rdb: c.Client, prefix: prefix, historySize: historySize}
}

func (s *TelemetryStore) latestKey() string  { return s.prefix + ":latest" }
func (s *TelemetryStore) hrKey() string      { return s.prefix + ":hr" }
func (s *TelemetryStore) eventsChan() string { return s.prefix + ":events" }

// Name 实现 telemetry.Sink
func (s *TelemetryStore) Name() string { return "redis" }

// Publish 实现 telemetry.Sink
func (s *TelemetryStore) Publish(ctx context.Context, ev telemetry.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.latestKey(), string(ev.EventType), data)
		if ev.EventType == telemetry.EventHeartRate {
			p.LPush(ctx, s.hrKey(), data)
			p.LTrim(ctx, s.hrKey(), 0, s.historySize-1)
		}
		p.Publish(ctx, s.eventsChan(), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Latest 各类型最新事件
func (s *TelemetryStore) Latest(ctx context.Context) (map[string]telemetry.Event, error) {
	vals, err := s.rdb.HGetAll(ctx, s.latestKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]telemetry.Event, len(vals))
	for k, v := range vals {
		var ev telemetry.Event
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k, err)
		}
		out[k] = ev
	}
	return out, nil
}

// RecentHeartRates 最近 n 个心率，新的在前
func (s *TelemetryStore) RecentHeartRates(ctx context.Context, n int64) ([]telemetry.Event, error) {
	if n <= 0 || n > s.historySize {
		n = s.historySize
	}
	vals, err := s.rdb.LRange(ctx, s.hrKey(), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]telemetry.Event, 0, len(vals))
	for _, v := range vals {
		var ev telemetry.Event
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// Subscribe 订阅事件广播
func (s *TelemetryStore) Subscribe(ctx context.Context) *redis.PubSub {
	return s.rdb.Subscribe(ctx, s.eventsChan())
}

// Clear 删除快照数据（测试与重置用）
func (s *TelemetryStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.latestKey(), s.hrKey()).Err()
}
