package pg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/taoyao-code/pulseox/internal/telemetry"
)

// SampleRepository 遥测持久化：样本批量写入，设备事件逐条写入
type SampleRepository struct {
	Pool *pgxpool.Pool

	batchSize     int
	flushInterval time.Duration
	log           *zap.Logger

	// insert 批量写入，测试可替换
	insert func(ctx context.Context, evs []telemetry.Event) error

	mu  sync.Mutex
	buf []telemetry.Event
}

// maxPendingBatches 写入失败时最多保留的批数，超出丢弃最旧的样本
const maxPendingBatches = 10

// NewSampleRepository 创建样本仓库
func NewSampleRepository(pool *pgxpool.Pool, batchSize int, flushInterval time.Duration, logger *zap.Logger) *SampleRepository {
	if batchSize <= 0 {
		batchSize = 200
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &SampleRepository{Pool: pool, batchSize: batchSize, flushInterval: flushInterval, log: logger}
	r.insert = r.InsertSamples
	return r
}

// Name 实现 telemetry.Sink
func (r *SampleRepository) Name() string { return "postgres" }

// Publish 实现 telemetry.Sink：样本进入缓冲，攒满一批写入
func (r *SampleRepository) Publish(ctx context.Context, ev telemetry.Event) error {
	if !ev.IsSample() {
		return r.InsertDeviceEvent(ctx, ev)
	}
	r.mu.Lock()
	r.buf = append(r.buf, ev)
	full := len(r.buf) >= r.batchSize
	r.mu.Unlock()
	if full {
		return r.Flush(ctx)
	}
	return nil
}

// Flush 写出缓冲中的样本
func (r *SampleRepository) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	if err := r.insert(ctx, batch); err != nil {
		r.requeue(batch)
		return fmt.Errorf("flush %d samples: %w", len(batch), err)
	}
	return nil
}

// requeue 失败的批次放回缓冲头部，下次刷新重试
func (r *SampleRepository) requeue(batch []telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	merged := make([]telemetry.Event, 0, len(batch)+len(r.buf))
	merged = append(append(merged, batch...), r.buf...)
	if limit := r.batchSize * maxPendingBatches; len(merged) > limit {
		dropped := len(merged) - limit
		merged = merged[dropped:]
		r.log.Warn("sample buffer full, dropping oldest samples", zap.Int("dropped", dropped))
	}
	r.buf = merged
}

// Buffered 尚未写入的样本数
func (r *SampleRepository) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Run 定时刷新缓冲，ctx 结束时做最后一次刷新
func (r *SampleRepository) Run(ctx context.Context) {
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.Flush(fctx); err != nil {
				r.log.Error("final sample flush failed", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.log.Warn("sample flush failed", zap.Error(err))
			}
		}
	}
}

// InsertSamples 使用 pgx.Batch 批量插入样本
func (r *SampleRepository) InsertSamples(ctx context.Context, evs []telemetry.Event) error {
	const q = `INSERT INTO telemetry_samples
               (event_id, session_id, kind, value, anchored, device_hours, device_epoch, received_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	b := &pgx.Batch{}
	for _, ev := range evs {
		hours, epoch := anchoredFields(ev)
		b.Queue(q, ev.EventID, ev.SessionID, string(ev.EventType), ev.Value, ev.Anchored, hours, epoch, ev.ReceivedAt)
	}
	return r.Pool.SendBatch(ctx, b).Close()
}

// InsertDeviceEvent 写入非样本事件（阈值、时间戳、错误）
func (r *SampleRepository) InsertDeviceEvent(ctx context.Context, ev telemetry.Event) error {
	const q = `INSERT INTO device_events
               (event_id, session_id, event_type, state, device_epoch, error_class, detail, received_at)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	var epoch *int64
	if ev.EventType == telemetry.EventDeviceRTC {
		e := int64(ev.Epoch)
		epoch = &e
	}
	_, err := r.Pool.Exec(ctx, q, ev.EventID, ev.SessionID, string(ev.EventType), ev.State, epoch, ev.ErrorClass, ev.Error, ev.ReceivedAt)
	return err
}

// SampleRow 查询结果
type SampleRow struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"kind"`
	Value       float64   `json:"value"`
	Anchored    bool      `json:"anchored"`
	DeviceHours *float64  `json:"device_hours,omitempty"`
	DeviceEpoch *int64    `json:"device_epoch,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// RecentSamples 按类型查询最近样本，新的在前
func (r *SampleRepository) RecentSamples(ctx context.Context, kind string, limit int) ([]SampleRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	const q = `SELECT id, session_id, kind, value, anchored, device_hours, device_epoch, received_at
               FROM telemetry_samples WHERE kind=$1 ORDER BY received_at DESC, id DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SampleRow
	for rows.Next() {
		var s SampleRow
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Kind, &s.Value, &s.Anchored, &s.DeviceHours, &s.DeviceEpoch, &s.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountDeviceEvents 统计某类设备事件
func (r *SampleRepository) CountDeviceEvents(ctx context.Context, eventType telemetry.EventType) (int64, error) {
	var n int64
	err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM device_events WHERE event_type=$1`, string(eventType)).Scan(&n)
	return n, err
}

func anchoredFields(ev telemetry.Event) (*float64, *int64) {
	if !ev.Anchored {
		return nil, nil
	}
	h := ev.Hours
	e := int64(ev.Epoch)
	return &h, &e
}
