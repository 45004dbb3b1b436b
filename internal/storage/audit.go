package storage

import (
	"context"
	"sync"
	"time"

	"github.com/taoyao-code/pulseox/internal/storage/models"
)

// CommandAudit 下行命令审计存储。
// 约束：
// - Record 不修改调用方传入记录以外的状态
// - List 按创建时间倒序返回
type CommandAudit interface {
	// Record 写入一条审计记录，成功后 rec.ID 被填充
	Record(ctx context.Context, rec *models.CommandLog) error
	// List 按条件查询
	List(ctx context.Context, f ListFilter) ([]models.CommandLog, error)
}

// ListFilter 审计查询条件
type ListFilter struct {
	Command string    // 为空表示全部
	Result  string    // ok | rejected | rate_limited | failed
	Since   time.Time // 零值表示不限
	Limit   int
}

// Normalize 补全分页默认值
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	return f
}

func (f ListFilter) match(r *models.CommandLog) bool {
	if f.Command != "" && r.Command != f.Command {
		return false
	}
	if f.Result != "" && r.Result != f.Result {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// MemoryAudit 未启用数据库时使用的环形审计缓冲
type MemoryAudit struct {
	mu     sync.Mutex
	recs   []models.CommandLog
	nextID int64
	cap    int
}

// NewMemoryAudit 创建容量为 n 的内存审计
func NewMemoryAudit(n int) *MemoryAudit {
	if n <= 0 {
		n = 500
	}
	return &MemoryAudit{cap: n}
}

// Record 实现 CommandAudit
func (m *MemoryAudit) Record(_ context.Context, rec *models.CommandLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.recs = append(m.recs, *rec)
	if len(m.recs) > m.cap {
		m.recs = m.recs[len(m.recs)-m.cap:]
	}
	return nil
}

// List 实现 CommandAudit
func (m *MemoryAudit) List(_ context.Context, f ListFilter) ([]models.CommandLog, error) {
	f = f.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.CommandLog, 0, f.Limit)
	for i := len(m.recs) - 1; i >= 0 && len(out) < f.Limit; i-- {
		if f.match(&m.recs[i]) {
			out = append(out, m.recs[i])
		}
	}
	return out, nil
}
