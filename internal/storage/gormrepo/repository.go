package gormrepo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/taoyao-code/pulseox/internal/storage"
	"github.com/taoyao-code/pulseox/internal/storage/models"
)

// Repository 基于 GORM 的命令审计实现
type Repository struct {
	db *gorm.DB
}

var _ storage.CommandAudit = (*Repository)(nil)

// Open 通过 DSN 连接 PostgreSQL
func Open(dsn string, maxOpen int, maxLifetime time.Duration, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: NewZapLogger(logger, 200*time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(maxLifetime)
	}
	return db, nil
}

// New 返回使用给定 *gorm.DB 的审计仓库
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AutoMigrate 未使用 SQL 迁移时建表
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&models.CommandLog{})
}

// Record 写入审计记录
func (r *Repository) Record(ctx context.Context, rec *models.CommandLog) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// List 按条件倒序查询
func (r *Repository) List(ctx context.Context, f storage.ListFilter) ([]models.CommandLog, error) {
	f = f.Normalize()
	q := r.db.WithContext(ctx).Model(&models.CommandLog{})
	if f.Command != "" {
		q = q.Where("command = ?", f.Command)
	}
	if f.Result != "" {
		q = q.Where("result = ?", f.Result)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	var out []models.CommandLog
	err := q.Order("created_at DESC").Order("id DESC").Limit(f.Limit).Find(&out).Error
	return out, err
}

// Ping 健康检查
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭底层连接
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
