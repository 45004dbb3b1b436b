package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/pulseox/internal/config"
	"github.com/taoyao-code/pulseox/internal/migrate"
	"github.com/taoyao-code/pulseox/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/pulseox/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并按需执行迁移
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	if cfg.AutoMigrate {
		applied, err := (migrate.Runner{FS: migrate.Embedded()}).Up(ctx, dbpool)
		if err != nil {
			log.Error("db migrate error", zap.Error(err))
			return dbpool, err
		}
		log.Info("db migrations applied", zap.Int64s("versions", applied))
	}
	return dbpool, nil
}

// NewSampleRepository 样本批量写入（作为遥测 Sink）
func NewSampleRepository(pool *pgxpool.Pool, cfg cfgpkg.DatabaseConfig, log *zap.Logger) *pgstorage.SampleRepository {
	return pgstorage.NewSampleRepository(pool, cfg.BatchSize, cfg.FlushInterval, log)
}

// OpenAuditRepo 打开命令审计库（GORM），AutoMigrate 时建表
func OpenAuditRepo(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*gormrepo.Repository, error) {
	db, err := gormrepo.Open(cfg.DSN, cfg.MaxOpenConns, cfg.ConnMaxLifetime, log)
	if err != nil {
		return nil, err
	}
	repo := gormrepo.New(db)
	if cfg.AutoMigrate {
		if err := repo.AutoMigrate(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
	}
	return repo, nil
}
