package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/pulseox/internal/health"
	"github.com/taoyao-code/pulseox/internal/mqtt"
	"github.com/taoyao-code/pulseox/internal/storage/gormrepo"
	redisstorage "github.com/taoyao-code/pulseox/internal/storage/redis"
)

// NewHealthAggregator 创建健康检查聚合器，初始只有串口检查
func NewHealthAggregator(link health.LinkStatus) *health.Aggregator {
	return health.NewAggregator(health.NewSerialChecker(link))
}

// AddDatabaseChecker 数据库启用后添加
func AddDatabaseChecker(aggregator *health.Aggregator, pool *pgxpool.Pool, audit *gormrepo.Repository) {
	if pool == nil {
		return
	}
	var p health.Pinger
	if audit != nil {
		p = audit
	}
	aggregator.AddChecker(health.NewDatabaseChecker(pool, p))
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}

// AddMQTTChecker 添加 MQTT 连接检查
func AddMQTTChecker(aggregator *health.Aggregator, pub *mqtt.Publisher) {
	if pub != nil {
		aggregator.AddChecker(health.NewMQTTChecker(pub))
	}
}
