package locking

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/shohq/ontology/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the lock manager: redis-backed when REDIS_ADDR is set,
// in-process otherwise.
var Module = fx.Module("locking",
	fx.Provide(New),
)

func New(cfg config.Config, log *zap.Logger) Manager {
	if cfg.RedisAddr == "" {
		return NewMemoryManager()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	log.Info("distributed locking enabled", zap.String("redis_addr", cfg.RedisAddr))
	return NewRedisManager(client)
}
