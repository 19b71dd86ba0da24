package engine

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/domain"
	"github.com/xela07ax/proctor/internal/infra"
)

// RedisNotifier broadcasts accepted records and repeat offenders so that
// dashboards on other instances update without polling.
type RedisNotifier struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisNotifier(rdb *redis.Client, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, logger: logger.With(zap.String("mod", "notifier"))}
}

func (n *RedisNotifier) NotifyViolation(ctx context.Context, rec domain.ViolationRecord) {
	n.publish(ctx, infra.RedisChanViolations, rec)
}

func (n *RedisNotifier) NotifyOffenders(ctx context.Context, offenders []domain.RepeatOffender) {
	for _, o := range offenders {
		n.publish(ctx, infra.RedisChanRepeatOffenders, o)
	}
}

func (n *RedisNotifier) publish(ctx context.Context, channel string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		n.logger.Error("encode notification", zap.Error(err))
		return
	}
	// fire and forget: subscribers are best effort
	if err := n.rdb.Publish(context.WithoutCancel(ctx), channel, payload).Err(); err != nil {
		n.logger.Warn("publish notification", zap.String("chan", channel), zap.Error(err))
	}
}
