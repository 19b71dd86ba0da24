package engine

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/infra"
)

const hallWarmupLockTTL = 30 * time.Second

// hallDrift is the difference between the database's enabled halls and the
// shared Redis set.
type hallDrift struct {
	missing   []int64  // enabled in the database, absent from Redis
	stale     []string // in Redis, no longer enabled in the database
	malformed []string // members that are not hall ids
}

func (d hallDrift) empty() bool {
	return len(d.missing) == 0 && len(d.stale) == 0 && len(d.malformed) == 0
}

// diffHallSets compares enabled hall ids with the members of the Redis set.
// Results are sorted.
func diffHallSets(enabled []int64, members []string) hallDrift {
	want := make(map[int64]bool, len(enabled))
	for _, id := range enabled {
		want[id] = true
	}

	var d hallDrift
	seen := make(map[int64]bool, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil || id <= 0 {
			d.malformed = append(d.malformed, m)
			continue
		}
		seen[id] = true
		if !want[id] {
			d.stale = append(d.stale, m)
		}
	}
	for id := range want {
		if !seen[id] {
			d.missing = append(d.missing, id)
		}
	}

	sort.Slice(d.missing, func(i, j int) bool { return d.missing[i] < d.missing[j] })
	sort.Strings(d.stale)
	sort.Strings(d.malformed)
	return d
}

// warmupHalls loads the enabled halls into the local cache and brings the
// shared Redis set in line with the database, which is authoritative for
// hall flags. A SetNX lock keeps concurrent instances from repairing the
// set at the same time; losing the lock is not an error.
func warmupHalls(ctx context.Context, rdb *redis.Client, logger *zap.Logger, enabled []int64, apply func([]int64)) error {
	apply(enabled)

	if rdb == nil {
		return nil
	}

	ok, err := rdb.SetNX(ctx, infra.RedisKeyLockWarmupHall, "processing", hallWarmupLockTTL).Result()
	if err != nil || !ok {
		// network trouble or another instance is already on it
		return nil
	}
	defer rdb.Del(context.WithoutCancel(ctx), infra.RedisKeyLockWarmupHall)

	members, err := rdb.SMembers(ctx, infra.RedisKeyEnabledHalls).Result()
	if err != nil {
		logger.Warn("could not read enabled hall set, reseeding from DB", zap.Error(err))
		members = nil
	}

	drift := diffHallSets(enabled, members)
	if drift.empty() {
		return nil
	}
	logger.Info("repairing enabled hall set",
		zap.Int("missing", len(drift.missing)),
		zap.Int("stale", len(drift.stale)),
		zap.Strings("malformed", drift.malformed))

	pipe := rdb.TxPipeline()
	for _, id := range drift.missing {
		pipe.SAdd(ctx, infra.RedisKeyEnabledHalls, strconv.FormatInt(id, 10))
	}
	for _, m := range append(drift.stale, drift.malformed...) {
		pipe.SRem(ctx, infra.RedisKeyEnabledHalls, m)
	}
	_, err = pipe.Exec(ctx)
	return err
}
