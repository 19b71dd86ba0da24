package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/infra"
)

// HallProvider lists halls whose detection flag is set in the database.
type HallProvider interface {
	EnabledHallIDs(ctx context.Context) ([]int64, error)
}

// HallManager caches the per-hall detection flag. Frame loops read it on
// every frame; writes come from the command surface and from Redis signals
// sent by other instances.
type HallManager struct {
	repo    HallProvider
	rdb     *redis.Client
	logger  *zap.Logger
	mu      sync.RWMutex
	enabled map[int64]bool
}

// NewHallManager builds a manager; rdb may be nil for a single instance.
func NewHallManager(rdb *redis.Client, repo HallProvider, logger *zap.Logger) *HallManager {
	return &HallManager{
		enabled: make(map[int64]bool),
		repo:    repo,
		rdb:     rdb,
		logger:  logger.With(zap.String("mod", "halls")),
	}
}

// Init loads the enabled halls at startup.
func (hm *HallManager) Init(ctx context.Context) error {
	if hm.repo == nil {
		return nil
	}
	ids, err := hm.repo.EnabledHallIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch enabled halls from DB: %w", err)
	}

	return warmupHalls(ctx, hm.rdb, hm.logger, ids, func(enabled []int64) {
		hm.mu.Lock()
		defer hm.mu.Unlock()
		for _, id := range enabled {
			hm.enabled[id] = true
		}
	})
}

// StartListener follows hall toggles published by other instances. It
// blocks until ctx is done.
func (hm *HallManager) StartListener(ctx context.Context) {
	if hm.rdb == nil {
		return
	}
	ListenStateResilient(ctx, hm.rdb, hm.logger, infra.RedisChanHallDetection,
		func() error { return hm.Init(ctx) },
		hm.onSignal,
	)
}

func (hm *HallManager) onSignal(raw string, status bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		hm.logger.Error("invalid hall id in signal", zap.String("id", raw))
		return
	}
	hm.SetEnabled(id, status)
}

func (hm *HallManager) SetEnabled(hallID int64, on bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if on {
		hm.enabled[hallID] = true
	} else {
		delete(hm.enabled, hallID)
	}
}

// IsEnabled is read on the hot path of every frame.
func (hm *HallManager) IsEnabled(hallID int64) bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.enabled[hallID]
}

// Publish updates the shared set and tells the other instances.
func (hm *HallManager) Publish(ctx context.Context, hallID int64, on bool) error {
	if hm.rdb == nil {
		return nil
	}
	id := strconv.FormatInt(hallID, 10)
	status := "off"
	pipe := hm.rdb.TxPipeline()
	if on {
		status = "on"
		pipe.SAdd(ctx, infra.RedisKeyEnabledHalls, id)
	} else {
		pipe.SRem(ctx, infra.RedisKeyEnabledHalls, id)
	}
	pipe.Publish(ctx, infra.RedisChanHallDetection, id+":"+status)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish hall %d signal: %w", hallID, err)
	}
	return nil
}
