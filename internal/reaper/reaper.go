// Copyright 2025 James Ross
package reaper

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/bus"
	"github.com/lakeforge/lakeforge/internal/obs"
)

// Reaper scans for processing lists whose worker heartbeat has expired
// and requeues their abandoned deliveries onto the bus.
type Reaper struct {
	rdb *redis.Client
	bus *bus.Bus
	log *zap.Logger
}

func New(rdb *redis.Client, b *bus.Bus, log *zap.Logger) *Reaper {
	return &Reaper{rdb: rdb, bus: b, log: log}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.scanOnce(ctx)
		}
	}
}

func (r *Reaper) scanOnce(ctx context.Context) {
	var cursor uint64
	for {
		keys, cur, err := r.rdb.Scan(ctx, cursor, "lakeforge:worker:*:processing", 100).Result()
		if err != nil {
			r.log.Warn("reaper scan error", zap.Error(err))
			return
		}
		cursor = cur
		for _, plist := range keys {
			workerID, ok := bus.WorkerIDFromProcessingKey(plist)
			if !ok {
				continue
			}
			hbKey := bus.HeartbeatKey(workerID)
			exists, _ := r.rdb.Exists(ctx, hbKey).Result()
			if exists == 1 {
				continue // worker still alive
			}

			for {
				payload, err := r.rdb.RPop(ctx, plist).Result()
				if err == redis.Nil {
					break
				}
				if err != nil {
					r.log.Warn("reaper rpop error", zap.Error(err))
					break
				}
				if err := r.bus.Publish(ctx, payload); err != nil {
					r.log.Error("requeue failed", zap.Error(err))
					continue
				}
				obs.ReaperRecovered.Inc()
				r.log.Warn("requeued abandoned job", zap.String("worker_id", workerID))
			}
		}
		if cursor == 0 {
			break
		}
	}
}
