// Package bus is lakeforge's message bus adapter: a Redis list consumed
// with BRPOPLPUSH into a per-worker processing list, guarded by a
// heartbeat key. Ack removes the delivery from the processing list and
// clears the heartbeat; Nack either requeues immediately or routes to
// the dead-letter list. A Reaper scans for processing lists whose
// heartbeat has expired and requeues their contents, giving redelivery
// after a worker crash without any coordinator involvement.
package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/apperrors"
)

const (
	queueKey        = "lakeforge:jobs"
	deadLetterKey   = "lakeforge:jobs:dead"
	processingFmt   = "lakeforge:worker:%s:processing"
	heartbeatFmt    = "lakeforge:worker:%s:heartbeat"
)

// Delivery is one message taken off the bus, still awaiting ack/nack.
type Delivery struct {
	Payload      string
	workerID     string
	processingKey string
	heartbeatKey string
}

// Bus is the Redis-backed message bus.
type Bus struct {
	rdb          *redis.Client
	log          *zap.Logger
	dequeueWait  time.Duration
	heartbeatTTL time.Duration
}

func New(rdb *redis.Client, log *zap.Logger, dequeueWait, heartbeatTTL time.Duration) *Bus {
	return &Bus{rdb: rdb, log: log, dequeueWait: dequeueWait, heartbeatTTL: heartbeatTTL}
}

// Publish pushes a message envelope onto the bus.
func (b *Bus) Publish(ctx context.Context, payload string) error {
	if err := b.rdb.LPush(ctx, queueKey, payload).Err(); err != nil {
		return apperrors.WrapTransient(err)
	}
	return nil
}

// Consume blocks for up to the configured dequeue wait trying to pull one
// message onto workerID's processing list, setting its heartbeat on
// success. Returns (nil, nil) on a plain timeout so callers can loop.
func (b *Bus) Consume(ctx context.Context, workerID string) (*Delivery, error) {
	procList := fmt.Sprintf(processingFmt, workerID)
	hbKey := fmt.Sprintf(heartbeatFmt, workerID)

	v, err := b.rdb.BRPopLPush(ctx, queueKey, procList, b.dequeueWait).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.WrapTransient(err)
	}

	if err := b.rdb.Set(ctx, hbKey, v, b.heartbeatTTL).Err(); err != nil {
		b.log.Warn("heartbeat set failed", zap.Error(err))
	}

	return &Delivery{Payload: v, workerID: workerID, processingKey: procList, heartbeatKey: hbKey}, nil
}

// Touch refreshes a delivery's heartbeat so a slow-running executor isn't
// mistaken for a crashed worker while it is still making progress.
func (b *Bus) Touch(ctx context.Context, d *Delivery) error {
	return b.rdb.Expire(ctx, d.heartbeatKey, b.heartbeatTTL).Err()
}

// Ack removes the delivery from the processing list and clears its
// heartbeat, completing the at-least-once contract for this message.
func (b *Bus) Ack(ctx context.Context, d *Delivery) error {
	if err := b.rdb.LRem(ctx, d.processingKey, 1, d.Payload).Err(); err != nil {
		return apperrors.WrapTransient(err)
	}
	if err := b.rdb.Del(ctx, d.heartbeatKey).Err(); err != nil {
		b.log.Warn("heartbeat delete failed", zap.Error(err))
	}
	return nil
}

// Nack removes the delivery from its processing list. When requeue is
// true the message goes back to the head of the source queue for
// immediate redelivery; otherwise it is routed to the dead-letter list.
func (b *Bus) Nack(ctx context.Context, d *Delivery, requeue bool) error {
	if requeue {
		if err := b.rdb.LPush(ctx, queueKey, d.Payload).Err(); err != nil {
			return apperrors.WrapTransient(err)
		}
	} else {
		if err := b.rdb.LPush(ctx, deadLetterKey, d.Payload).Err(); err != nil {
			return apperrors.WrapTransient(err)
		}
	}
	if err := b.rdb.LRem(ctx, d.processingKey, 1, d.Payload).Err(); err != nil {
		b.log.Warn("processing list cleanup failed", zap.Error(err))
	}
	if err := b.rdb.Del(ctx, d.heartbeatKey).Err(); err != nil {
		b.log.Warn("heartbeat delete failed", zap.Error(err))
	}
	return nil
}

// Stats reports queue depth and the number of deliveries currently in
// flight across all workers' processing lists.
type Stats struct {
	QueueDepth     int64
	DeadLetterSize int64
	InFlight       int64
}

func (b *Bus) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error
	if s.QueueDepth, err = b.rdb.LLen(ctx, queueKey).Result(); err != nil {
		return s, apperrors.WrapTransient(err)
	}
	if s.DeadLetterSize, err = b.rdb.LLen(ctx, deadLetterKey).Result(); err != nil {
		return s, apperrors.WrapTransient(err)
	}

	iter := b.rdb.Scan(ctx, 0, "lakeforge:worker:*:processing", 100).Iterator()
	for iter.Next(ctx) {
		n, err := b.rdb.LLen(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		s.InFlight += n
	}
	if err := iter.Err(); err != nil {
		return s, apperrors.WrapTransient(err)
	}
	return s, nil
}

// WorkerIDFromProcessingKey extracts the worker id embedded in a
// processing-list key, used by the reaper when it only has the key name.
func WorkerIDFromProcessingKey(key string) (string, bool) {
	const prefix = "lakeforge:worker:"
	const suffix = ":processing"
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return "", false
	}
	return key[len(prefix) : len(key)-len(suffix)], true
}

func HeartbeatKey(workerID string) string  { return fmt.Sprintf(heartbeatFmt, workerID) }
func ProcessingKey(workerID string) string { return fmt.Sprintf(processingFmt, workerID) }
