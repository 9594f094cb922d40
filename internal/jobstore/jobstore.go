// Package jobstore is the Redis-backed job record store. Every job, of
// any kind, is one JSON string under lakeforge:job:<id>; no per-kind
// alias key is written. Every write keeps the key under a refreshed TTL.
package jobstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/job"
)

const keyPrefix = "lakeforge:job:"

// updateScript performs the write half of Update: given the already
// Go-side-computed new payload, it sets it with a refreshed TTL only if
// the key still exists, failing with "not_found" otherwise. Update itself
// is a Get-then-script round trip, not a single atomic read-modify-write:
// this is safe only because each job id has exactly one writer for any
// given transition (the coordinator writes queued, the dispatcher writes
// everything after), so there is no concurrent-update race to guard
// against within a single id.
var updateScript = redis.NewScript(`
local key = KEYS[1]
local ttl = ARGV[1]
local current = redis.call("GET", key)
if current == false then
	return redis.error_reply("not_found")
end
redis.call("SET", key, ARGV[2], "EX", ttl)
return current
`)

// Store is a Redis-backed job.Job store.
type Store struct {
	rdb *redis.Client
	log *zap.Logger
	ttl time.Duration
}

func New(rdb *redis.Client, log *zap.Logger, ttl time.Duration) *Store {
	return &Store{rdb: rdb, log: log, ttl: ttl}
}

func keyFor(id string) string {
	return keyPrefix + id
}

// Create persists a newly queued job.
func (s *Store) Create(ctx context.Context, j job.Job) error {
	payload, err := j.Marshal()
	if err != nil {
		return apperrors.WrapExecution(err)
	}
	if err := s.rdb.Set(ctx, keyFor(j.ID), payload, s.ttl).Err(); err != nil {
		return apperrors.WrapTransient(err)
	}
	return nil
}

// Get looks a job up by id.
func (s *Store) Get(ctx context.Context, id string) (job.Job, error) {
	raw, err := s.rdb.Get(ctx, keyFor(id)).Result()
	if err == redis.Nil {
		return job.Job{}, apperrors.NotFound("job not found: " + id)
	}
	if err != nil {
		return job.Job{}, apperrors.WrapTransient(err)
	}
	j, err := job.Unmarshal(raw)
	if err != nil {
		return job.Job{}, apperrors.WrapExecution(err)
	}
	return j, nil
}

// Update applies fn to the current record and writes the result back,
// refreshing the TTL. The read and the write are two round trips (see
// updateScript); the write itself fails if the key expired in between.
// An update against a missing job is a
// no-op that returns apperrors.NotFound, matching the coordinator's
// policy of treating status updates on unknown jobs as idempotent no-ops
// at the HTTP layer rather than failing the whole request.
func (s *Store) Update(ctx context.Context, id string, fn func(job.Job) (job.Job, error)) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	updated, err := fn(current)
	if err != nil {
		return err
	}
	payload, err := updated.Marshal()
	if err != nil {
		return apperrors.WrapExecution(err)
	}
	ttlSeconds := int64(s.ttl / time.Second)
	if err := updateScript.Run(ctx, s.rdb, []string{keyFor(id)}, ttlSeconds, payload).Err(); err != nil {
		if err.Error() == "not_found" {
			return apperrors.NotFound("job not found: " + id)
		}
		return apperrors.WrapTransient(err)
	}
	return nil
}

// MarkProcessing transitions queued -> processing.
func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.Update(ctx, id, func(j job.Job) (job.Job, error) {
		if !job.CanTransition(j.Status, job.StatusProcessing) {
			return j, apperrors.Execution("illegal transition to processing from " + string(j.Status))
		}
		j.Status = job.StatusProcessing
		j.UpdatedAt = time.Now().UTC()
		return j, nil
	})
}

// Complete transitions processing -> completed and attaches the result
// along with the kind-specific terminal message the executor produced.
func (s *Store) Complete(ctx context.Context, id string, result []byte, message string) error {
	return s.Update(ctx, id, func(j job.Job) (job.Job, error) {
		if !job.CanTransition(j.Status, job.StatusCompleted) {
			return j, apperrors.Execution("illegal transition to completed from " + string(j.Status))
		}
		j.Status = job.StatusCompleted
		j.Result = result
		j.Message = message
		j.UpdatedAt = time.Now().UTC()
		return j, nil
	})
}

// Fail transitions processing -> failed and records the message. A job
// still queued is also moved straight to failed, for jobs that never
// reach an executor (enqueue failure, unknown kind).
func (s *Store) Fail(ctx context.Context, id string, message string) error {
	return s.Update(ctx, id, func(j job.Job) (job.Job, error) {
		if j.Status != job.StatusQueued && !job.CanTransition(j.Status, job.StatusFailed) {
			return j, apperrors.Execution("illegal transition to failed from " + string(j.Status))
		}
		j.Status = job.StatusFailed
		j.Message = message
		j.UpdatedAt = time.Now().UTC()
		return j, nil
	})
}
