// Package dispatcher is the bus-consuming router (component F): it
// pulls envelopes off the bus, loads the authoritative job record,
// routes by kind to an executor, and acks/nacks based on the tagged
// category of whatever error the executor returns.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/breaker"
	"github.com/lakeforge/lakeforge/internal/bus"
	"github.com/lakeforge/lakeforge/internal/job"
	"github.com/lakeforge/lakeforge/internal/jobstore"
	"github.com/lakeforge/lakeforge/internal/obs"
)

// Executor runs one job kind's work and returns its result payload plus
// the exact terminal message to record alongside it on success.
type Executor interface {
	Run(ctx context.Context, payload json.RawMessage) (result json.RawMessage, message string, err error)
}

// Dispatcher owns the consume loop(s) that drive executors.
type Dispatcher struct {
	bus     *bus.Bus
	store   *jobstore.Store
	cb      *breaker.CircuitBreaker
	log     *zap.Logger
	routes  map[job.Kind]Executor
	workers int
	pause   time.Duration
	baseID  string
}

func New(b *bus.Bus, store *jobstore.Store, cb *breaker.CircuitBreaker, log *zap.Logger, workers int, breakerPause time.Duration) *Dispatcher {
	return &Dispatcher{
		bus:     b,
		store:   store,
		cb:      cb,
		log:     log,
		routes:  map[job.Kind]Executor{},
		workers: workers,
		pause:   breakerPause,
		baseID:  fmt.Sprintf("dispatcher-%d", time.Now().UnixNano()),
	}
}

// Register wires an executor for a job kind.
func (d *Dispatcher) Register(kind job.Kind, exec Executor) {
	d.routes[kind] = exec
}

// Run starts the configured number of concurrent consume loops and
// blocks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		id := fmt.Sprintf("%s-%d", d.baseID, i)
		go func(workerID string) {
			defer wg.Done()
			obs.DispatcherActive.Inc()
			defer obs.DispatcherActive.Dec()
			d.loop(ctx, workerID)
		}(id)
	}
	wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context, workerID string) {
	for ctx.Err() == nil {
		if !d.cb.Allow() {
			time.Sleep(d.pause)
			continue
		}

		delivery, err := d.bus.Consume(ctx, workerID)
		if err != nil {
			d.log.Warn("bus consume error", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if delivery == nil {
			continue // timeout, no message
		}

		obs.JobsDequeued.Inc()
		ok := d.handle(ctx, delivery.Payload, delivery)
		d.cb.Record(ok)
	}
}

func (d *Dispatcher) handle(ctx context.Context, payload string, delivery *bus.Delivery) bool {
	env, err := job.UnmarshalEnvelope(payload)
	if err != nil {
		d.log.Error("invalid envelope, dropping", zap.Error(err))
		_ = d.bus.Nack(ctx, delivery, false)
		return false
	}

	exec, ok := d.routes[env.Kind]
	if !ok {
		d.log.Error("unknown job kind", zap.String("kind", string(env.Kind)))
		_ = d.store.Fail(ctx, env.ID, "unknown job kind: "+string(env.Kind))
		_ = d.bus.Nack(ctx, delivery, false)
		return false
	}

	j, err := d.store.Get(ctx, env.ID)
	if err != nil {
		d.log.Error("job record missing for delivery", zap.String("id", env.ID), zap.Error(err))
		_ = d.bus.Nack(ctx, delivery, false)
		return false
	}

	if err := d.store.MarkProcessing(ctx, env.ID); err != nil && !apperrors.IsNotFound(err) {
		d.log.Warn("mark processing failed", zap.Error(err))
	}

	ctx, span := obs.ContextWithJobSpan(ctx, j)
	defer span.End()

	start := time.Now()
	result, message, execErr := exec.Run(ctx, j.Payload)
	obs.JobExecutionDuration.WithLabelValues(string(env.Kind)).Observe(time.Since(start).Seconds())

	if execErr == nil {
		obs.SetSpanSuccess(ctx)
		obs.JobsCompleted.WithLabelValues(string(env.Kind)).Inc()
		if err := d.store.Complete(ctx, env.ID, result, message); err != nil {
			d.log.Error("mark completed failed", zap.Error(err))
		}
		_ = d.bus.Ack(ctx, delivery)
		return true
	}

	obs.RecordError(ctx, execErr)
	obs.JobsFailed.WithLabelValues(string(env.Kind)).Inc()

	if apperrors.Retryable(execErr) {
		obs.JobsRequeued.Inc()
		d.log.Warn("transient failure, requeueing", zap.String("id", env.ID), zap.Error(execErr))
		_ = d.bus.Nack(ctx, delivery, true)
		return false
	}

	failMessage := truncate(execErr.Error(), 500)
	if err := d.store.Fail(ctx, env.ID, failMessage); err != nil {
		d.log.Error("mark failed failed", zap.Error(err))
	}
	obs.JobsDeadLetter.Inc()
	_ = d.bus.Nack(ctx, delivery, false)
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
