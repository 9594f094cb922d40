// Package bulkloader walks a directory tree and submits one upload job
// per matching file, the way an operator backfills a project from a
// batch of already-exported CSV/NDJSON files instead of one-at-a-time
// HTTP uploads.
package bulkloader

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/apperrors"
	"github.com/lakeforge/lakeforge/internal/bus"
	"github.com/lakeforge/lakeforge/internal/job"
	"github.com/lakeforge/lakeforge/internal/jobstore"
	"github.com/lakeforge/lakeforge/internal/obs"
	"github.com/lakeforge/lakeforge/internal/objectstore"
)

// Config describes one bulk-load run.
type Config struct {
	ScanDir         string
	IncludeGlobs    []string
	ExcludeGlobs    []string
	Project         string
	Table           string
	UploadsBucket   string
	RateLimitPerSec int
	RateLimitKey    string
}

// Loader walks Config.ScanDir submitting an upload job per matching file.
type Loader struct {
	cfg     Config
	rdb     *redis.Client
	objects *objectstore.Store
	store   *jobstore.Store
	bus     *bus.Bus
	log     *zap.Logger
}

func New(cfg Config, rdb *redis.Client, objects *objectstore.Store, store *jobstore.Store, b *bus.Bus, log *zap.Logger) *Loader {
	return &Loader{cfg: cfg, rdb: rdb, objects: objects, store: store, bus: b, log: log}
}

// Run walks the scan directory and submits one job per file that
// matches the include globs and none of the exclude globs, relative to
// the scan root. Walk errors abort the run; per-file errors are logged
// and skipped so one bad file doesn't stop the backfill.
func (l *Loader) Run(ctx context.Context) (int, error) {
	absRoot, err := filepath.Abs(l.cfg.ScanDir)
	if err != nil {
		return 0, apperrors.WrapInvalidInput(err)
	}

	submitted := 0
	walkErr := filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if !l.matches(rel) {
			return nil
		}

		if err := l.rateLimit(ctx); err != nil {
			return err
		}

		if err := l.submit(ctx, path, filepath.Base(path)); err != nil {
			l.log.Warn("skipping file after submit error", zap.String("path", path), zap.Error(err))
			return nil
		}
		submitted++
		return nil
	})
	if walkErr != nil {
		return submitted, walkErr
	}
	return submitted, nil
}

func (l *Loader) matches(rel string) bool {
	included := len(l.cfg.IncludeGlobs) == 0
	for _, g := range l.cfg.IncludeGlobs {
		if ok, _ := doublestar.PathMatch(g, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, g := range l.cfg.ExcludeGlobs {
		if ok, _ := doublestar.PathMatch(g, rel); ok {
			return false
		}
	}
	return true
}

func (l *Loader) submit(ctx context.Context, path, fileName string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.WrapTransient(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.WrapTransient(err)
	}

	table := l.cfg.Table
	if table == "" {
		table = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	j := job.New(job.KindUpload, nil, "", "")
	uploadKey := objectstore.UploadKey(j.ID, fileName)
	if err := l.objects.Put(ctx, l.cfg.UploadsBucket, uploadKey, f, contentTypeForExt(filepath.Ext(fileName))); err != nil {
		return err
	}

	payload, err := json.Marshal(job.UploadPayload{
		Project:  l.cfg.Project,
		Table:    table,
		FileName: fileName,
		FilePath: uploadKey,
		FileSize: info.Size(),
	})
	if err != nil {
		return apperrors.WrapExecution(err)
	}
	j.Payload = payload

	if err := l.store.Create(ctx, j); err != nil {
		return err
	}

	envelope, err := job.Envelope{ID: j.ID, Kind: j.Kind}.Marshal()
	if err != nil {
		return apperrors.WrapExecution(err)
	}
	if err := l.bus.Publish(ctx, envelope); err != nil {
		_ = l.store.Fail(ctx, j.ID, "bus_error")
		return err
	}

	obs.JobsSubmitted.WithLabelValues(string(job.KindUpload)).Inc()
	l.log.Info("submitted bulk-load job", zap.String("id", j.ID), zap.String("path", path), zap.String("table", table))
	return nil
}

func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".csv":
		return "text/csv"
	case ".json", ".ndjson":
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}

// rateLimit is a fixed-window Redis rate limiter: once the per-second
// budget is spent it sleeps out the remaining TTL of the window plus a
// small jitter, so concurrent bulk-loaders across hosts share one cap.
func (l *Loader) rateLimit(ctx context.Context) error {
	if l.cfg.RateLimitPerSec <= 0 {
		return nil
	}
	key := l.cfg.RateLimitKey
	n, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return apperrors.WrapTransient(err)
	}
	if n == 1 {
		_ = l.rdb.Expire(ctx, key, time.Second).Err()
	}
	if int(n) <= l.cfg.RateLimitPerSec {
		return nil
	}

	ttl, err := l.rdb.TTL(ctx, key).Result()
	wait := 200 * time.Millisecond
	if err == nil && ttl > 0 {
		wait = ttl + jitter()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
	}
	return nil
}

func jitter() time.Duration {
	n, err := rand.Int(rand.Reader, big.NewInt(50))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64()) * time.Millisecond
}
