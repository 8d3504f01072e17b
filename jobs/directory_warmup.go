package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/altss/altss/internal/backend"
	jobmetrics "github.com/altss/altss/internal/jobs"
)

// Warmer is the cached directory data refreshed by the warmup job.
type Warmer interface {
	ContactsCount(ctx context.Context) (int, error)
	FamilyOfficesCount(ctx context.Context) (int, error)
	CompanyNames(ctx context.Context) ([]backend.CompanyName, error)
}

// DirectoryWarmupJob pre-populates the landing counters and the company name
// lookup after the cache version moves.
type DirectoryWarmupJob struct {
	Catalog Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
	clock   func() time.Time
}

// NewDirectoryWarmupJob wires dependencies for the warmup handler.
func NewDirectoryWarmupJob(catalog Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DirectoryWarmupJob {
	return &DirectoryWarmupJob{
		Catalog: catalog,
		Logger:  logger,
		Metrics: metrics,
		Timeout: 20 * time.Second,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes directory warmup tasks.
func (j *DirectoryWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Catalog == nil {
		return errors.New("directory warmup: handler not configured")
	}
	var payload DirectoryWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
		}
	}
	if payload.Reason == "" {
		payload.Reason = "schedule"
	}

	tracker := j.metrics().Track(TaskDirectoryWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("reason", payload.Reason))
	start := j.now()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	warmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var offices, contacts, names int
	g, gctx := errgroup.WithContext(warmCtx)
	g.Go(func() (err error) {
		offices, err = j.Catalog.FamilyOfficesCount(gctx)
		return err
	})
	g.Go(func() (err error) {
		contacts, err = j.Catalog.ContactsCount(gctx)
		return err
	})
	g.Go(func() error {
		list, err := j.Catalog.CompanyNames(gctx)
		names = len(list)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("directory warmup", slog.Any("error", err))
		return err
	}

	logger.Info("completed directory warmup",
		slog.Int("family_offices", offices),
		slog.Int("contacts", contacts),
		slog.Int("company_names", names),
		slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *DirectoryWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDirectoryWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDirectoryWarmup))
}

func (j *DirectoryWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DirectoryWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
