package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/enrichment"
	jobmetrics "github.com/altss/altss/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BulkProcessor runs a queued bulk enrichment request.
type BulkProcessor interface {
	ProcessBulk(ctx context.Context, req enrichment.BulkRequest) (enrichment.BulkResult, error)
}

// EnrichBulkJob handles TaskEnrichBulk.
type EnrichBulkJob struct {
	Service BulkProcessor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewEnrichBulkJob wires dependencies for the bulk enrichment handler.
func NewEnrichBulkJob(service BulkProcessor, logger *slog.Logger, metrics *jobmetrics.Metrics) *EnrichBulkJob {
	return &EnrichBulkJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle processes bulk enrichment tasks. An expired user token cannot be
// recovered by retrying, so it skips retries.
func (j *EnrichBulkJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("enrich bulk: handler not configured")
	}
	var req enrichment.BulkRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskEnrichBulk)
	logger := j.logger().With(slog.String("user_id", req.UserID), slog.Int("contacts", len(req.ContactIDs)))

	res, err := j.Service.ProcessBulk(ctx, req)
	j.metrics().AddEnriched(jobmetrics.OutcomeEnriched, res.Enriched)
	j.metrics().AddEnriched(jobmetrics.OutcomeFailed, res.Failed)
	if errors.Is(err, backend.ErrUnauthorized) {
		logger.Warn("bulk enrichment token rejected")
		return tracker.End(fmt.Errorf("%w: %w", err, asynq.SkipRetry))
	}
	if err != nil {
		logger.Error("bulk enrichment", slog.Any("error", err))
		return tracker.End(err)
	}
	if res.Limit != nil {
		j.metrics().AddEnriched(jobmetrics.OutcomeLimited, 1)
		logger.Info("bulk enrichment stopped at limit", slog.String("limit", string(res.Limit.Type)), slog.Int("enriched", res.Enriched))
		return tracker.End(nil)
	}
	logger.Info("bulk enrichment completed", slog.Int("enriched", res.Enriched), slog.Int("failed", res.Failed))
	return tracker.End(nil)
}

func (j *EnrichBulkJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskEnrichBulk))
	}
	return slog.Default().With(slog.String("job", TaskEnrichBulk))
}

func (j *EnrichBulkJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
