package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/altss/altss/internal/enrichment"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueEnrichment holds user-initiated enrichment work.
	QueueEnrichment = "enrichment"

	// TaskEnrichBulk enriches a batch of contacts for one user.
	TaskEnrichBulk = "enrichment:bulk"
	// TaskDirectoryWarmup refreshes cached directory aggregates.
	TaskDirectoryWarmup = "directory:warmup"
)

// bulkRetention keeps finished bulk tasks visible so a second submission with
// the same key is rejected by the queue as well.
const bulkRetention = 24 * time.Hour

// DirectoryWarmupPayload configures a warmup run.
type DirectoryWarmupPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewEnrichBulkTask constructs the asynq task for req.
func NewEnrichBulkTask(req enrichment.BulkRequest) (*asynq.Task, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueEnrichment), asynq.MaxRetry(3), asynq.Retention(bulkRetention)}
	if req.Key != "" {
		opts = append(opts, asynq.TaskID(req.Key))
	}
	return asynq.NewTask(TaskEnrichBulk, data, opts...), nil
}

// NewDirectoryWarmupTask constructs a warmup task.
func NewDirectoryWarmupTask(payload DirectoryWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDirectoryWarmup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
