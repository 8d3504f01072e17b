package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/altss/altss/jobs"
)

type warmupEnqueuer interface {
	EnqueueDirectoryWarmup(ctx context.Context, reason string) error
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for queued jobs.
type JobsCLI struct {
	client    warmupEnqueuer
	inspector queueInspector
}

// NewJobsCLI initialises the helpers for the redis at addr.
func NewJobsCLI(addr string) (*JobsCLI, error) {
	redisOpt, err := jobs.RedisOpt(addr)
	if err != nil {
		return nil, err
	}
	client, err := jobs.NewClient(redisOpt)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(redisOpt)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// QueueStats summarises one queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueues reports the enrichment and default queues. Queues that were
// never used report zeros.
func (c *JobsCLI) InspectQueues() ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, name := range []string{jobs.QueueEnrichment, jobs.QueueDefault} {
		stats := QueueStats{Queue: name}
		info, err := c.inspector.GetQueueInfo(name)
		switch {
		case errors.Is(err, asynq.ErrQueueNotFound):
		case err != nil:
			return nil, fmt.Errorf("inspect %s: %w", name, err)
		case info != nil:
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
		}
		out = append(out, stats)
	}
	return out, nil
}

// ScheduledTask is one task waiting in the default queue.
type ScheduledTask struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	NextRunAt string `json:"next_run_at"`
}

// ListScheduled returns up to size scheduled tasks.
func (c *JobsCLI) ListScheduled(size int) ([]ScheduledTask, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	infos, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, err
	}
	out := make([]ScheduledTask, 0, len(infos))
	for _, info := range infos {
		out = append(out, ScheduledTask{ID: info.ID, Type: info.Type, NextRunAt: info.NextProcessAt.UTC().Format("2006-01-02 15:04:05")})
	}
	return out, nil
}

func newJobsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect and trigger background jobs"}

	var reason string
	warmup := &cobra.Command{
		Use:   "warmup",
		Short: "Queue a directory cache warmup",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewJobsCLI(opts.redisAddr)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.client.EnqueueDirectoryWarmup(cmd.Context(), reason); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "warmup queued")
			return nil
		},
	}
	warmup.Flags().StringVar(&reason, "reason", "manual", "reason recorded with the task")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewJobsCLI(opts.redisAddr)
			if err != nil {
				return err
			}
			defer c.Close()
			queues, err := c.InspectQueues()
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), queues)
			}
			return printQueues(cmd.OutOrStdout(), queues)
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewJobsCLI(opts.redisAddr)
			if err != nil {
				return err
			}
			defer c.Close()
			tasks, err := c.ListScheduled(size)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tasks)
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "number of tasks to list")

	cmd.AddCommand(warmup, stats, scheduled)
	return cmd
}

func printQueues(w io.Writer, queues []QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	for _, q := range queues {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", q.Queue, q.Pending, q.Active, q.Scheduled, q.Retry, q.Archived)
	}
	return tw.Flush()
}
