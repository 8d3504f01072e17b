package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCacheBumpIncrementsVersion(t *testing.T) {
	mr := miniredis.RunT(t)

	out, err := run(t, "--redis", mr.Addr(), "cache", "version")
	require.NoError(t, err)
	assert.Equal(t, "cache version 1\n", out)

	out, err = run(t, "--redis", mr.Addr(), "--json", "cache", "bump")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":2}`, out)
}

func TestCacheFailsWithoutRedis(t *testing.T) {
	_, err := run(t, "--redis", "127.0.0.1:1", "cache", "version")
	assert.Error(t, err)
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (s stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, asynq.ErrQueueNotFound
}

func (stubInspector) Close() error { return nil }

func TestInspectQueuesTreatsMissingQueueAsEmpty(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{infos: map[string]*asynq.QueueInfo{
		"enrichment": {Queue: "enrichment", Pending: 3, Retry: 1},
	}}}
	queues, err := c.InspectQueues()
	require.NoError(t, err)
	require.Len(t, queues, 2)
	assert.Equal(t, QueueStats{Queue: "enrichment", Pending: 3, Retry: 1}, queues[0])
	assert.Equal(t, QueueStats{Queue: "default"}, queues[1])

	buf := new(bytes.Buffer)
	require.NoError(t, printQueues(buf, queues))
	assert.Contains(t, buf.String(), "QUEUE")
	assert.Contains(t, buf.String(), "enrichment")

	tasks, err := c.ListScheduled(0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestInspectQueuesPropagatesErrors(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{err: errors.New("redis down")}}
	_, err := c.InspectQueues()
	assert.ErrorContains(t, err, "redis down")
}
