package queue

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestEnqueueGenerateRoundTrip(t *testing.T) {
	t.Parallel()
	client := &fakeEnqueuer{}
	id, err := EnqueueGenerate(context.Background(), client, GeneratePayload{ClassGroupID: "g1", WeekStart: "2026-10-19"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)

	require.Len(t, client.tasks, 1)
	assert.Equal(t, GenerateTask, client.tasks[0].Type())
	payload, err := DecodeGenerate(client.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, "g1", payload.ClassGroupID)
	assert.Equal(t, "2026-10-19", payload.WeekStart)
}

func TestEnqueueScrapeDuplicate(t *testing.T) {
	t.Parallel()
	client := &fakeEnqueuer{err: asynq.ErrDuplicateTask}
	_, err := EnqueueScrape(context.Background(), client)
	assert.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestDecodeGenerateEmptyPayload(t *testing.T) {
	t.Parallel()
	payload, err := DecodeGenerate(asynq.NewTask(GenerateAllTask, nil))
	require.NoError(t, err)
	assert.Empty(t, payload.WeekStart)

	_, err = DecodeGenerate(asynq.NewTask(GenerateTask, []byte("{")))
	assert.Error(t, err)
}
