package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	swept int
	limit int
	err   error
}

func (f *fakeSweeper) SweepExpired(_ context.Context, _ time.Time, limit int) (int, error) {
	f.limit = limit
	if f.err != nil {
		return 0, f.err
	}
	return f.swept, nil
}

func TestAssignmentSweepHandle(t *testing.T) {
	sweeper := &fakeSweeper{swept: 3}
	job := NewAssignmentSweepJob(sweeper, nil, nil)

	task, err := NewAssignmentSweepTask(50)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 50, sweeper.limit)
}

func TestAssignmentSweepDefaultsBatchSize(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := NewAssignmentSweepJob(sweeper, nil, nil)

	task, err := NewAssignmentSweepTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 500, sweeper.limit)
}

func TestAssignmentSweepPropagatesErrorsForRetry(t *testing.T) {
	boom := errors.New("db down")
	job := NewAssignmentSweepJob(&fakeSweeper{err: boom}, nil, nil)

	task, err := NewAssignmentSweepTask(10)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestAssignmentSweepSkipsRetryOnBadPayload(t *testing.T) {
	job := NewAssignmentSweepJob(&fakeSweeper{}, nil, nil)
	task := asynq.NewTask(TaskAssignmentSweep, []byte("{not json"))
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}
