package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aurora-ops/aurora-ops/internal/observability"
)

// Sweeper deactivates expired role assignments.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// AssignmentSweepJob runs the periodic expiry sweep. The resolver already
// ignores expired grants, so the sweep is hygiene, not correctness: it keeps
// listings and the store in line with what the gate enforces.
type AssignmentSweepJob struct {
	sweeper Sweeper
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAssignmentSweepJob constructs the job.
func NewAssignmentSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *observability.Metrics) *AssignmentSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssignmentSweepJob{sweeper: sweeper, logger: logger, metrics: metrics}
}

// Handle processes TaskAssignmentSweep tasks.
func (j *AssignmentSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AssignmentSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger.Error("assignment sweep payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	batch := payload.BatchSize
	if batch <= 0 {
		batch = 500
	}

	swept, err := j.sweeper.SweepExpired(ctx, time.Now(), batch)
	if err != nil {
		j.metrics.Job(TaskAssignmentSweep, "error")
		j.logger.Error("assignment sweep", slog.Any("error", err))
		return err
	}
	j.metrics.Job(TaskAssignmentSweep, "ok")
	j.logger.Info("assignment sweep complete",
		slog.String("job", TaskAssignmentSweep),
		slog.Int("swept", swept))
	return nil
}
