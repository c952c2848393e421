// Package jobs hosts the asynq worker, queue client and background task
// definitions.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAssignmentSweep deactivates role assignments whose expiry passed.
	TaskAssignmentSweep = "authz:assignment_sweep"
)

// AssignmentSweepPayload bounds one sweep run.
type AssignmentSweepPayload struct {
	BatchSize int `json:"batch_size"`
}

// NewAssignmentSweepTask constructs the sweep task.
func NewAssignmentSweepTask(batchSize int) (*asynq.Task, error) {
	data, err := json.Marshal(AssignmentSweepPayload{BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignmentSweep, data), nil
}
