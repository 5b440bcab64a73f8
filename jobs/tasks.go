package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep removes corrupt and expired session entries.
	TaskSessionSweep = "session:sweep"
)

// SessionSweepPayload scopes a sweep run. An empty pattern sweeps every
// session key.
type SessionSweepPayload struct {
	Pattern string `json:"pattern,omitempty"`
	DryRun  bool   `json:"dryRun,omitempty"`
}

// NewSessionSweepTask constructs an Asynq task.
func NewSessionSweepTask(payload SessionSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}
