package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPolicyDriftCheck compares role_permissions with the static policy.
	TaskPolicyDriftCheck = "rbac:drift_check"
)

// PolicyDriftPayload describes a drift check request. RequestedBy is zero for
// scheduled runs.
type PolicyDriftPayload struct {
	RequestedBy int64 `json:"requested_by,omitempty"`
}

// NewPolicyDriftTask constructs an Asynq task.
func NewPolicyDriftTask(payload PolicyDriftPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPolicyDriftCheck, data), nil
}
