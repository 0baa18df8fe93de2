package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTenantWelcome sends the onboarding message of a freshly provisioned tenant.
	TaskTenantWelcome = "tenant:welcome"
)

// TenantWelcomePayload identifies the tenant and owner to greet.
type TenantWelcomePayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
}

// NewTenantWelcomeTask constructs an Asynq task.
func NewTenantWelcomeTask(payload TenantWelcomePayload) (*asynq.Task, error) {
	if payload.TenantID == uuid.Nil || payload.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("jobs: welcome task needs tenant and owner")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTenantWelcome, data, asynq.MaxRetry(5)), nil
}
