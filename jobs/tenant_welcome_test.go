package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/rentora/internal/notify"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
	"github.com/rentora/rentora/internal/tenancy"
	"github.com/rentora/rentora/internal/users"
)

type stubTenants struct {
	tenant   tenancy.Tenant
	inactive bool
	seen     reqctx.Principal
}

func (s *stubTenants) ValidateActive(ctx context.Context, id uuid.UUID) error {
	if _, err := reqctx.Get(ctx); err == nil {
		return errors.New("principal bound before validation")
	}
	if id != s.tenant.ID {
		return shared.ErrNotFound
	}
	if s.inactive {
		return fmt.Errorf("%w: suspended", shared.ErrTenantInactive)
	}
	return nil
}

func (s *stubTenants) GetTenant(ctx context.Context, id uuid.UUID) (tenancy.Tenant, error) {
	p, err := reqctx.Get(ctx)
	if err != nil {
		return tenancy.Tenant{}, err
	}
	s.seen = p
	return s.tenant, nil
}

type stubOwners map[uuid.UUID]users.User

func (s stubOwners) GetForSystem(ctx context.Context, id uuid.UUID) (users.User, error) {
	if p, err := reqctx.Get(ctx); err != nil || !p.System {
		return users.User{}, shared.ErrPermissionDenied
	}
	u, ok := s[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

type outbox struct{ sent []notify.Message }

func (o *outbox) Send(ctx context.Context, msg notify.Message) error {
	o.sent = append(o.sent, msg)
	return nil
}

func welcomeFixture() (*TenantWelcomeJob, *stubTenants, *outbox, TenantWelcomePayload) {
	tenantID, ownerID := uuid.New(), uuid.New()
	tenants := &stubTenants{tenant: tenancy.Tenant{ID: tenantID, Name: "Acme Rentals", Status: tenancy.StatusActive}}
	box := &outbox{}
	job := &TenantWelcomeJob{
		Tenants:  tenants,
		Owners:   stubOwners{ownerID: {ID: ownerID, TenantID: tenantID, Name: "Olivia", Email: "owner@acme.test"}},
		Notifier: box,
	}
	return job, tenants, box, TenantWelcomePayload{TenantID: tenantID, OwnerID: ownerID}
}

func TestTenantWelcomeSendsAsSystemPrincipal(t *testing.T) {
	job, tenants, box, payload := welcomeFixture()
	task, err := NewTenantWelcomeTask(payload)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, box.sent, 1)
	assert.Equal(t, "owner@acme.test", box.sent[0].To)
	assert.Contains(t, box.sent[0].Subject, "Acme Rentals")
	assert.True(t, tenants.seen.System)
	assert.Equal(t, payload.TenantID, tenants.seen.TenantID)
}

func TestTenantWelcomeSkipsInactiveTenant(t *testing.T) {
	job, tenants, box, payload := welcomeFixture()
	tenants.inactive = true
	task, err := NewTenantWelcomeTask(payload)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Empty(t, box.sent)
}

func TestTenantWelcomeRejectsBadPayloads(t *testing.T) {
	job, _, box, payload := welcomeFixture()

	err := job.Handle(context.Background(), asynq.NewTask(TaskTenantWelcome, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	data, _ := json.Marshal(TenantWelcomePayload{TenantID: payload.TenantID})
	err = job.Handle(context.Background(), asynq.NewTask(TaskTenantWelcome, data))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	data, _ = json.Marshal(TenantWelcomePayload{TenantID: payload.TenantID, OwnerID: uuid.New()})
	err = job.Handle(context.Background(), asynq.NewTask(TaskTenantWelcome, data))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, box.sent)
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestClientEnqueuesWelcome(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := &Client{client: rec}
	tenantID, ownerID := uuid.New(), uuid.New()

	require.NoError(t, client.EnqueueTenantWelcome(context.Background(), tenantID, ownerID))
	require.Len(t, rec.tasks, 1)
	assert.Equal(t, TaskTenantWelcome, rec.tasks[0].Type())

	var payload TenantWelcomePayload
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &payload))
	assert.Equal(t, TenantWelcomePayload{TenantID: tenantID, OwnerID: ownerID}, payload)

	assert.Error(t, client.EnqueueTenantWelcome(context.Background(), uuid.Nil, ownerID))
}

func TestNewWorkerRejectsAnonymousHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Handler: func(context.Context, *asynq.Task) error { return nil }}},
	})
	assert.Error(t, err)
}
