package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/rentora/rentora/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisConnOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance. Every handler must name a type.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, errors.New("worker: handler without type")
		}
		mux.HandleFunc(h.Type, h.Handler)
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueDefault: 1},
	})

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits jobs to the queue.
type Client struct {
	client taskEnqueuer
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueTenantWelcome schedules the welcome message of a new tenant owner.
func (c *Client) EnqueueTenantWelcome(ctx context.Context, tenantID, ownerID uuid.UUID) error {
	task, err := NewTenantWelcomeTask(TenantWelcomePayload{TenantID: tenantID, OwnerID: ownerID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector queueInspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	h := &Handler{logger: logger}
	if inspector != nil {
		h.inspector = inspector
	}
	return h
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"queue": QueueDefault, "pending": 0}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.WarnContext(r.Context(), "jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue unavailable")
		return
	}
	if info != nil {
		out["queue"], out["pending"], out["active"], out["retry"] = info.Queue, info.Pending, info.Active, info.Retry
	}
	httpx.JSON(w, http.StatusOK, out)
}
