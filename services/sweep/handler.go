package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ishaamahadeva-India/pompomm/pkg/config"
	"github.com/ishaamahadeva-India/pompomm/pkg/errutil"
	"github.com/ishaamahadeva-India/pompomm/pkg/task"
	"github.com/ishaamahadeva-India/pompomm/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// A sweep is not queued twice within this window.
const uniqueTTL = 5 * time.Minute

type runner func(ctx context.Context) (*Job, error)

func (s *Service) runners() map[string]runner {
	return map[string]runner{
		taskname.SweepFraud:     s.Fraud,
		taskname.SweepCRS:       s.CRS,
		taskname.SweepEarnings:  s.Earnings,
		taskname.SweepTier:      s.Tier,
		taskname.SweepRetention: s.Retention,
	}
}

// HandleTask runs the sweep named by the task type. Asynq retries the task
// when the sweep as a whole failed.
func (s *Service) HandleTask(ctx context.Context, t *asynq.Task) error {
	run, ok := s.runners()[t.Type()]
	if !ok {
		return fmt.Errorf("unknown sweep %q: %w", t.Type(), asynq.SkipRetry)
	}
	_, err := run(ctx)
	return err
}

// RegisterHandlers binds every sweep task type on mux.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	for name := range s.runners() {
		mux.HandleFunc(name, s.HandleTask)
	}
}

// RegisterSchedule adds a periodic entry per configured cron spec. Empty
// specs disable the sweep.
func RegisterSchedule(scheduler *asynq.Scheduler, cfg *config.Config) error {
	specs := map[string]string{
		taskname.SweepFraud:     cfg.Schedule.FraudSweep,
		taskname.SweepCRS:       cfg.Schedule.CRSSweep,
		taskname.SweepEarnings:  cfg.Schedule.EarningsSweep,
		taskname.SweepTier:      cfg.Schedule.TierSweep,
		taskname.SweepRetention: cfg.Schedule.RetentionSweep,
	}
	for name, spec := range specs {
		if spec == "" {
			zap.L().Info("sweep schedule disabled", zap.String("task_type", name))
			continue
		}
		entryID, err := scheduler.Register(spec, asynq.NewTask(name, nil), asynq.Unique(uniqueTTL))
		if err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		zap.L().Info("sweep scheduled",
			zap.String("task_type", name),
			zap.String("cron", spec),
			zap.String("entry_id", entryID),
		)
	}
	return nil
}

// Trigger enqueues a sweep outside its schedule.
type Trigger struct {
	enqueuer task.Enqueuer
}

func NewTrigger(enqueuer task.Enqueuer) *Trigger {
	return &Trigger{enqueuer: enqueuer}
}

func (t *Trigger) Enqueue(ctx context.Context, name string) (string, error) {
	if !taskname.IsSweep(name) {
		return "", errutil.BadRequest("unknown sweep", nil,
			errutil.WithDetails(errutil.Detail{Field: "task", Message: name}))
	}
	info, err := t.enqueuer.Enqueue(ctx, asynq.NewTask(name, nil), asynq.Unique(uniqueTTL))
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return "", errutil.Conflict("sweep already queued", err)
		}
		return "", errutil.Internal("failed to enqueue sweep", err)
	}
	return info.ID, nil
}
