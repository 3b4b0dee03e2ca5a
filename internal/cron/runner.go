package cronrunner

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner wraps the cron scheduler with a shared base context and exchange
// timezone, so schedules like "0 25 15 * * MON-FRI" fire on exchange time
// regardless of the host clock.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context, loc *time.Location) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		if r == nil || r.baseCtx == nil {
			job(context.Background())
			return
		}
		job(r.baseCtx)
	})
}

// AddExclusive schedules a job that never overlaps itself: a firing that
// arrives while the previous run is still going is skipped, not queued.
func (r *Runner) AddExclusive(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	var mu sync.Mutex
	return r.Add(spec, func(ctx context.Context) {
		if !mu.TryLock() {
			if r.logger != nil {
				r.logger.Warn("cron tick skipped, previous run still active",
					zap.String("job", name))
			}
			return
		}
		defer mu.Unlock()
		job(ctx)
	})
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
