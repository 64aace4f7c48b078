// Package scheduler runs periodic jobs on cron specs with a seconds field.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/swipe-markets/backend/internal/logger"
)

var log = logger.Named("scheduler")

type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context

	mu      sync.Mutex
	running map[string]bool
}

func New(baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		baseCtx: baseCtx,
		running: make(map[string]bool),
	}
}

// Add registers job under name. A run is skipped while the previous one is
// still in progress, and a panic inside job is logged instead of killing the process.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		if !r.begin(name) {
			log.Warn("%s still running, skipping tick", name)
			return
		}
		defer r.end(name)
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("%s panicked: %v", name, rec)
			}
		}()
		job(r.baseCtx)
	})
	if err != nil {
		return 0, fmt.Errorf("invalid cron spec %q for %s: %w", spec, name, err)
	}
	return id, nil
}

func (r *Runner) begin(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[name] {
		return false
	}
	r.running[name] = true
	return true
}

func (r *Runner) end(name string) {
	r.mu.Lock()
	delete(r.running, name)
	r.mu.Unlock()
}

func (r *Runner) Start() {
	log.Info("cron started")
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Info("cron stopped")
}
