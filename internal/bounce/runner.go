package bounce

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/listkeeper/internal/pkg/distlock"
	"github.com/ignite/listkeeper/internal/pkg/logger"
)

// Runner drives the periodic escalation pass. Every tick it takes the
// distributed lock, sweeps expired pending actions, and escalates disabled
// members; instances that lose the lock race skip the tick.
type Runner struct {
	processor *Processor
	lock      distlock.DistLock
	interval  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewRunner(processor *Processor, lock distlock.DistLock, interval time.Duration) *Runner {
	if interval == 0 {
		interval = 24 * time.Hour
	}
	return &Runner{
		processor: processor,
		lock:      lock,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the tick loop. It returns immediately.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		logger.Info("bounce runner started", "interval", r.interval.String())
		for {
			select {
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Runner) tick(ctx context.Context) {
	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		logger.Error("bounce runner lock error", "error", err.Error())
		return
	}
	if !acquired {
		logger.Debug("bounce runner tick skipped, lock held elsewhere")
		return
	}
	defer func() {
		if err := r.lock.Release(ctx); err != nil {
			logger.Error("bounce runner lock release error", "error", err.Error())
		}
	}()

	if err := r.processor.Sweep(ctx); err != nil {
		logger.Error("pending sweep failed", "error", err.Error())
	}
	if err := r.processor.Escalate(ctx); err != nil {
		logger.Error("escalation pass failed", "error", err.Error())
	}
}
