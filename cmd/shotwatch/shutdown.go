package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"shotwatch/internal/logging"
)

type shutdownStep struct {
	name string
	stop func(context.Context) error
}

// shutdownPlan stops registered steps in order. It executes at most once and
// a failing step does not prevent the following ones.
type shutdownPlan struct {
	logger   *logging.Logger
	steps    []shutdownStep
	executed atomic.Bool
}

func newShutdownPlan(logger *logging.Logger) *shutdownPlan {
	return &shutdownPlan{logger: logger.Component("shutdown")}
}

func (p *shutdownPlan) then(name string, stop func(context.Context) error) {
	if stop != nil {
		p.steps = append(p.steps, shutdownStep{name: name, stop: stop})
	}
}

func (p *shutdownPlan) execute(ctx context.Context) error {
	if !p.executed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, step := range p.steps {
		started := time.Now()
		err := step.stop(ctx)
		fields := map[string]string{
			"step":        step.name,
			"duration_ms": strconv.FormatInt(time.Since(started).Milliseconds(), 10),
		}
		if err != nil {
			fields["error"] = err.Error()
			p.logger.Warn("shutdown step failed", fields)
			errs = append(errs, err)
			continue
		}
		p.logger.Info("shutdown step done", fields)
	}
	return errors.Join(errs...)
}

// cancelOnSignal calls cancel for the first signal received on signals. Later
// signals are only logged. The returned func stops listening.
func cancelOnSignal(logger *logging.Logger, cancel context.CancelFunc, signals <-chan os.Signal) func() {
	if signals == nil {
		return func() {}
	}
	quit := make(chan struct{})
	var cancelOnce sync.Once

	go func() {
		for {
			var sig os.Signal
			var open bool
			select {
			case <-quit:
				return
			case sig, open = <-signals:
			}
			if !open {
				return
			}
			name := "unknown"
			if sig != nil {
				name = sig.String()
			}
			first := false
			cancelOnce.Do(func() {
				first = true
				logger.Info("shutdown signal received", map[string]string{"signal": name})
				if cancel != nil {
					cancel()
				}
			})
			if !first {
				logger.Debug("shutdown in progress, signal ignored", map[string]string{"signal": name})
			}
		}
	}()

	var quitOnce sync.Once
	return func() {
		quitOnce.Do(func() { close(quit) })
	}
}
