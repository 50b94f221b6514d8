package trigger

import (
	"context"
	"strconv"
	"time"

	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"
)

type DispatcherOptions struct {
	Debouncer *Debouncer
	// Fire runs for every accepted signal. It must not block.
	Fire     func(Signal)
	Logger   *logging.Logger
	Registry *metrics.Registry
	// Now stamps the arrival of each signal. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher drains signals from every source, gates them through one Debouncer
// and fires the accepted ones. Arrival is stamped by the dispatcher's clock when a
// signal is offered, so gating follows the order signals are drained and a
// producer's own timestamp never reaches the Debouncer.
type Dispatcher struct {
	debouncer *Debouncer
	fire      func(Signal)
	logger    *logging.Logger
	registry  *metrics.Registry
	now       func() time.Time
}

func NewDispatcher(options DispatcherOptions) *Dispatcher {
	debouncer := options.Debouncer
	if debouncer == nil {
		debouncer = NewDebouncer(DefaultCooldown)
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		now:       now,
		debouncer: debouncer,
		fire:      options.Fire,
		logger:    options.Logger,
		registry:  options.Registry,
	}
}

// Offer gates a single signal and reports whether it fired.
func (d *Dispatcher) Offer(signal Signal) bool {
	arrived := d.now().UnixMilli()
	accepted := d.debouncer.Accept(signal, arrived)
	d.registry.IncTrigger(string(signal.Source), accepted)
	if !accepted {
		d.logger.Debug("trigger suppressed by cooldown", map[string]string{
			"source": string(signal.Source),
			"detail": signal.Detail,
		})
		return false
	}
	d.logger.Info("trigger accepted", map[string]string{
		"source":    string(signal.Source),
		"detail":    signal.Detail,
		"at_millis": strconv.FormatInt(arrived, 10),
	})
	if d.fire != nil {
		d.fire(signal)
	}
	return true
}

// Run offers every signal from signals until the channel closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, signals <-chan Signal) {
	for {
		select {
		case signal, ok := <-signals:
			if !ok {
				return
			}
			d.Offer(signal)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) Debouncer() *Debouncer {
	return d.debouncer
}
