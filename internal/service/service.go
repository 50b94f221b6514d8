// Package service assembles the watch and trigger pipeline:
//
//	watcher ─┐
//	         ├─> signal bus ─> dispatcher (debounce) ─> capturer ─> outcome bus, sink
//	gate ────┘
//
// Both producers publish on the same bus, so the dispatcher is the single point where
// cooldown is enforced.
package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"shotwatch/internal/buffer"
	"shotwatch/internal/capability"
	"shotwatch/internal/capture"
	"shotwatch/internal/event"
	"shotwatch/internal/gate"
	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"
	"shotwatch/internal/trigger"
	"shotwatch/internal/watcher"
	"shotwatch/internal/watchpath"
)

const (
	signalBusName  = "signals"
	outcomeBusName = "outcomes"

	signalBufferSize  = 256
	outcomeBufferSize = 64
	outcomeHistory    = 32
	maxOutcomeStreams = 16

	defaultRetryInitial = 100 * time.Millisecond
	defaultRetryMax     = 2 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("service already started")
	ErrNotStarted     = errors.New("service not started")
	// ErrTierFixed is returned by RaiseTier unless the capability is a *capability.Level.
	ErrTierFixed = errors.New("capability tier cannot be raised")
)

type Options struct {
	Layout     watchpath.Layout
	Capability capability.Descriptor
	Backend    capture.Backend
	Display    int
	// CaptureTimeout bounds each backend call. Zero waits forever.
	CaptureTimeout time.Duration
	// Cooldown defaults to trigger.DefaultCooldown when zero.
	Cooldown time.Duration
	Sink     Sink
	Logger   *logging.Logger
	Registry *metrics.Registry
	Now      func() time.Time

	RetryInitial time.Duration
	RetryMax     time.Duration
}

type Service struct {
	options    Options
	logger     *logging.Logger
	now        func() time.Time
	gate       *gate.Gate
	capturer   *capture.Capturer
	dispatcher *trigger.Dispatcher
	watcher    *watcher.Watcher
	history    *buffer.Ring[capture.Outcome]

	mu       sync.Mutex
	started  bool
	stopped  bool
	target   watchpath.Target
	runCtx   context.Context
	cancel   context.CancelFunc
	signals  *event.Bus[trigger.Signal]
	outcomes *event.Bus[capture.Outcome]
	workers  sync.WaitGroup
	retrying bool
}

func New(options Options) *Service {
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.Cooldown == 0 {
		options.Cooldown = trigger.DefaultCooldown
	}
	if options.RetryInitial <= 0 {
		options.RetryInitial = defaultRetryInitial
	}
	if options.RetryMax < options.RetryInitial {
		options.RetryMax = defaultRetryMax
	}
	if options.Layout == (watchpath.Layout{}) {
		options.Layout = watchpath.DefaultLayout()
	}

	s := &Service{
		options: options,
		logger:  options.Logger.Component("service"),
		now:     options.Now,
		history: buffer.NewRing[capture.Outcome](outcomeHistory),
	}
	s.gate = gate.New(gate.Options{
		Logger:   options.Logger.Component("gate"),
		Registry: options.Registry,
		Now:      options.Now,
	})
	s.capturer = capture.New(capture.Options{
		Backend:    options.Backend,
		Capability: options.Capability,
		Display:    options.Display,
		Timeout:    options.CaptureTimeout,
		Logger:     options.Logger,
		Registry:   options.Registry,
		Now:        options.Now,
	})
	s.dispatcher = trigger.NewDispatcher(trigger.DispatcherOptions{
		Debouncer: trigger.NewDebouncer(options.Cooldown),
		Fire:      s.fire,
		Logger:    options.Logger.Component("trigger"),
		Registry:  options.Registry,
		Now:       options.Now,
	})
	s.watcher = watcher.New(watcher.Options{
		Logger:       options.Logger,
		Registry:     options.Registry,
		OnTargetGone: s.restartWatch,
	})
	return s
}

// Start resolves the watch target for the current capability tier and begins
// consuming signals. A missing directory is not fatal: the watch is retried with
// backoff until it appears or the service stops.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.cancel = cancel
	s.started = true
	s.target = s.options.Layout.Resolve(s.tier())
	s.signals = event.NewBus[trigger.Signal](runCtx, event.BusOptions{
		Name:                 signalBusName,
		SubscriberBufferSize: signalBufferSize,
		Registry:             s.options.Registry,
		Logger:               s.logger,
	})
	s.outcomes = event.NewBus[capture.Outcome](runCtx, event.BusOptions{
		Name:                 outcomeBusName,
		SubscriberBufferSize: outcomeBufferSize,
		MaxSubscribers:       maxOutcomeStreams,
		Registry:             s.options.Registry,
		Logger:               s.logger,
	})

	signals, unsubscribe := s.signals.Subscribe()
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer unsubscribe()
		s.dispatcher.Run(runCtx, signals)
	}()

	s.logger.Info("service starting", map[string]string{
		"tier":        strconv.Itoa(int(s.tier())),
		"path":        s.target.Path,
		"cooldown_ms": strconv.FormatInt(s.options.Cooldown.Milliseconds(), 10),
	})
	if err := s.watcher.Start(s.target, s.onCreate); err != nil {
		s.logger.Warn("watch failed, retrying", map[string]string{
			"path":  s.target.Path,
			"error": err.Error(),
		})
		s.startRetryLocked(runCtx)
	}
	return nil
}

// Stop releases the watch, stops dispatching and waits for in-flight captures
// until ctx is done. It is safe to call more than once and before Start.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	signals := s.signals
	outcomes := s.outcomes
	s.mu.Unlock()

	// Retry loops and the dispatcher exit on cancel; the watcher is stopped after
	// them so a retry cannot restart it behind our back.
	cancel()
	s.workers.Wait()
	var errs []error
	if err := s.watcher.Stop(); err != nil {
		errs = append(errs, err)
	}
	signals.Close()
	if err := s.capturer.Wait(ctx); err != nil {
		errs = append(errs, err)
	}
	outcomes.Close()

	s.logger.Info("service stopped", nil)
	return errors.Join(errs...)
}

// HandleNotification passes an environment notification through the gate and
// publishes a trigger signal when it qualifies.
func (s *Service) HandleNotification(notification gate.Notification) bool {
	signal, ok := s.gate.Filter(notification)
	if !ok {
		return false
	}
	return s.publish(signal)
}

// Outcomes subscribes to capture outcomes. The channel closes when the service stops.
func (s *Service) Outcomes() (<-chan capture.Outcome, func(), error) {
	s.mu.Lock()
	outcomes := s.outcomes
	s.mu.Unlock()
	if outcomes == nil {
		return nil, nil, ErrNotStarted
	}
	ch, cancel := outcomes.Subscribe()
	return ch, cancel, nil
}

// RecentOutcomes returns the latest outcomes, oldest first.
func (s *Service) RecentOutcomes() []capture.Outcome {
	return s.history.List()
}

func (s *Service) Target() watchpath.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *Service) onCreate(fileName string) {
	s.publish(trigger.NewSignal(trigger.SourceFilesystem, s.now(), fileName))
}

func (s *Service) publish(signal trigger.Signal) bool {
	s.mu.Lock()
	bus := s.signals
	live := s.started && !s.stopped
	s.mu.Unlock()
	if !live || bus == nil {
		return false
	}
	bus.Publish(signal)
	return true
}

func (s *Service) fire(trigger.Signal) {
	s.capturer.Capture(context.Background(), s.deliver)
}

func (s *Service) deliver(outcome capture.Outcome) {
	s.history.Add(outcome)
	s.mu.Lock()
	outcomes := s.outcomes
	s.mu.Unlock()
	if outcomes != nil {
		outcomes.Publish(outcome)
	}
	if s.options.Sink != nil {
		s.options.Sink.Deliver(context.Background(), outcome)
	}
}

// RaiseTier lifts the capability tier used by later captures. Lower tiers are
// ignored. The watch target was resolved at Start and does not move.
func (s *Service) RaiseTier(tier capability.Tier) (bool, error) {
	level, ok := s.options.Capability.(*capability.Level)
	if !ok {
		return false, ErrTierFixed
	}
	raised := level.Raise(tier)
	if raised {
		s.logger.Info("capability tier raised", map[string]string{
			"tier": strconv.Itoa(int(tier)),
		})
	}
	return raised, nil
}

func (s *Service) tier() capability.Tier {
	if s.options.Capability == nil {
		return 0
	}
	return s.options.Capability.Tier()
}
