// Package capture runs the downstream screen capture for an accepted trigger.
//
// Capture returns immediately and reports exactly one Outcome through its
// callback. Calls below the screen-capture tier fail with CodeUnsupported before
// Capture returns and never reach the backend. Backend failures are reported with
// their code unchanged and are never retried.
package capture

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"shotwatch/internal/capability"
	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const spanNameCapture = "capture.request"

// Backend takes one screenshot of display. It may block; the Capturer always calls it
// off the caller's goroutine.
type Backend interface {
	Capture(ctx context.Context, display int) (Buffer, error)
}

// BackendFunc adapts a function to a Backend.
type BackendFunc func(ctx context.Context, display int) (Buffer, error)

func (f BackendFunc) Capture(ctx context.Context, display int) (Buffer, error) {
	return f(ctx, display)
}

type Options struct {
	Backend    Backend
	Capability capability.Descriptor
	Display    int
	// Timeout bounds the wait for the backend. Zero waits forever.
	Timeout  time.Duration
	Logger   *logging.Logger
	Registry *metrics.Registry
	Now      func() time.Time
}

type Capturer struct {
	backend    Backend
	capability capability.Descriptor
	display    int
	timeout    time.Duration
	logger     *logging.Logger
	registry   *metrics.Registry
	now        func() time.Time

	state    atomic.Int32
	inFlight atomic.Int32
	wg       sync.WaitGroup
}

func New(options Options) *Capturer {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Capturer{
		backend:    options.Backend,
		capability: options.Capability,
		display:    options.Display,
		timeout:    options.Timeout,
		logger:     options.Logger.Component("capture"),
		registry:   options.Registry,
		now:        now,
	}
}

// Capture requests a screenshot and reports the outcome to done exactly once.
// Requests are not queued: overlapping calls run independently.
func (c *Capturer) Capture(ctx context.Context, done func(Outcome)) {
	if ctx == nil {
		ctx = context.Background()
	}
	requestedAt := c.now()

	if !capability.AtLeast(c.capability, capability.TierScreenCapture) || c.backend == nil {
		c.state.Store(int32(StateUnsupported))
		outcome := Failure(CodeUnsupported)
		outcome.RequestedAt = requestedAt
		outcome.CompletedAt = requestedAt
		c.logger.Warn("screen capture unsupported", map[string]string{
			"tier": strconv.Itoa(int(c.tier())),
		})
		c.report(outcome, done)
		return
	}

	c.state.Store(int32(StateRequested))
	c.inFlight.Add(1)
	c.wg.Add(1)

	// An accepted capture is not cancelled with the caller's context.
	detached := context.WithoutCancel(ctx)
	spanCtx, span := otelapi.Tracer("shotwatch/capture").Start(detached, spanNameCapture,
		trace.WithAttributes(
			attribute.Int("capture.display", c.display),
			attribute.Int("capability.tier", int(c.tier())),
		),
	)

	go func() {
		defer c.wg.Done()
		defer c.inFlight.Add(-1)

		buffer, err := c.await(spanCtx)
		outcome := c.complete(buffer, err)
		outcome.RequestedAt = requestedAt
		outcome.CompletedAt = c.now()

		span.SetAttributes(
			attribute.String("capture.outcome", outcome.Kind.String()),
			attribute.String("capture.detail", outcome.Detail()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome.Detail())
		}
		span.End()

		c.report(outcome, done)
	}()
}

// await runs the backend with ctx, which is never cancelled. The timeout only
// bounds how long the outcome waits; a capture that overruns it still runs to
// completion and is tracked by Wait.
func (c *Capturer) await(ctx context.Context) (Buffer, error) {
	if c.timeout <= 0 {
		return c.backend.Capture(ctx, c.display)
	}

	type result struct {
		buffer Buffer
		err    error
	}
	results := make(chan result, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		buffer, err := c.backend.Capture(ctx, c.display)
		results <- result{buffer: buffer, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case res := <-results:
		return res.buffer, res.err
	case <-timer.C:
		return Buffer{}, &CodeError{Code: CodeTimedOut, Err: context.DeadlineExceeded}
	}
}

func (c *Capturer) complete(buffer Buffer, err error) Outcome {
	if err != nil {
		c.state.Store(int32(StateFailed))
		code := CodeOf(err)
		c.logger.Error("screenshot failed", map[string]string{
			"code":  strconv.Itoa(code),
			"error": err.Error(),
		})
		return Failure(code)
	}

	c.state.Store(int32(StateSucceeded))
	if !capability.AtLeast(c.capability, capability.TierArtifactDecode) {
		c.logger.Info("captured screen without decoding", map[string]string{
			"bytes": strconv.Itoa(len(buffer.Data)),
		})
		return Success(false)
	}

	img, format, decodeErr := image.Decode(bytes.NewReader(buffer.Data))
	if decodeErr != nil {
		c.logger.Warn("captured frame is not a usable image", map[string]string{
			"bytes": strconv.Itoa(len(buffer.Data)),
			"error": decodeErr.Error(),
		})
		return Success(false)
	}
	if buffer.Format == "" {
		buffer.Format = format
	}

	outcome := Success(true)
	outcome.Artifact = &Artifact{
		Buffer:     buffer,
		Image:      img,
		Display:    c.display,
		CapturedAt: c.now(),
	}
	c.logger.Info("captured screen bitmap", map[string]string{
		"format": format,
		"width":  strconv.Itoa(img.Bounds().Dx()),
		"height": strconv.Itoa(img.Bounds().Dy()),
	})
	return outcome
}

func (c *Capturer) report(outcome Outcome, done func(Outcome)) {
	c.registry.RecordCapture(outcome.Kind.String(), outcome.Detail(), outcome.Duration())
	if done != nil {
		done(outcome)
	}
}

func (c *Capturer) tier() capability.Tier {
	if c.capability == nil {
		return 0
	}
	return c.capability.Tier()
}

// State reports the most recent transition of the capture state machine.
func (c *Capturer) State() State {
	return State(c.state.Load())
}

// InFlight reports how many captures are waiting on the backend.
func (c *Capturer) InFlight() int {
	return int(c.inFlight.Load())
}

// Wait blocks until in-flight captures report or ctx is done.
func (c *Capturer) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
