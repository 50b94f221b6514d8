package service

import (
	"context"

	"shotwatch/internal/capture"
)

// Sink receives every capture outcome. Deliver runs on the capture goroutine, or on
// the dispatch goroutine for outcomes that never reached the backend, so it should
// hand work off rather than block.
type Sink interface {
	Deliver(ctx context.Context, outcome capture.Outcome)
}

type SinkFunc func(ctx context.Context, outcome capture.Outcome)

func (f SinkFunc) Deliver(ctx context.Context, outcome capture.Outcome) {
	f(ctx, outcome)
}
