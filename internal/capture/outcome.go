package capture

import (
	"image"
	"strconv"
	"time"
)

// Failure codes that do not come from the capture backend.
const (
	CodeUnsupported = -1
	CodeTimedOut    = -2
)

// Failure codes reported by the platform screenshot service. They are surfaced verbatim.
const (
	ErrorInternal            = 1
	ErrorNoAccessibilityPerm = 2
	ErrorIntervalTooShort    = 3
	ErrorInvalidDisplay      = 4
	ErrorInvalidWindow       = 5
	ErrorSecureWindow        = 6
)

const (
	EventTypeSucceeded = "capture_succeeded"
	EventTypeFailed    = "capture_failed"
)

type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
)

func (k Kind) String() string {
	if k == KindFailure {
		return "failure"
	}
	return "success"
}

// Buffer is the raw frame handed back by a backend.
type Buffer struct {
	Data   []byte
	Format string
}

// Artifact is a decoded capture, ready to be handed to a sink.
type Artifact struct {
	Buffer     Buffer
	Image      image.Image
	Display    int
	CapturedAt time.Time
}

// Outcome is either Success(artifactPresent) or Failure(code).
type Outcome struct {
	Kind            Kind
	ArtifactPresent bool
	Code            int
	Artifact        *Artifact
	RequestedAt     time.Time
	CompletedAt     time.Time
}

func Success(artifactPresent bool) Outcome {
	return Outcome{Kind: KindSuccess, ArtifactPresent: artifactPresent}
}

func Failure(code int) Outcome {
	return Outcome{Kind: KindFailure, Code: code}
}

func (o Outcome) Succeeded() bool {
	return o.Kind == KindSuccess
}

func (o Outcome) Type() string {
	if o.Kind == KindFailure {
		return EventTypeFailed
	}
	return EventTypeSucceeded
}

func (o Outcome) Timestamp() time.Time {
	return o.CompletedAt
}

// Detail is a short label for logs and metrics: the artifact state or the failure code.
func (o Outcome) Detail() string {
	if o.Kind == KindFailure {
		return strconv.Itoa(o.Code)
	}
	if o.ArtifactPresent {
		return "artifact"
	}
	return "no_artifact"
}

func (o Outcome) Duration() time.Duration {
	if o.RequestedAt.IsZero() || o.CompletedAt.Before(o.RequestedAt) {
		return 0
	}
	return o.CompletedAt.Sub(o.RequestedAt)
}
