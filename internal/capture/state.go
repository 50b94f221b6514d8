package capture

type State int32

const (
	StateIdle State = iota
	StateRequested
	StateSucceeded
	StateFailed
	StateUnsupported
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateUnsupported:
		return "unsupported"
	default:
		return "idle"
	}
}
