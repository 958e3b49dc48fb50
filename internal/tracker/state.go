package tracker

// State is where a track sits in its lifecycle.
type State int

const (
	Active State = iota
	Resting
	Terminated
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Resting:
		return "resting"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// event is what happened to a track in the current frame.
type event int

const (
	matched event = iota
	missedWithinGap
	missedBeyondGap
)

// next is the only place a track changes state. Terminated is absorbing.
func next(s State, e event) State {
	if s == Terminated {
		return Terminated
	}
	switch e {
	case matched:
		return Active
	case missedWithinGap:
		return Resting
	default:
		return Terminated
	}
}
