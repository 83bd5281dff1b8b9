package orchestrator

import (
	"go.uber.org/zap"
)

// State is the per-request position in the render lifecycle
type State int

const (
	StateReceived State = iota
	StateValidated
	StateDispatched
	StateRendering
	StateCompleted
	StateTimedOut
	StateRenderFailed
	StateInternalFailed
	StateFinalized
	StateRejected
)

var stateNames = map[State]string{
	StateReceived:       "RECEIVED",
	StateValidated:      "VALIDATED",
	StateDispatched:     "DISPATCHED",
	StateRendering:      "RENDERING",
	StateCompleted:      "COMPLETED",
	StateTimedOut:       "TIMED_OUT",
	StateRenderFailed:   "RENDER_FAILED",
	StateInternalFailed: "INTERNAL_FAILED",
	StateFinalized:      "FINALIZED",
	StateRejected:       "REJECTED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateRejected
}

var transitions = map[State][]State{
	StateReceived:       {StateValidated, StateRejected},
	StateValidated:      {StateDispatched},
	StateDispatched:     {StateRendering},
	StateRendering:      {StateCompleted, StateTimedOut, StateRenderFailed, StateInternalFailed},
	StateCompleted:      {StateFinalized},
	StateTimedOut:       {StateFinalized},
	StateRenderFailed:   {StateFinalized},
	StateInternalFailed: {StateFinalized},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// lifecycle tracks the state of one request. It is owned by the request goroutine.
type lifecycle struct {
	requestID string
	state     State
	onChange  func(requestID string, from, to State)
	logger    *zap.Logger
}

func newLifecycle(requestID string, onChange func(string, State, State), logger *zap.Logger) *lifecycle {
	return &lifecycle{
		requestID: requestID,
		state:     StateReceived,
		onChange:  onChange,
		logger:    logger,
	}
}

// advance moves to the next state. An illegal transition is a bug and is
// reported at DPanic; the state is left unchanged.
func (l *lifecycle) advance(to State) {
	if !canTransition(l.state, to) {
		l.logger.DPanic("Illegal render lifecycle transition",
			zap.String("request_id", l.requestID),
			zap.Stringer("from", l.state),
			zap.Stringer("to", to))
		return
	}

	from := l.state
	l.state = to
	if l.onChange != nil {
		l.onChange(l.requestID, from, to)
	}
}
