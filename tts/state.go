package tts

// StateType represents the stage a synthesis request is in.
type StateType int

const (
	// StateIdle indicates the request has not started.
	StateIdle StateType = iota
	// StateResolvingVoice indicates the speaker conditioning is being looked up.
	StateResolvingVoice
	// StateSegmenting indicates the text is being split.
	StateSegmenting
	// StateSynthesizing indicates segments are going through inference.
	StateSynthesizing
	// StateAssembling indicates per-segment audio is being concatenated.
	StateAssembling
	// StateFinalizing indicates the silence pipeline is running.
	StateFinalizing
	// StateDone indicates a buffer was produced.
	StateDone
	// StateFailed indicates the request ended with an error.
	StateFailed
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingVoice:
		return "resolving_voice"
	case StateSegmenting:
		return "segmenting"
	case StateSynthesizing:
		return "synthesizing"
	case StateAssembling:
		return "assembling"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Done and Failed.
func (s StateType) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// StateMachine tracks one request through the synthesis stages.
// It is not safe for concurrent use; each request owns its own machine.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
	onChange    func(from, to StateType)
}

// NewStateMachine creates a state machine with the synthesis transitions.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:           {StateResolvingVoice, StateFailed},
			StateResolvingVoice: {StateSegmenting, StateFailed},
			StateSegmenting:     {StateSynthesizing, StateFailed},
			StateSynthesizing:   {StateAssembling, StateFailed},
			StateAssembling:     {StateFinalizing, StateFailed},
			StateFinalizing:     {StateDone, StateFailed},
		},
		onEnter: make(map[StateType]func()),
	}
}

// Transition attempts to move to the specified state.
func (sm *StateMachine) Transition(to StateType) bool {
	valid := false
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	from := sm.current
	sm.current = to

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}

	return true
}

// Fail moves to StateFailed from any non-terminal state.
func (sm *StateMachine) Fail() bool {
	if sm.current.IsTerminal() {
		return false
	}
	return sm.Transition(StateFailed)
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.onEnter[state] = fn
}

// OnChange registers a callback invoked after every successful transition.
func (sm *StateMachine) OnChange(fn func(from, to StateType)) {
	sm.onChange = fn
}
