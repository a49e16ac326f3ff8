package tts

import "testing"

// TestStateTypeString tests the string representation of states.
func TestStateTypeString(t *testing.T) {
	tests := []struct {
		state    StateType
		expected string
	}{
		{StateIdle, "idle"},
		{StateResolvingVoice, "resolving_voice"},
		{StateSegmenting, "segmenting"},
		{StateSynthesizing, "synthesizing"},
		{StateAssembling, "assembling"},
		{StateFinalizing, "finalizing"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{StateType(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("StateType(%d).String() = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}

func TestStateIsTerminal(t *testing.T) {
	for _, s := range []StateType{StateIdle, StateResolvingVoice, StateSegmenting, StateSynthesizing, StateAssembling, StateFinalizing} {
		if s.IsTerminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
	for _, s := range []StateType{StateDone, StateFailed} {
		if !s.IsTerminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
}

func TestNewStateMachine(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Errorf("Initial state = %v, want StateIdle", sm.Current())
	}
}

// TestStateMachineTransitions tests which transitions are allowed.
func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name        string
		from        StateType
		to          StateType
		shouldAllow bool
	}{
		{"idle to resolving", StateIdle, StateResolvingVoice, true},
		{"resolving to segmenting", StateResolvingVoice, StateSegmenting, true},
		{"segmenting to synthesizing", StateSegmenting, StateSynthesizing, true},
		{"synthesizing to assembling", StateSynthesizing, StateAssembling, true},
		{"assembling to finalizing", StateAssembling, StateFinalizing, true},
		{"finalizing to done", StateFinalizing, StateDone, true},
		{"idle to failed", StateIdle, StateFailed, true},
		{"synthesizing to failed", StateSynthesizing, StateFailed, true},

		{"idle to synthesizing", StateIdle, StateSynthesizing, false},
		{"segmenting to assembling", StateSegmenting, StateAssembling, false},
		{"synthesizing backwards", StateSynthesizing, StateSegmenting, false},
		{"done to idle", StateDone, StateIdle, false},
		{"done to failed", StateDone, StateFailed, false},
		{"failed to idle", StateFailed, StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			sm.current = tt.from

			result := sm.Transition(tt.to)
			if result != tt.shouldAllow {
				t.Errorf("Transition from %v to %v: got %v, want %v",
					tt.from, tt.to, result, tt.shouldAllow)
			}

			if tt.shouldAllow && sm.Current() != tt.to {
				t.Errorf("State not changed: current = %v, expected = %v", sm.Current(), tt.to)
			} else if !tt.shouldAllow && sm.Current() != tt.from {
				t.Errorf("State changed on invalid transition: current = %v, expected = %v", sm.Current(), tt.from)
			}
		})
	}
}

func TestStateMachineFail(t *testing.T) {
	sm := NewStateMachine()
	sm.Transition(StateResolvingVoice)
	sm.Transition(StateSegmenting)

	if !sm.Fail() {
		t.Fatal("Fail should succeed from a running state")
	}
	if sm.Current() != StateFailed {
		t.Errorf("Expected StateFailed, got %v", sm.Current())
	}
	if sm.Fail() {
		t.Error("Fail should not succeed from a terminal state")
	}
}

// TestStateMachineFullRun walks the happy path and records every callback.
func TestStateMachineFullRun(t *testing.T) {
	sm := NewStateMachine()

	var changes []StateType
	sm.OnChange(func(from, to StateType) {
		changes = append(changes, to)
	})
	entered := false
	sm.OnEnter(StateDone, func() { entered = true })

	path := []StateType{StateResolvingVoice, StateSegmenting, StateSynthesizing, StateAssembling, StateFinalizing, StateDone}
	for _, s := range path {
		if !sm.Transition(s) {
			t.Fatalf("Transition to %v rejected", s)
		}
	}

	if len(changes) != len(path) {
		t.Fatalf("Expected %d changes, got %d", len(path), len(changes))
	}
	for i := range path {
		if changes[i] != path[i] {
			t.Errorf("Change %d: got %v, want %v", i, changes[i], path[i])
		}
	}
	if !entered {
		t.Error("OnEnter callback for StateDone not called")
	}
}

// TestStateMachineNilCallbacks tests that nil callbacks don't crash.
func TestStateMachineNilCallbacks(t *testing.T) {
	sm := NewStateMachine()
	sm.OnEnter(StateResolvingVoice, nil)
	sm.OnChange(nil)

	if !sm.Transition(StateResolvingVoice) {
		t.Error("Transition should succeed even with nil callbacks")
	}
}
