package service

import (
	"fmt"
	"log/slog"
	"sync"
)

// State is a stage of a single transcription request.
type State string

const (
	StateAwaitingUpload State = "awaiting_upload"
	StateConverting     State = "converting"
	StateTranscribing   State = "transcribing"
	StateStreaming      State = "streaming"
	StateCompleted      State = "completed"
	StateAborted        State = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// stateMachine tracks one request through the pipeline and logs each transition.
type stateMachine struct {
	logger  *slog.Logger
	current State
	mu      sync.Mutex
}

func newStateMachine(logger *slog.Logger) *stateMachine {
	return &stateMachine{
		logger:  logger,
		current: StateAwaitingUpload,
	}
}

// Current returns the current state.
func (m *stateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

// Transition validates and applies a transition.
func (m *stateMachine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !isValidTransition(m.current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current, to)
	}

	m.logger.Debug("Transcription state changed", "from", m.current, "to", to)
	m.current = to
	return nil
}

// Abort moves any non-terminal state to StateAborted. It is a no-op once terminal.
func (m *stateMachine) Abort() {
	if err := m.Transition(StateAborted); err != nil {
		m.logger.Debug("Abort ignored", "error", err)
	}
}

// isValidTransition enforces the allowed state machine edges.
func isValidTransition(from, to State) bool {
	if to == StateAborted {
		return !from.Terminal()
	}

	switch from {
	case StateAwaitingUpload:
		return to == StateConverting
	case StateConverting:
		return to == StateTranscribing
	case StateTranscribing:
		return to == StateStreaming
	case StateStreaming:
		return to == StateCompleted
	default:
		return false
	}
}
