package sim

import (
	"context"
	"sync"

	"github.com/OCAP2/bouncelog/pkg/core"
)

// Phase is the run state of the simulation clock.
type Phase int

const (
	PhaseRunning Phase = iota
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "RUNNING"
	case PhasePaused:
		return "PAUSED"
	default:
		return "UNKNOWN"
	}
}

// CaptureFunc receives the position captured on a RUNNING -> PAUSED
// transition, typically to persist it. Its error is returned by Stop.
type CaptureFunc func(ctx context.Context, pos core.Position3D) error

// Machine guards a State and implements the start/stop capture transitions.
// Step and the transitions share one lock, so once Stop returns no further
// frame is advanced until Start.
type Machine struct {
	mu        sync.Mutex
	room      Room
	state     State
	onCapture CaptureFunc
}

// NewMachine creates a machine in the RUNNING phase.
func NewMachine(room Room, initial State) *Machine {
	initial.Phase = PhaseRunning
	return &Machine{room: room, state: initial}
}

// OnCapture sets the capture sink. It is called after the phase has flipped
// and the lock is released.
func (m *Machine) OnCapture(fn CaptureFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCapture = fn
}

// Step advances one frame if running and reports whether it did.
func (m *Machine) Step() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseRunning {
		return false
	}
	m.state = Advance(m.room, m.state)
	return true
}

// Stop pauses the simulation, captures the current position and hands it to
// the capture sink. It returns false without side effects when already
// paused. The machine stays paused even when the sink fails.
func (m *Machine) Stop(ctx context.Context) (core.Position3D, bool, error) {
	m.mu.Lock()
	if m.state.Phase != PhaseRunning {
		m.mu.Unlock()
		return core.Position3D{}, false, nil
	}
	m.state.Phase = PhasePaused
	pos := ToPosition(m.state.Position)
	m.state.LastCaptured = &pos
	fn := m.onCapture
	m.mu.Unlock()

	if fn == nil {
		return pos, true, nil
	}
	return pos, true, fn(ctx, pos)
}

// Start resumes the simulation. No capture happens on resume.
func (m *Machine) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhasePaused {
		return false
	}
	m.state.Phase = PhaseRunning
	return true
}

// Toggle stops a running simulation or starts a paused one, returning the
// phase after the transition and any capture sink error.
func (m *Machine) Toggle(ctx context.Context) (Phase, error) {
	if _, stopped, err := m.Stop(ctx); stopped {
		return PhasePaused, err
	}
	m.Start()
	return PhaseRunning, nil
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	if s.LastCaptured != nil {
		captured := *s.LastCaptured
		s.LastCaptured = &captured
	}
	return s
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase
}

// Readout returns the formatted current position.
func (m *Machine) Readout() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FormatPosition(ToPosition(m.state.Position))
}
