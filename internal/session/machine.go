package session

import (
	"sync"
	"time"

	"github.com/vibestore237/live-competition/internal/types"
)

// Machine wraps Reduce with the current state and a clock.
type Machine struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

func NewMachine(participants []types.Participant) *Machine {
	return &Machine{
		state: NewState(participants),
		now:   time.Now,
	}
}

// Apply reduces ev into the machine state.
func (m *Machine) Apply(ev Event) ([]Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, effects, err := Reduce(m.state, ev)
	if err != nil {
		return nil, err
	}
	m.state = next
	return effects, nil
}

// Start fails with an InvalidStateError when already started or when
// participants is empty.
func (m *Machine) Start(participants []types.Participant) ([]Effect, error) {
	return m.Apply(Started{Participants: participants, At: m.now()})
}

// AdvanceParticipant rotates to the next waiting participant. It returns the
// new performer, or nil when the competition moved to results.
func (m *Machine) AdvanceParticipant(actor types.Identity, tallies map[string]types.ReactionTally) (*types.Participant, []Effect, error) {
	effects, err := m.Apply(ParticipantAdvanced{Actor: actor, Tallies: tallies})
	if err != nil {
		return nil, nil, err
	}
	if performer, ok := m.State().CurrentPerformer(); ok {
		return &performer, effects, nil
	}
	return nil, effects, nil
}

// Tick evaluates the countdown against the start time and returns the phase
// after the tick.
func (m *Machine) Tick(total time.Duration, tallies map[string]types.ReactionTally) (Phase, []Effect, error) {
	m.mu.RLock()
	startedAt := m.state.StartedAt
	m.mu.RUnlock()

	var elapsed time.Duration
	if !startedAt.IsZero() {
		elapsed = m.now().Sub(startedAt)
	}
	effects, err := m.Apply(Ticked{Elapsed: elapsed, Total: total, Tallies: tallies})
	return m.State().Phase, effects, err
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}
