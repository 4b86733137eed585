package live

import (
	"github.com/vibestore237/live-competition/internal/session"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/simulation"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

// simulationActor rotates performers on behalf of the simulated server.
var simulationActor = types.Identity{UserID: "simulation", DisplayName: "Simulation", Role: types.RoleAdmin}

// simulatedSink queues perturbations onto the session loop so they go
// through the same reducer, scoring and chat paths as server messages.
type simulatedSink struct {
	s *Session
}

func (s *Session) simulationSink() simulation.Sink {
	return simulatedSink{s: s}
}

func (k simulatedSink) AdjustViewers(delta int) {
	k.s.post(func() {
		k.s.viewerCount = max(0, k.s.viewerCount+delta)
	})
}

func (k simulatedSink) PostSimulatedChat(author, body string) {
	k.s.post(func() {
		k.s.postChat(k.s.chat.Post(types.ChatMessage{Author: author, Body: body}))
	})
}

func (k simulatedSink) SimulateReaction(kind types.ReactionKind) {
	k.s.post(func() {
		performer, ok := k.s.machine.State().CurrentPerformer()
		if !ok {
			return
		}
		if _, err := k.s.tallies.RecordReaction(performer.ID, kind); err != nil {
			logger.Warn("Simulated reaction rejected", zap.Error(err))
		}
	})
}

func (k simulatedSink) Started() bool {
	state := k.s.machine.State()
	return state.Started && state.Phase != session.PhaseResults
}

func (k simulatedSink) RotatePerformer() {
	k.s.post(func() {
		err := k.s.apply(session.ParticipantAdvanced{Actor: simulationActor, Tallies: k.s.tallies.Snapshot()})
		if err != nil {
			logger.Debug("Simulated rotation skipped", zap.Error(err))
		}
	})
}
