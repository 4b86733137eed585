package session

import (
	"time"

	"github.com/vibestore237/live-competition/internal/scoring"
	"github.com/vibestore237/live-competition/internal/types"
)

// Event is the closed set of inputs accepted by Reduce.
type Event interface {
	Name() string
	isEvent()
}

// Started starts the competition with the registered participants.
type Started struct {
	Participants []types.Participant `json:"participants"`
	At           time.Time           `json:"at"`
}

// Ticked carries the wall-clock progress of the session.
type Ticked struct {
	Elapsed time.Duration                  `json:"elapsed"`
	Total   time.Duration                  `json:"total"`
	Tallies map[string]types.ReactionTally `json:"-"`
}

// ParticipantAdvanced rotates to the next waiting participant.
type ParticipantAdvanced struct {
	Actor   types.Identity                 `json:"actor"`
	Tallies map[string]types.ReactionTally `json:"-"`
}

// RemoteParticipantChanged applies a performer change pushed by the server
// (or the simulation).
type RemoteParticipantChanged struct {
	PerformerID   string    `json:"performer_id"`
	PerformerName string    `json:"performer_name"`
	At            time.Time `json:"at"`
}

// ParticipantsSynced replaces the participant list with what the server
// currently reports.
type ParticipantsSynced struct {
	Participants []types.Participant `json:"participants"`
}

// Finished ends the competition immediately.
type Finished struct {
	Reason  string                         `json:"reason"`
	Tallies map[string]types.ReactionTally `json:"-"`
}

func (Started) Name() string                  { return "started" }
func (Ticked) Name() string                   { return "ticked" }
func (ParticipantAdvanced) Name() string      { return "participant_advanced" }
func (RemoteParticipantChanged) Name() string { return "remote_participant_changed" }
func (ParticipantsSynced) Name() string       { return "participants_synced" }
func (Finished) Name() string                 { return "finished" }

func (Started) isEvent()                  {}
func (Ticked) isEvent()                   {}
func (ParticipantAdvanced) isEvent()      {}
func (RemoteParticipantChanged) isEvent() {}
func (ParticipantsSynced) isEvent()       {}
func (Finished) isEvent()                 {}

// Effect is a side effect requested by Reduce. The caller performs it.
type Effect interface {
	isEffect()
}

// SystemMessage asks for a system chat message.
type SystemMessage struct {
	Text     string
	IsWinner bool
}

// StopBroadcast asks to stop the local broadcast if it belongs to UserID.
type StopBroadcast struct {
	UserID string
}

// AnnouncePerformer asks to tell the signaling server about a new performer.
type AnnouncePerformer struct {
	Participant types.Participant
}

// RankingReady carries the final ranking.
type RankingReady struct {
	Ranking []scoring.Ranked
}

func (SystemMessage) isEffect()     {}
func (StopBroadcast) isEffect()     {}
func (AnnouncePerformer) isEffect() {}
func (RankingReady) isEffect()      {}
