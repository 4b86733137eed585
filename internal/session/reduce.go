package session

import (
	"fmt"
	"time"

	"github.com/vibestore237/live-competition/internal/scoring"
	"github.com/vibestore237/live-competition/internal/types"
)

// State はセッションの状態。Reduce 以外で変更しない。
type State struct {
	Phase        Phase               `json:"phase"`
	Started      bool                `json:"started"`
	StartedAt    time.Time           `json:"started_at"`
	Remaining    time.Duration       `json:"remaining"`
	Participants []types.Participant `json:"participants"`
	Ranking      []scoring.Ranked    `json:"ranking,omitempty"`
}

// NewState returns the initial waiting state.
func NewState(participants []types.Participant) State {
	return State{
		Phase:        PhaseWaiting,
		Participants: cloneParticipants(participants),
	}
}

// CurrentPerformer returns the participant holding the performing status.
func (s State) CurrentPerformer() (types.Participant, bool) {
	for _, p := range s.Participants {
		if p.Status == types.StatusPerforming {
			return p, true
		}
	}
	return types.Participant{}, false
}

// WaitingCount returns the number of participants still waiting.
func (s State) WaitingCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.Status == types.StatusWaiting {
			n++
		}
	}
	return n
}

// Reduce applies ev to s. On error the returned state equals s.
func Reduce(s State, ev Event) (State, []Effect, error) {
	switch e := ev.(type) {
	case Started:
		return reduceStarted(s, e)
	case Ticked:
		return reduceTicked(s, e)
	case ParticipantAdvanced:
		return reduceAdvanced(s, e)
	case RemoteParticipantChanged:
		return reduceRemoteChange(s, e)
	case ParticipantsSynced:
		return reduceSynced(s, e)
	case Finished:
		if s.Phase == PhaseResults {
			return s, nil, nil
		}
		next, effects := finish(s.clone(), e.Tallies)
		if e.Reason != "" {
			effects = append([]Effect{SystemMessage{Text: e.Reason}}, effects...)
		}
		return next, effects, nil
	default:
		return s, nil, fmt.Errorf("unsupported event %T", ev)
	}
}

func reduceStarted(s State, e Started) (State, []Effect, error) {
	if s.Started {
		return s, nil, &InvalidStateError{Op: "start", Phase: s.Phase, Err: ErrAlreadyStarted}
	}
	if len(e.Participants) == 0 {
		return s, nil, &InvalidStateError{Op: "start", Phase: s.Phase, Err: ErrNoParticipants}
	}

	next := s.clone()
	next.Participants = cloneParticipants(e.Participants)

	performerIdx := -1
	for i := range next.Participants {
		if next.Participants[i].Status == types.StatusCompleted {
			continue
		}
		if performerIdx < 0 {
			performerIdx = i
			next.Participants[i].Status = types.StatusPerforming
			continue
		}
		next.Participants[i].Status = types.StatusWaiting
	}
	if performerIdx < 0 {
		return s, nil, &InvalidStateError{Op: "start", Phase: s.Phase, Err: ErrNoEligibleUser}
	}

	next.Started = true
	next.StartedAt = e.At
	next.Phase = PhasePerforming

	performer := next.Participants[performerIdx]
	return next, []Effect{
		SystemMessage{Text: fmt.Sprintf("🎤 The competition has started! First up: %s", performer.Name())},
		AnnouncePerformer{Participant: performer},
	}, nil
}

func reduceTicked(s State, e Ticked) (State, []Effect, error) {
	if !s.Started || s.Phase == PhaseResults {
		return s, nil, nil
	}

	next := s.clone()
	next.Remaining = e.Total - e.Elapsed
	if next.Remaining < 0 {
		next.Remaining = 0
	}

	phase := Tick(e.Elapsed, e.Total)
	if !phase.After(next.Phase) {
		return next, nil, nil
	}

	switch phase {
	case PhaseVoting:
		next.Phase = PhaseVoting
		return next, []Effect{
			SystemMessage{Text: "🗳️ Voting is now open! Send your reactions for your favourite performance."},
		}, nil
	default:
		finished, effects := finish(next, e.Tallies)
		effects = append([]Effect{SystemMessage{Text: "⏰ Time is up!"}}, effects...)
		return finished, effects, nil
	}
}

func reduceAdvanced(s State, e ParticipantAdvanced) (State, []Effect, error) {
	if !e.Actor.IsAdmin() {
		return s, nil, &NotAuthorizedError{Op: "advance participant", UserID: e.Actor.UserID, Role: e.Actor.Role}
	}
	if !s.Started {
		return s, nil, &InvalidStateError{Op: "advance participant", Phase: s.Phase, Err: ErrNotStarted}
	}
	if s.Phase == PhaseResults {
		return s, nil, &InvalidStateError{Op: "advance participant", Phase: s.Phase, Err: ErrSessionFinished}
	}

	next := s.clone()
	var effects []Effect

	outgoing, hadPerformer := next.CurrentPerformer()
	if hadPerformer {
		next.setStatus(outgoing.ID, types.StatusCompleted)
		effects = append(effects, StopBroadcast{UserID: outgoing.User.ID})
	}

	for i := range next.Participants {
		if next.Participants[i].Status != types.StatusWaiting {
			continue
		}
		next.Participants[i].Status = types.StatusPerforming
		performer := next.Participants[i]
		effects = append(effects,
			SystemMessage{Text: fmt.Sprintf("🎶 Now performing: %s", performer.Name())},
			AnnouncePerformer{Participant: performer},
		)
		return next, effects, nil
	}

	finished, finishEffects := finish(next, e.Tallies)
	return finished, append(effects, finishEffects...), nil
}

func reduceRemoteChange(s State, e RemoteParticipantChanged) (State, []Effect, error) {
	if s.Phase == PhaseResults {
		return s, nil, nil
	}

	idx := s.indexOf(e.PerformerID)
	if idx < 0 {
		return s, nil, fmt.Errorf("%w: %q", ErrUnknownPerformer, e.PerformerID)
	}
	switch s.Participants[idx].Status {
	case types.StatusPerforming:
		return s, nil, nil
	case types.StatusCompleted:
		// 出演済みの参加者は performing に戻さない
		return s, nil, fmt.Errorf("%w: %q", ErrPerformerCompleted, e.PerformerID)
	}

	next := s.clone()
	var effects []Effect
	if outgoing, ok := next.CurrentPerformer(); ok {
		next.setStatus(outgoing.ID, types.StatusCompleted)
		effects = append(effects, StopBroadcast{UserID: outgoing.User.ID})
	}
	next.Participants[idx].Status = types.StatusPerforming

	if !next.Started {
		next.Started = true
		next.StartedAt = e.At
		next.Phase = PhasePerforming
	}

	name := e.PerformerName
	if name == "" {
		name = next.Participants[idx].Name()
	}
	effects = append(effects, SystemMessage{Text: fmt.Sprintf("🎶 Now performing: %s", name)})
	return next, effects, nil
}

func reduceSynced(s State, e ParticipantsSynced) (State, []Effect, error) {
	if s.Phase == PhaseResults {
		return s, nil, nil
	}

	next := s.clone()
	next.Participants = cloneParticipants(e.Participants)

	// サーバー側が複数人を performing で返しても最初の1人だけを残す
	seenPerformer := false
	for i := range next.Participants {
		if next.Participants[i].Status != types.StatusPerforming {
			continue
		}
		if seenPerformer {
			next.Participants[i].Status = types.StatusWaiting
		}
		seenPerformer = true
	}
	if !next.Started {
		for i := range next.Participants {
			if next.Participants[i].Status == types.StatusPerforming {
				next.Participants[i].Status = types.StatusWaiting
			}
		}
	}
	return next, nil, nil
}

// finish moves s into the absorbing results phase and designates the winner.
func finish(s State, tallies map[string]types.ReactionTally) (State, []Effect) {
	var effects []Effect
	if outgoing, ok := s.CurrentPerformer(); ok {
		s.setStatus(outgoing.ID, types.StatusCompleted)
		effects = append(effects, StopBroadcast{UserID: outgoing.User.ID})
	}

	s.Phase = PhaseResults
	s.Remaining = 0

	ranking, messages := DesignateWinner(s.Participants, tallies)
	s.Ranking = ranking
	for _, msg := range messages {
		effects = append(effects, msg)
	}
	effects = append(effects, RankingReady{Ranking: ranking})
	return s, effects
}

// DesignateWinner ranks participants by score (stable on ties) and builds the
// winner, podium and scoring explanation announcements.
func DesignateWinner(participants []types.Participant, tallies map[string]types.ReactionTally) ([]scoring.Ranked, []SystemMessage) {
	ranking := scoring.Rank(participants, tallies)
	if len(ranking) == 0 {
		return ranking, []SystemMessage{{Text: "🏁 The competition ended without participants."}}
	}

	winner := ranking[0]
	messages := []SystemMessage{{
		Text:     fmt.Sprintf("🏆 The winner is %s with %d points!", winner.Participant.Name(), winner.Score),
		IsWinner: true,
	}}

	medals := []string{"🥇", "🥈", "🥉"}
	for i, entry := range scoring.Podium(ranking) {
		messages = append(messages, SystemMessage{
			Text: fmt.Sprintf("%s %s: %d points (❤️ %d, 👍 %d, 🔥 %d)",
				medals[i], entry.Participant.Name(), entry.Score,
				entry.Tally.Hearts, entry.Tally.Likes, entry.Tally.Fire),
		})
	}
	messages = append(messages, SystemMessage{Text: scoring.Explanation()})
	return ranking, messages
}

func (s State) clone() State {
	out := s
	out.Participants = cloneParticipants(s.Participants)
	if s.Ranking != nil {
		out.Ranking = append([]scoring.Ranked(nil), s.Ranking...)
	}
	return out
}

func (s State) indexOf(participantID string) int {
	for i, p := range s.Participants {
		if p.ID == participantID {
			return i
		}
	}
	return -1
}

func (s *State) setStatus(participantID string, status types.ParticipantStatus) {
	if idx := s.indexOf(participantID); idx >= 0 {
		s.Participants[idx].Status = status
	}
}

func cloneParticipants(in []types.Participant) []types.Participant {
	if in == nil {
		return nil
	}
	out := make([]types.Participant, len(in))
	copy(out, in)
	return out
}
