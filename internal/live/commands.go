package live

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vibestore237/live-competition/internal/audio"
	"github.com/vibestore237/live-competition/internal/competitionapi"
	"github.com/vibestore237/live-competition/internal/scoring"
	"github.com/vibestore237/live-competition/internal/session"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

var (
	ErrEmptyMessage       = errors.New("empty chat message")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrAlreadyVoted       = errors.New("already voted")
	ErrVotingClosed       = errors.New("voting is not open")
)

// Start starts the competition. Only administrators and the competition's
// organizer may start it.
func (s *Session) Start(ctx context.Context, actor types.Identity) error {
	err := s.do(ctx, func() error {
		if !actor.IsAdmin() && !actor.IsOrganizerOf(s.competition) {
			return &session.NotAuthorizedError{Op: "start competition", UserID: actor.UserID, Role: actor.Role}
		}
		return s.apply(session.Started{
			Participants: s.machine.State().Participants,
			At:           s.now(),
		})
	})
	s.report("Cannot start competition", err)
	return err
}

// AdvanceParticipant rotates to the next performer. It returns nil when the
// competition moved to results.
func (s *Session) AdvanceParticipant(ctx context.Context, actor types.Identity) (*types.Participant, error) {
	var performer *types.Participant
	err := s.do(ctx, func() error {
		if err := s.apply(session.ParticipantAdvanced{Actor: actor, Tallies: s.tallies.Snapshot()}); err != nil {
			return err
		}
		if current, ok := s.machine.State().CurrentPerformer(); ok {
			performer = &current
		}
		return nil
	})
	s.report("Cannot advance participant", err)
	if err != nil {
		return nil, err
	}
	return performer, nil
}

// React records a reaction for participantID. In demo mode the reaction is
// applied before the request and kept even if the request fails; otherwise
// it is applied only after the request succeeds.
func (s *Session) React(ctx context.Context, actor types.Identity, participantID string, kind types.ReactionKind) (types.ReactionTally, error) {
	if !kind.Valid() {
		return types.ReactionTally{}, fmt.Errorf("%w: %q", scoring.ErrUnknownReaction, kind)
	}
	if err := s.do(ctx, func() error { return s.requireParticipant(participantID) }); err != nil {
		return types.ReactionTally{}, err
	}

	var tally types.ReactionTally
	record := func() error {
		return s.do(ctx, func() error {
			updated, err := s.tallies.RecordReaction(participantID, kind)
			if err != nil {
				return err
			}
			tally = updated
			s.journal("reaction_recorded", map[string]any{
				"participant_id": participantID,
				"user_id":        actor.UserID,
				"kind":           kind,
			})
			return nil
		})
	}

	err := s.persist(ctx, "Reaction failed", record, func(ctx context.Context) error {
		return s.api.React(ctx, competitionapi.ReactRequest{
			CompetitionID: s.competitionID,
			ParticipantID: participantID,
			ReactionType:  kind,
		})
	})
	return tally, err
}

// PostChat posts a chat message authored by actor.
func (s *Session) PostChat(ctx context.Context, actor types.Identity, text string) (types.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.ChatMessage{}, ErrEmptyMessage
	}

	var posted types.ChatMessage
	record := func() error {
		return s.do(ctx, func() error {
			posted = s.chat.Post(types.ChatMessage{
				Author: actor.DisplayName,
				Body:   text,
				IsOwn:  actor.UserID == s.identity.UserID,
			})
			s.postChat(posted)
			return nil
		})
	}

	err := s.persist(ctx, "Message not sent", record, func(ctx context.Context) error {
		return s.api.PostChat(ctx, competitionapi.ChatRequest{
			CompetitionID: s.competitionID,
			Message:       text,
		})
	})
	return posted, err
}

// Vote casts actor's single vote while the competition is running.
func (s *Session) Vote(ctx context.Context, actor types.Identity, participantID string) error {
	err := s.do(ctx, func() error {
		state := s.machine.State()
		if state.Phase != session.PhasePerforming && state.Phase != session.PhaseVoting {
			return &session.InvalidStateError{Op: "vote", Phase: state.Phase, Err: ErrVotingClosed}
		}
		if err := s.requireParticipant(participantID); err != nil {
			return err
		}
		if _, voted := s.votes[actor.UserID]; voted {
			return ErrAlreadyVoted
		}
		return nil
	})
	if err != nil {
		s.report("Vote rejected", err)
		return err
	}

	record := func() error {
		return s.do(ctx, func() error {
			s.votes[actor.UserID] = participantID
			s.journal("vote_cast", map[string]any{"participant_id": participantID, "user_id": actor.UserID})
			return nil
		})
	}
	return s.persist(ctx, "Vote failed", record, func(ctx context.Context) error {
		return s.api.Vote(ctx, competitionapi.VoteRequest{
			CompetitionID: s.competitionID,
			ParticipantID: participantID,
		})
	})
}

// persist orders the local update and the REST request by mode.
func (s *Session) persist(ctx context.Context, title string, record func() error, request func(ctx context.Context) error) error {
	if s.demo {
		if err := record(); err != nil {
			return err
		}
		if s.api == nil {
			return nil
		}
		if err := request(ctx); err != nil {
			// デモではロールバックしない
			logger.Warn("Request failed in demo mode", zap.String("title", title), zap.Error(err))
			s.notifier.Error(title, err.Error())
		}
		return nil
	}

	if s.api != nil {
		if err := request(ctx); err != nil {
			logger.Error("Request failed", zap.String("title", title), zap.Error(err))
			s.notifier.Error(title, err.Error())
			return err
		}
	}
	return record()
}

// StartBroadcast starts the local audio broadcast for actor.
func (s *Session) StartBroadcast(ctx context.Context, actor types.Identity) error {
	err := s.engine.StartBroadcast(ctx, actor)

	var permissionErr *audio.PermissionError
	var mediaErr *audio.MediaError
	switch {
	case errors.As(err, &permissionErr):
		s.notifier.Warning("Broadcast not allowed", permissionErr.Reason)
	case errors.As(err, &mediaErr):
		s.notifier.Error("Microphone unavailable", mediaErr.Error())
	case err == nil:
		s.journal("broadcast_started", map[string]any{"user_id": actor.UserID})
	}
	s.refresh()
	return err
}

func (s *Session) StopBroadcast() {
	if broadcaster, ok := s.engine.Broadcaster(); ok {
		s.engine.StopBroadcast()
		s.journal("broadcast_stopped", map[string]any{"user_id": broadcaster.UserID})
	}
	s.refresh()
}

func (s *Session) StartListening() {
	s.engine.StartListening()
	s.refresh()
}

func (s *Session) StopListening() {
	s.engine.StopListening()
	s.refresh()
}

// CheckBroadcastPermissions reports whether identity may broadcast.
func (s *Session) CheckBroadcastPermissions(identity types.Identity) audio.Permission {
	return s.engine.CheckBroadcastPermissions(identity)
}

// refresh republishes the snapshot after a change made outside the loop.
func (s *Session) refresh() {
	s.post(func() {})
}

// requireParticipant must run on the session loop.
func (s *Session) requireParticipant(participantID string) error {
	for _, p := range s.machine.State().Participants {
		if p.ID == participantID {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownParticipant, participantID)
}

// report turns command errors into notices.
func (s *Session) report(title string, err error) {
	if err == nil || errors.Is(err, ErrSessionClosed) {
		return
	}

	var notAuthorized *session.NotAuthorizedError
	var invalid *session.InvalidStateError
	switch {
	case errors.As(err, &notAuthorized):
		s.notifier.Warning(title, err.Error())
	case errors.As(err, &invalid):
		s.notifier.Info(title, err.Error())
	default:
		s.notifier.Error(title, err.Error())
	}
	logger.Debug("Command rejected", zap.String("title", title), zap.Error(err))
}
