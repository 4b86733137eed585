package live

import (
	"errors"

	"github.com/vibestore237/live-competition/internal/session"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/signaling"
	"go.uber.org/zap"
)

// handleInbound dispatches one server message. Must run on the session loop.
func (s *Session) handleInbound(msg signaling.Inbound) {
	switch m := msg.(type) {
	case signaling.ConnectionEstablished:
		logger.Debug("Signaling connection established", zap.String("client_id", m.ClientID))
	case signaling.RoomJoined:
		s.viewerCount = m.ViewerCount
		if s.viewerCount == 0 {
			s.viewerCount = len(m.Users)
		}
		for _, user := range m.Users {
			if user.Broadcasting && user.UserID != s.identity.UserID {
				s.broadcasters[user.UserID] = struct{}{}
			}
		}
	case signaling.UserJoined:
		s.viewerCount++
		s.engine.HandleSignal(m)
	case signaling.UserLeft:
		if s.viewerCount > 0 {
			s.viewerCount--
		}
		delete(s.broadcasters, m.UserID)
		s.engine.HandleSignal(m)
	case signaling.ParticipantChanged:
		err := s.apply(session.RemoteParticipantChanged{
			PerformerID:   m.NewPerformerID,
			PerformerName: m.NewPerformerName,
			At:            s.now(),
		})
		if err != nil {
			logger.Warn("Ignoring participant change", zap.String("performer_id", m.NewPerformerID), zap.Error(err))
		}
	case signaling.CompetitionUpdated:
		s.handleCompetitionUpdated(m)
	case signaling.ServerError:
		logger.Warn("Signaling server error", zap.String("message", m.Message))
		s.notifier.Error("Server error", m.Message)
	case signaling.HeartbeatResponse:
		logger.Debug("Heartbeat acknowledged", zap.Int64("timestamp", m.Timestamp))
	case signaling.BroadcastingStarted:
		s.broadcasters[m.UserID] = struct{}{}
		s.engine.HandleSignal(m)
	case signaling.BroadcastingStopped:
		delete(s.broadcasters, m.UserID)
		s.engine.HandleSignal(m)
	case signaling.UserSpeaking,
		signaling.RemoteOffer, signaling.RemoteAnswer, signaling.RemoteICECandidate:
		s.engine.HandleSignal(m)
	case signaling.Unknown:
		logger.Debug("Ignoring unknown signaling message", zap.String("type", m.Type))
	}
}

// handleCompetitionUpdated adopts what the server reports without trying to
// reconcile anything missed while disconnected.
func (s *Session) handleCompetitionUpdated(m signaling.CompetitionUpdated) {
	if m.Competition != nil {
		s.competition = *m.Competition
		s.engine.SetCompetition(s.competition)
	}
	if len(m.Participants) > 0 {
		if err := s.apply(session.ParticipantsSynced{Participants: m.Participants}); err != nil && !errors.Is(err, session.ErrSessionFinished) {
			logger.Warn("Failed to sync participants", zap.Error(err))
		}
	}
	for participantID, tally := range m.Reactions {
		s.tallies.Merge(participantID, tally)
	}
	if m.ViewerCount > 0 {
		s.viewerCount = m.ViewerCount
	}
}
