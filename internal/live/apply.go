package live

import (
	"encoding/json"

	"github.com/vibestore237/live-competition/internal/chat"
	"github.com/vibestore237/live-competition/internal/localdb"
	"github.com/vibestore237/live-competition/internal/session"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

// apply reduces ev, journals it and performs the requested effects.
// Must run on the session loop.
func (s *Session) apply(ev session.Event) error {
	effects, err := s.machine.Apply(ev)
	if err != nil {
		return err
	}

	// 毎秒の tick はフェーズが変わったときだけ記録する
	if _, isTick := ev.(session.Ticked); !isTick || len(effects) > 0 {
		s.journal(ev.Name(), ev)
	}

	for _, effect := range effects {
		s.perform(effect)
	}
	return nil
}

func (s *Session) perform(effect session.Effect) {
	switch e := effect.(type) {
	case session.SystemMessage:
		s.postChat(s.chat.PostSystem(e.Text, chat.Flags{IsWinner: e.IsWinner}))
	case session.StopBroadcast:
		if broadcaster, ok := s.engine.Broadcaster(); ok && broadcaster.UserID == e.UserID {
			s.engine.StopBroadcast()
		}
	case session.AnnouncePerformer:
		s.client.Send(signaling.ParticipantChange{
			NewPerformerID:   e.Participant.ID,
			NewPerformerName: e.Participant.Name(),
		})
	case session.RankingReady:
		s.journal("ranking_ready", e.Ranking)
		if len(e.Ranking) > 0 {
			winner := e.Ranking[0]
			s.notifier.Success("Results", winner.Participant.Name()+" wins the competition!")
		}
	default:
		logger.Warn("Unhandled session effect", zap.Any("effect", effect))
	}
}

// postChat records an already posted message in the local transcript.
func (s *Session) postChat(msg types.ChatMessage) {
	if localdb.GetDB() == nil {
		return
	}
	if _, err := localdb.AddChatTranscript(localdb.ChatTranscriptRow{
		CompetitionID: s.competitionID,
		MessageID:     msg.ID,
		Author:        msg.Author,
		Body:          msg.Body,
		IsSystem:      msg.IsSystem,
		IsWinner:      msg.IsWinner,
		CreatedAt:     msg.Timestamp.UnixMilli(),
	}); err != nil {
		logger.Warn("Failed to store chat transcript", zap.Error(err))
	}
}

func (s *Session) journal(name string, payload any) {
	if localdb.GetDB() == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn("Failed to encode session event", zap.String("name", name), zap.Error(err))
		data = []byte("{}")
	}
	if err := localdb.AppendSessionEvent(localdb.SessionEventRow{
		CompetitionID: s.competitionID,
		Name:          name,
		PayloadJSON:   string(data),
		CreatedAt:     s.now().UnixMilli(),
	}); err != nil {
		logger.Warn("Failed to journal session event", zap.String("name", name), zap.Error(err))
	}
}
