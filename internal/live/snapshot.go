package live

import (
	"sort"
	"time"

	"github.com/vibestore237/live-competition/internal/audio"
	"github.com/vibestore237/live-competition/internal/scoring"
	"github.com/vibestore237/live-competition/internal/session"
	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/types"
)

// Snapshot is a read-only view of the session published after every loop
// iteration.
type Snapshot struct {
	Competition      types.Competition              `json:"competition"`
	Phase            session.Phase                  `json:"phase"`
	Started          bool                           `json:"started"`
	RemainingSeconds int                            `json:"remaining_seconds"`
	Participants     []types.Participant            `json:"participants"`
	CurrentPerformer *types.Participant             `json:"current_performer,omitempty"`
	Tallies          map[string]types.ReactionTally `json:"tallies"`
	Scores           map[string]int                 `json:"scores"`
	TotalReactions   int                            `json:"total_reactions"`
	Ranking          []scoring.Ranked               `json:"ranking,omitempty"`
	Votes            map[string]int                 `json:"votes"`
	Chat             []types.ChatMessage            `json:"chat"`
	ViewerCount      int                            `json:"viewer_count"`
	Broadcasters     []string                       `json:"broadcasters"`
	Demo             bool                           `json:"demo"`
	Simulated        bool                           `json:"simulated"`
	Signaling        signaling.State                `json:"signaling"`
	Audio            audio.Status                   `json:"audio"`
	UpdatedAt        time.Time                      `json:"updated_at"`
}

// Snapshot returns the latest published snapshot.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.latest
}

// Subscribe returns a channel receiving every new snapshot, starting with
// the current one. Slow subscribers only see the latest snapshot.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.snapMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- s.latest
	s.snapMu.Unlock()

	unsubscribe := func() {
		s.snapMu.Lock()
		defer s.snapMu.Unlock()
		if existing, ok := s.subscribers[id]; ok {
			close(existing)
			delete(s.subscribers, id)
		}
	}
	return ch, unsubscribe
}

// publish must run on the session loop (or before it starts).
func (s *Session) publish() {
	state := s.machine.State()
	tallies := s.tallies.Snapshot()

	snap := Snapshot{
		Competition:      s.competition,
		Phase:            state.Phase,
		Started:          state.Started,
		RemainingSeconds: int(state.Remaining / time.Second),
		Participants:     state.Participants,
		Tallies:          tallies,
		Scores:           make(map[string]int, len(tallies)),
		TotalReactions:   s.tallies.Sum(),
		Ranking:          state.Ranking,
		Votes:            make(map[string]int),
		Chat:             s.chat.Messages(),
		ViewerCount:      s.viewerCount,
		Broadcasters:     make([]string, 0, len(s.broadcasters)),
		Demo:             s.demo,
		Simulated:        s.client.Simulated(),
		Signaling:        s.client.State(),
		Audio:            s.engine.Status(),
		UpdatedAt:        s.now(),
	}
	if performer, ok := state.CurrentPerformer(); ok {
		snap.CurrentPerformer = &performer
	}
	for id, tally := range tallies {
		snap.Scores[id] = scoring.Score(tally)
	}
	for _, participantID := range s.votes {
		snap.Votes[participantID]++
	}
	for userID := range s.broadcasters {
		snap.Broadcasters = append(snap.Broadcasters, userID)
	}
	sort.Strings(snap.Broadcasters)

	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.latest = snap
	for _, ch := range s.subscribers {
		// 未読の古いスナップショットは捨てる
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
