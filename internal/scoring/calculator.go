package scoring

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vibestore237/live-competition/internal/types"
)

// リアクションの重み（固定値）
const (
	heartsWeight = 5
	likesWeight  = 3
	fireWeight   = 2
)

var ErrUnknownReaction = errors.New("unknown reaction kind")

// Score は集計からスコアを計算する。
func Score(tally types.ReactionTally) int {
	return tally.Hearts*heartsWeight + tally.Likes*likesWeight + tally.Fire*fireWeight
}

// Apply returns tally with exactly one counter incremented.
func Apply(tally types.ReactionTally, kind types.ReactionKind) (types.ReactionTally, error) {
	switch kind {
	case types.ReactionHearts:
		tally.Hearts++
	case types.ReactionLikes:
		tally.Likes++
	case types.ReactionFire:
		tally.Fire++
	default:
		return tally, fmt.Errorf("%w: %q", ErrUnknownReaction, kind)
	}
	return tally, nil
}

// Tallies は参加者IDごとのリアクション集計。カウンターは減らない。
type Tallies struct {
	mu     sync.RWMutex
	counts map[string]types.ReactionTally
}

func NewTallies() *Tallies {
	return &Tallies{counts: make(map[string]types.ReactionTally)}
}

// RecordReaction increments one counter for the participant and returns the
// updated tally.
func (t *Tallies) RecordReaction(participantID string, kind types.ReactionKind) (types.ReactionTally, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	updated, err := Apply(t.counts[participantID], kind)
	if err != nil {
		return t.counts[participantID], err
	}
	t.counts[participantID] = updated
	return updated, nil
}

// Merge raises the local tally to at least the given values. Used when the
// server reports counts; a lower remote value never decreases the local one.
func (t *Tallies) Merge(participantID string, remote types.ReactionTally) types.ReactionTally {
	t.mu.Lock()
	defer t.mu.Unlock()

	local := t.counts[participantID]
	local.Hearts = max(local.Hearts, remote.Hearts)
	local.Likes = max(local.Likes, remote.Likes)
	local.Fire = max(local.Fire, remote.Fire)
	t.counts[participantID] = local
	return local
}

func (t *Tallies) Get(participantID string) types.ReactionTally {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[participantID]
}

// Snapshot returns a copy of all tallies.
func (t *Tallies) Snapshot() map[string]types.ReactionTally {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]types.ReactionTally, len(t.counts))
	for id, tally := range t.counts {
		out[id] = tally
	}
	return out
}

// Sum returns the total reactions across all participants.
func (t *Tallies) Sum() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := 0
	for _, tally := range t.counts {
		total += tally.Total()
	}
	return total
}

// Ranked は順位付け済みの参加者。
type Ranked struct {
	Position    int                 `json:"position"`
	Participant types.Participant   `json:"participant"`
	Tally       types.ReactionTally `json:"tally"`
	Score       int                 `json:"score"`
}

// Rank sorts participants by descending score. Equal scores keep the input
// (registration) order.
func Rank(participants []types.Participant, tallies map[string]types.ReactionTally) []Ranked {
	ranked := make([]Ranked, 0, len(participants))
	for _, p := range participants {
		tally := tallies[p.ID]
		ranked = append(ranked, Ranked{
			Participant: p,
			Tally:       tally,
			Score:       Score(tally),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	for i := range ranked {
		ranked[i].Position = i + 1
	}
	return ranked
}

// Podium returns up to the top three entries.
func Podium(ranking []Ranked) []Ranked {
	if len(ranking) > 3 {
		return ranking[:3]
	}
	return ranking
}

// Explanation describes how scores are computed.
func Explanation() string {
	return fmt.Sprintf("Scores: ❤️ hearts x%d, 👍 likes x%d, 🔥 fire x%d", heartsWeight, likesWeight, fireWeight)
}
