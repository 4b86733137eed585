package scoring

import (
	"errors"
	"testing"

	"github.com/vibestore237/live-competition/internal/types"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		tally  types.ReactionTally
		expect int
	}{
		{name: "empty", tally: types.ReactionTally{}, expect: 0},
		{name: "hearts only", tally: types.ReactionTally{Hearts: 2}, expect: 10},
		{name: "likes only", tally: types.ReactionTally{Likes: 3}, expect: 9},
		{name: "fire only", tally: types.ReactionTally{Fire: 5}, expect: 10},
		{name: "mixed", tally: types.ReactionTally{Hearts: 2, Likes: 1}, expect: 13},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.tally); got != tc.expect {
				t.Fatalf("Score() = %d, want %d", got, tc.expect)
			}
		})
	}
}

func TestRecordReaction_ScoreMatchesFormula(t *testing.T) {
	tallies := NewTallies()
	sequence := []types.ReactionKind{
		types.ReactionHearts, types.ReactionFire, types.ReactionLikes,
		types.ReactionHearts, types.ReactionFire, types.ReactionFire,
		types.ReactionLikes, types.ReactionHearts,
	}

	hearts, likes, fire := 0, 0, 0
	for _, kind := range sequence {
		tally, err := tallies.RecordReaction("a", kind)
		if err != nil {
			t.Fatalf("RecordReaction failed: %v", err)
		}
		switch kind {
		case types.ReactionHearts:
			hearts++
		case types.ReactionLikes:
			likes++
		case types.ReactionFire:
			fire++
		}
		want := 5*hearts + 3*likes + 2*fire
		if got := Score(tally); got != want {
			t.Fatalf("score mismatch: got=%d want=%d", got, want)
		}
	}

	if got := tallies.Sum(); got != len(sequence) {
		t.Fatalf("unexpected sum: got=%d want=%d", got, len(sequence))
	}
}

func TestRecordReaction_UnknownKindKeepsTally(t *testing.T) {
	tallies := NewTallies()
	if _, err := tallies.RecordReaction("a", types.ReactionHearts); err != nil {
		t.Fatalf("RecordReaction failed: %v", err)
	}

	tally, err := tallies.RecordReaction("a", types.ReactionKind("boo"))
	if !errors.Is(err, ErrUnknownReaction) {
		t.Fatalf("unexpected error: %v", err)
	}
	if tally.Hearts != 1 || tally.Total() != 1 {
		t.Fatalf("tally should be unchanged: %+v", tally)
	}
}

func TestMerge_NeverDecreases(t *testing.T) {
	tallies := NewTallies()
	for i := 0; i < 3; i++ {
		_, _ = tallies.RecordReaction("a", types.ReactionLikes)
	}

	merged := tallies.Merge("a", types.ReactionTally{Hearts: 2, Likes: 1})
	if merged.Likes != 3 || merged.Hearts != 2 {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
}

func TestRank_ExampleScenario(t *testing.T) {
	participants := generateParticipants(3)
	a, b, c := participants[0].ID, participants[1].ID, participants[2].ID

	tallies := map[string]types.ReactionTally{
		a: {Hearts: 2, Likes: 1, Fire: 0},
		b: {Hearts: 0, Likes: 0, Fire: 5},
		c: {Hearts: 1, Likes: 0, Fire: 0},
	}

	ranking := Rank(participants, tallies)
	wantOrder := []string{a, b, c}
	wantScores := []int{13, 10, 5}
	for i, r := range ranking {
		if r.Participant.ID != wantOrder[i] {
			t.Fatalf("position %d: got=%q want=%q", i+1, r.Participant.ID, wantOrder[i])
		}
		if r.Score != wantScores[i] {
			t.Fatalf("score %d: got=%d want=%d", i+1, r.Score, wantScores[i])
		}
		if r.Position != i+1 {
			t.Fatalf("position field: got=%d want=%d", r.Position, i+1)
		}
	}
}

func TestRank_StableOnTies(t *testing.T) {
	participants := generateParticipants(5)
	tallies := map[string]types.ReactionTally{
		participants[0].ID: {Likes: 1},  // 3
		participants[1].ID: {Hearts: 1}, // 5
		participants[2].ID: {Likes: 1},  // 3
		participants[3].ID: {Fire: 1},   // 2
		participants[4].ID: {Hearts: 1}, // 5
	}

	ranking := Rank(participants, tallies)
	want := []string{participants[1].ID, participants[4].ID, participants[0].ID, participants[2].ID, participants[3].ID}
	for i, r := range ranking {
		if r.Participant.ID != want[i] {
			t.Fatalf("position %d: got=%q want=%q", i+1, r.Participant.ID, want[i])
		}
	}
	for i := 1; i < len(ranking); i++ {
		if ranking[i-1].Score < ranking[i].Score {
			t.Fatalf("ranking not sorted descending at %d", i)
		}
	}
}

func TestPodium(t *testing.T) {
	ranking := Rank(generateParticipants(5), nil)
	if got := len(Podium(ranking)); got != 3 {
		t.Fatalf("unexpected podium size: got=%d want=3", got)
	}
	if got := len(Podium(ranking[:2])); got != 2 {
		t.Fatalf("unexpected podium size: got=%d want=2", got)
	}
}
