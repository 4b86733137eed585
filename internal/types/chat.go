package types

import "time"

// ChatMessage はライブチャットの1メッセージ
type ChatMessage struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	IsSystem  bool      `json:"is_system"`
	IsOwn     bool      `json:"is_own"`
	IsWinner  bool      `json:"is_winner"`
}

// ReactionKind は観客リアクションの種類
type ReactionKind string

const (
	ReactionHearts ReactionKind = "hearts"
	ReactionLikes  ReactionKind = "likes"
	ReactionFire   ReactionKind = "fire"
)

func (k ReactionKind) Valid() bool {
	switch k {
	case ReactionHearts, ReactionLikes, ReactionFire:
		return true
	}
	return false
}

// ReactionTally は参加者ごとのリアクション集計
type ReactionTally struct {
	Hearts int `json:"hearts"`
	Likes  int `json:"likes"`
	Fire   int `json:"fire"`
}

// Total returns the number of reactions in the tally.
func (t ReactionTally) Total() int {
	return t.Hearts + t.Likes + t.Fire
}
