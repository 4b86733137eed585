package chat

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/vibestore237/live-competition/internal/types"
)

// MaxMessages はクライアント側で保持するメッセージ数の上限
const MaxMessages = 50

// SystemAuthor is the author name used for injected system messages.
const SystemAuthor = "System"

// Flags marks special messages.
type Flags struct {
	IsOwn    bool
	IsWinner bool
}

// Channel は受信順に並んだチャットの有界バッファ。古いものから捨てる。
type Channel struct {
	mu       sync.RWMutex
	messages []types.ChatMessage
	now      func() time.Time
}

func NewChannel() *Channel {
	return &Channel{
		messages: make([]types.ChatMessage, 0, MaxMessages),
		now:      time.Now,
	}
}

// Post appends msg in receipt order. Missing id/timestamp are filled in.
func (c *Channel) Post(msg types.ChatMessage) types.ChatMessage {
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) >= MaxMessages {
		// 先頭（最古）を捨てる
		drop := len(c.messages) - MaxMessages + 1
		copy(c.messages, c.messages[drop:])
		c.messages = c.messages[:len(c.messages)-drop]
	}
	c.messages = append(c.messages, msg)
	return msg
}

// PostSystem posts a system message.
func (c *Channel) PostSystem(text string, flags Flags) types.ChatMessage {
	return c.Post(types.ChatMessage{
		Author:   SystemAuthor,
		Body:     text,
		IsSystem: true,
		IsOwn:    flags.IsOwn,
		IsWinner: flags.IsWinner,
	})
}

// Messages returns a copy of the retained messages, oldest first.
func (c *Channel) Messages() []types.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

func newMessageID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "msg-" + time.Now().Format("150405.000000000")
	}
	return id
}
