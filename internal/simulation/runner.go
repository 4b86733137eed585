package simulation

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

const (
	MinInterval = 3 * time.Second
	MaxInterval = 5 * time.Second

	// 1ラウンドあたりの確率（%）
	chatChance     = 60
	reactionChance = 80
	rotationChance = 10
)

// Sink receives perturbations. The live session implements it by queueing
// them onto its event loop.
type Sink interface {
	AdjustViewers(delta int)
	PostSimulatedChat(author, body string)
	SimulateReaction(kind types.ReactionKind)
	// Started reports whether the competition was explicitly started.
	Started() bool
	RotatePerformer()
}

// Persona is a synthetic audience member.
type Persona struct {
	Name     string
	Messages []string
}

// DefaultPersonas はデモ用の観客
var DefaultPersonas = []Persona{
	{Name: "BeatHunter", Messages: []string{"This beat is crazy 🔥", "Turn it up!", "Who produced this?"}},
	{Name: "MelodyQueen", Messages: []string{"Those vocals 😍", "Chills every time", "Encore!"}},
	{Name: "LagosVibes", Messages: []string{"Greetings from Lagos 🇳🇬", "Afrobeats to the world!", "We move 🙌"}},
	{Name: "DJ_Kofi", Messages: []string{"Clean transition", "That drop though", "Respect 👏"}},
	{Name: "SoundWave237", Messages: []string{"Cameroon in the building 🇨🇲", "Vote vote vote!", "Best set tonight"}},
}

var reactionKinds = []types.ReactionKind{types.ReactionHearts, types.ReactionLikes, types.ReactionFire}

// randomInt returns a value in [0, n).
var randomInt = func(n int) int {
	return rand.IntN(n)
}

// Runner は一定間隔でシグナリングサーバーの代わりにローカルの状態を揺らす
type Runner struct {
	sink     Sink
	personas []Persona
}

func NewRunner(sink Sink, personas []Persona) *Runner {
	if len(personas) == 0 {
		personas = DefaultPersonas
	}
	return &Runner{sink: sink, personas: personas}
}

// NextInterval returns a random interval in [MinInterval, MaxInterval].
func NextInterval() time.Duration {
	spread := int((MaxInterval - MinInterval) / time.Millisecond)
	return MinInterval + time.Duration(randomInt(spread+1))*time.Millisecond
}

// Run performs a perturbation round after every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	logger.Info("Simulation started")
	timer := time.NewTimer(NextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Simulation stopped")
			return
		case <-timer.C:
			r.Step()
			timer.Reset(NextInterval())
		}
	}
}

// Step performs one perturbation round.
func (r *Runner) Step() {
	// 視聴者数のゆらぎ: -2..+3
	r.sink.AdjustViewers(randomInt(6) - 2)

	if randomInt(100) < chatChance {
		persona := r.personas[randomInt(len(r.personas))]
		if len(persona.Messages) > 0 {
			r.sink.PostSimulatedChat(persona.Name, persona.Messages[randomInt(len(persona.Messages))])
		}
	}

	if randomInt(100) < reactionChance {
		count := 1 + randomInt(3)
		for i := 0; i < count; i++ {
			r.sink.SimulateReaction(reactionKinds[randomInt(len(reactionKinds))])
		}
	}

	if r.sink.Started() && randomInt(100) < rotationChance {
		logger.Debug("Simulation rotating performer", zap.Int("chance", rotationChance))
		r.sink.RotatePerformer()
	}
}
