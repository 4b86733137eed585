package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/vibestore237/live-competition/internal/audio"
	"github.com/vibestore237/live-competition/internal/chat"
	"github.com/vibestore237/live-competition/internal/competitionapi"
	"github.com/vibestore237/live-competition/internal/notification"
	"github.com/vibestore237/live-competition/internal/scoring"
	"github.com/vibestore237/live-competition/internal/session"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/simulation"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

// DefaultTickInterval is how often the countdown is evaluated.
const DefaultTickInterval = time.Second

var ErrSessionClosed = errors.New("session closed")

// API is the part of the competition REST contract used by a session.
type API interface {
	GetCompetition(ctx context.Context, competitionID string) (*types.Competition, error)
	GetParticipants(ctx context.Context, competitionID string) ([]types.Participant, error)
	GetChat(ctx context.Context, competitionID string) ([]types.ChatMessage, error)
	PostChat(ctx context.Context, req competitionapi.ChatRequest) error
	React(ctx context.Context, req competitionapi.ReactRequest) error
	Vote(ctx context.Context, req competitionapi.VoteRequest) error
}

var _ API = (*competitionapi.Client)(nil)

// Config configures Open.
type Config struct {
	Identity      types.Identity
	CompetitionID string

	// Competition and Participants skip the initial REST fetch when set.
	Competition  *types.Competition
	Participants []types.Participant

	API API
	// Signaling overrides the client chosen from Demo/SignalingURL.
	Signaling    signaling.Client
	SignalingURL string
	// Demo selects the simulated signaling client and optimistic REST updates.
	Demo bool

	Notifier            notification.Notifier
	Source              audio.MediaSource
	ICEServers          []webrtc.ICEServer
	PerformanceDuration time.Duration
	TickInterval        time.Duration
	Personas            []simulation.Persona
}

// Session はひとつの大会のライブセッション。状態の変更はすべて run ループ上で行う。
type Session struct {
	identity      types.Identity
	competitionID string
	demo          bool

	api      API
	client   signaling.Client
	engine   *audio.Engine
	notifier notification.Notifier

	machine *session.Machine
	tallies *scoring.Tallies
	chat    *chat.Channel
	now     func() time.Time

	// run ループ専用
	competition  types.Competition
	viewerCount  int
	votes        map[string]string   // userID -> participantID
	broadcasters map[string]struct{} // ルーム内で配信中のユーザー

	commands chan func()
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closeMu  sync.Once

	snapMu      sync.RWMutex
	latest      Snapshot
	subscribers map[int]chan Snapshot
	nextSubID   int
}

// Open loads the competition, selects the signaling client and starts the
// session loop. A signaling server that cannot be reached is not an error:
// the session continues on the simulated client.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.CompetitionID == "" && cfg.Competition == nil {
		return nil, fmt.Errorf("competition id is required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Notifier == nil {
		cfg.Notifier = logNotifier{}
	}

	competition, participants, err := loadCompetition(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := connectSignaling(ctx, cfg, competition)
	if err != nil {
		return nil, err
	}

	engine, err := audio.NewEngine(audio.Config{
		Self:                cfg.Identity,
		Competition:         competition,
		Signaling:           client,
		Source:              cfg.Source,
		Notifier:            cfg.Notifier,
		ICEServers:          cfg.ICEServers,
		PerformanceDuration: cfg.PerformanceDuration,
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create audio engine: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		identity:      cfg.Identity,
		competitionID: competition.ID,
		demo:          cfg.Demo,
		api:           cfg.API,
		client:        client,
		engine:        engine,
		notifier:      cfg.Notifier,
		machine:       session.NewMachine(participants),
		tallies:       scoring.NewTallies(),
		chat:          chat.NewChannel(),
		now:           time.Now,
		competition:   competition,
		votes:         make(map[string]string),
		broadcasters:  make(map[string]struct{}),
		commands:      make(chan func()),
		ctx:           loopCtx,
		cancel:        cancel,
		subscribers:   make(map[int]chan Snapshot),
	}

	s.loadChatHistory(ctx)
	s.publish()

	s.wg.Add(1)
	go s.run(cfg.TickInterval)

	if client.Simulated() {
		runner := simulation.NewRunner(s.simulationSink(), cfg.Personas)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			runner.Run(loopCtx)
		}()
	}

	logger.Info("Live session opened",
		zap.String("competition_id", competition.ID),
		zap.String("user_id", cfg.Identity.UserID),
		zap.Bool("demo", cfg.Demo),
		zap.Bool("simulated", client.Simulated()))
	return s, nil
}

func loadCompetition(ctx context.Context, cfg Config) (types.Competition, []types.Participant, error) {
	var competition types.Competition
	switch {
	case cfg.Competition != nil:
		competition = *cfg.Competition
	case cfg.API != nil:
		c, err := cfg.API.GetCompetition(ctx, cfg.CompetitionID)
		if err == nil {
			competition = *c
			break
		}
		if !cfg.Demo {
			return types.Competition{}, nil, fmt.Errorf("failed to load competition %s: %w", cfg.CompetitionID, err)
		}
		logger.Warn("Using demo competition", zap.String("competition_id", cfg.CompetitionID), zap.Error(err))
		competition = DemoCompetition(cfg.CompetitionID)
	case cfg.Demo:
		competition = DemoCompetition(cfg.CompetitionID)
	default:
		return types.Competition{}, nil, fmt.Errorf("no competition source for %s", cfg.CompetitionID)
	}

	participants := cfg.Participants
	if participants == nil && cfg.API != nil {
		fetched, err := cfg.API.GetParticipants(ctx, competition.ID)
		if err != nil {
			logger.Warn("Failed to load participants", zap.String("competition_id", competition.ID), zap.Error(err))
		} else {
			participants = fetched
		}
	}
	if len(participants) == 0 && cfg.Demo {
		participants = DemoParticipants()
	}
	return competition, participants, nil
}

// connectSignaling picks the client once. A live client that fails to
// connect is replaced by the simulated one.
func connectSignaling(ctx context.Context, cfg Config, competition types.Competition) (signaling.Client, error) {
	client := cfg.Signaling
	if client == nil {
		if cfg.Demo || cfg.SignalingURL == "" {
			client = signaling.NewSimulatedClient()
		} else {
			client = signaling.NewWebSocketClient(signaling.WebSocketConfig{
				URL:      cfg.SignalingURL,
				Notifier: cfg.Notifier,
			})
		}
	}

	err := client.Connect(ctx, competition.RoomID(), cfg.Identity)
	if err == nil {
		return client, nil
	}
	if !signaling.IsUnavailable(err) {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect signaling: %w", err)
	}

	logger.Info("Falling back to simulated signaling", zap.Error(err))
	_ = client.Close()
	simulated := signaling.NewSimulatedClient()
	if err := simulated.Connect(ctx, competition.RoomID(), cfg.Identity); err != nil {
		return nil, err
	}
	return simulated, nil
}

func (s *Session) loadChatHistory(ctx context.Context) {
	if s.api == nil || s.demo {
		return
	}
	history, err := s.api.GetChat(ctx, s.competitionID)
	if err != nil {
		logger.Warn("Failed to load chat history", zap.Error(err))
		return
	}
	for _, msg := range history {
		s.chat.Post(msg)
	}
}

func (s *Session) run(tickInterval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	messages := s.client.Messages()

	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.commands:
			fn()
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			s.handleInbound(msg)
		case <-ticker.C:
			s.tick()
		}
		s.publish()
	}
}

// do runs fn on the session loop and waits for its result.
func (s *Session) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case s.commands <- func() { result <- fn() }:
	case <-s.ctx.Done():
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-result
}

// post queues fn on the session loop without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.ctx.Done():
	}
}

func (s *Session) tick() {
	state := s.machine.State()
	if !state.Started || state.Phase == session.PhaseResults || state.StartedAt.IsZero() {
		return
	}
	s.apply(session.Ticked{
		Elapsed: s.now().Sub(state.StartedAt),
		Total:   s.competition.TotalDuration(),
		Tallies: s.tallies.Snapshot(),
	})
}

// Close stops the loop, the simulation, the audio engine and the signaling
// client. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeMu.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.engine.Close()
		err = s.client.Close()

		s.snapMu.Lock()
		for id, ch := range s.subscribers {
			close(ch)
			delete(s.subscribers, id)
		}
		s.snapMu.Unlock()
		logger.Info("Live session closed", zap.String("competition_id", s.competitionID))
	})
	return err
}

// Simulated reports whether the session runs on the simulated client.
func (s *Session) Simulated() bool {
	return s.client.Simulated()
}

func (s *Session) Demo() bool {
	return s.demo
}

func (s *Session) CompetitionID() string {
	return s.competitionID
}

// Identity returns the local user the session was opened for.
func (s *Session) Identity() types.Identity {
	return s.identity
}

// logNotifier はトーストの配信先がないときのフォールバック
type logNotifier struct{}

func (logNotifier) Success(title, message string) {
	logger.Info(title, zap.String("message", message))
}
func (logNotifier) Error(title, message string) {
	logger.Error(title, zap.String("message", message))
}
func (logNotifier) Warning(title, message string) {
	logger.Warn(title, zap.String("message", message))
}
func (logNotifier) Info(title, message string) {
	logger.Info(title, zap.String("message", message))
}
