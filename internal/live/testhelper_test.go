package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vibestore237/live-competition/internal/audio"
	"github.com/vibestore237/live-competition/internal/competitionapi"
	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/types"
)

var (
	adminUser     = types.Identity{UserID: "admin-1", DisplayName: "Admin", Role: types.RoleAdmin}
	organizerUser = types.Identity{UserID: "org-1", DisplayName: "Organizer", Role: types.RoleOrganizer}
	spectatorUser = types.Identity{UserID: "viewer-1", DisplayName: "Viewer", Role: types.RoleSpectator}
)

func testCompetition() *types.Competition {
	return &types.Competition{ID: "42", Title: "Live Battle", DurationMinutes: 60, OrganizerID: organizerUser.UserID}
}

func abcParticipants() []types.Participant {
	return []types.Participant{
		{ID: "A", User: types.User{ID: "ua", DisplayName: "A"}, Status: types.StatusWaiting},
		{ID: "B", User: types.User{ID: "ub", DisplayName: "B"}, Status: types.StatusWaiting},
		{ID: "C", User: types.User{ID: "uc", DisplayName: "C"}, Status: types.StatusWaiting},
	}
}

// fakeClient は接続済みのシグナリングクライアントを装う
type fakeClient struct {
	mu         sync.Mutex
	sent       []signaling.Outbound
	messages   chan signaling.Inbound
	connectErr error
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{messages: make(chan signaling.Inbound, 16)}
}

func (c *fakeClient) Connect(ctx context.Context, roomID string, identity types.Identity) error {
	return c.connectErr
}

func (c *fakeClient) Send(msg signaling.Outbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
}

func (c *fakeClient) Messages() <-chan signaling.Inbound { return c.messages }
func (c *fakeClient) State() signaling.State             { return signaling.StateOpen }
func (c *fakeClient) Simulated() bool                    { return false }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, msg := range c.sent {
		out = append(out, msg.MessageType())
	}
	return out
}

type fakeAPI struct {
	mu       sync.Mutex
	err      error
	chats    []competitionapi.ChatRequest
	reacts   []competitionapi.ReactRequest
	votes    []competitionapi.VoteRequest
	history  []types.ChatMessage
	loadErr  error
	remoteCo *types.Competition
	remotePs []types.Participant
}

func (a *fakeAPI) GetCompetition(ctx context.Context, competitionID string) (*types.Competition, error) {
	if a.loadErr != nil {
		return nil, a.loadErr
	}
	return a.remoteCo, nil
}

func (a *fakeAPI) GetParticipants(ctx context.Context, competitionID string) ([]types.Participant, error) {
	if a.loadErr != nil {
		return nil, a.loadErr
	}
	return a.remotePs, nil
}

func (a *fakeAPI) GetChat(ctx context.Context, competitionID string) ([]types.ChatMessage, error) {
	return a.history, nil
}

func (a *fakeAPI) PostChat(ctx context.Context, req competitionapi.ChatRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chats = append(a.chats, req)
	return a.err
}

func (a *fakeAPI) React(ctx context.Context, req competitionapi.ReactRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reacts = append(a.reacts, req)
	return a.err
}

func (a *fakeAPI) Vote(ctx context.Context, req competitionapi.VoteRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.votes = append(a.votes, req)
	return a.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	levels []string
	titles []string
}

func (n *recordingNotifier) record(level, title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.levels = append(n.levels, level)
	n.titles = append(n.titles, title)
}

func (n *recordingNotifier) Success(title, message string) { n.record("success", title) }
func (n *recordingNotifier) Error(title, message string)   { n.record("error", title) }
func (n *recordingNotifier) Warning(title, message string) { n.record("warning", title) }
func (n *recordingNotifier) Info(title, message string)    { n.record("info", title) }

func (n *recordingNotifier) count(level string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, l := range n.levels {
		if l == level {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) has(level, title string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.levels {
		if n.levels[i] == level && n.titles[i] == title {
			return true
		}
	}
	return false
}

type countingSource struct {
	mu       sync.Mutex
	acquired int
}

func (s *countingSource) Acquire(ctx context.Context) (audio.LocalStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired++
	return nil, errors.New("no microphone in tests")
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquired
}

func openTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	if cfg.Competition == nil {
		cfg.Competition = testCompetition()
	}
	if cfg.Participants == nil {
		cfg.Participants = abcParticipants()
	}
	if cfg.Identity.UserID == "" {
		cfg.Identity = adminUser
	}
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitFor polls the published snapshot until cond holds.
func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met, last snapshot: %+v", s.Snapshot())
	return Snapshot{}
}

func countPerforming(snap Snapshot) int {
	n := 0
	for _, p := range snap.Participants {
		if p.Status == types.StatusPerforming {
			n++
		}
	}
	return n
}

func waitShort() {
	time.Sleep(5 * time.Millisecond)
}
