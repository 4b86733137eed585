package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/types"
)

var (
	competition = types.Competition{ID: "42", Title: "Friday Night", OrganizerID: "org-1"}

	adminUser     = types.Identity{UserID: "admin-1", DisplayName: "Admin", Role: types.RoleAdmin}
	organizerUser = types.Identity{UserID: "org-1", DisplayName: "Organizer", Role: types.RoleOrganizer}
	performerUser = types.Identity{UserID: "perf-1", DisplayName: "Performer", Role: types.RoleParticipant}
	spectatorUser = types.Identity{UserID: "viewer-1", DisplayName: "Viewer", Role: types.RoleSpectator}
)

type recordingSender struct {
	mu   sync.Mutex
	sent []signaling.Outbound
}

func (s *recordingSender) Send(msg signaling.Outbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
}

func (s *recordingSender) messages() []signaling.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signaling.Outbound, len(s.sent))
	copy(out, s.sent)
	return out
}

func countType(msgs []signaling.Outbound, msgType string) int {
	n := 0
	for _, m := range msgs {
		if m.MessageType() == msgType {
			n++
		}
	}
	return n
}

type fakeStream struct {
	track   *webrtc.TrackLocalStaticSample
	stopped atomic.Int32
}

func (s *fakeStream) Track() webrtc.TrackLocal { return s.track }
func (s *fakeStream) FrequencyData() []byte    { return make([]byte, frequencyBins) }
func (s *fakeStream) Stop()                    { s.stopped.Add(1) }

type fakeSource struct {
	err      error
	acquired atomic.Int32
	stream   *fakeStream
}

func (s *fakeSource) Acquire(ctx context.Context) (LocalStream, error) {
	s.acquired.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.stream, nil
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio", "test",
	)
	if err != nil {
		t.Fatalf("failed to create track: %v", err)
	}
	return &fakeSource{stream: &fakeStream{track: track}}
}

func newFailingSource() *fakeSource {
	return &fakeSource{err: errors.New("microphone busy")}
}

type recordingNotifier struct {
	mu       sync.Mutex
	warnings []string
}

func (n *recordingNotifier) Success(string, string) {}
func (n *recordingNotifier) Error(string, string)   {}
func (n *recordingNotifier) Info(string, string)    {}
func (n *recordingNotifier) Warning(title, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warnings = append(n.warnings, title)
}

func (n *recordingNotifier) warningCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.warnings)
}

func newTestEngine(t *testing.T, sender *recordingSender, source MediaSource, notifier *recordingNotifier, duration time.Duration) *Engine {
	t.Helper()
	cfg := Config{
		Self:                organizerUser,
		Competition:         competition,
		Signaling:           sender,
		Source:              source,
		PerformanceDuration: duration,
		HeartbeatInterval:   time.Hour,
		TimerInterval:       time.Hour,
	}
	if notifier != nil {
		cfg.Notifier = notifier
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}
