package audio

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/vibestore237/live-competition/internal/notification"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

// Config configures an Engine.
type Config struct {
	// Self is the local user; messages from Self are ignored.
	Self        types.Identity
	Competition types.Competition
	Signaling   signaling.Sender
	Source      MediaSource
	Notifier    notification.Notifier
	ICEServers  []webrtc.ICEServer

	PerformanceDuration time.Duration
	HeartbeatInterval   time.Duration
	// TimerInterval is the real time between countdown steps (1s by default).
	TimerInterval time.Duration
}

// Engine は配信・聴取と WebRTC ピアを管理する
type Engine struct {
	self       types.Identity
	signal     signaling.Sender
	source     MediaSource
	notifier   notification.Notifier
	iceServers []webrtc.ICEServer
	api        *webrtc.API

	timer     *PerformanceTimer
	heartbeat *signaling.HeartbeatLoop

	// broadcastMu serializes StartBroadcast/StopBroadcast
	broadcastMu sync.Mutex

	mu               sync.Mutex
	competition      types.Competition
	broadcasting     bool
	broadcaster      types.Identity
	listening        bool
	stream           LocalStream
	speakingStop     chan struct{}
	peers            map[string]*peer
	remotes          map[string]*RemoteStream
	orphanCandidates map[string][]webrtc.ICECandidateInit
	remoteSpeaker    string
}

func NewEngine(cfg Config) (*Engine, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	if cfg.PerformanceDuration <= 0 {
		cfg.PerformanceDuration = PerformanceDuration
	}

	e := &Engine{
		self:             cfg.Self,
		signal:           cfg.Signaling,
		source:           cfg.Source,
		notifier:         cfg.Notifier,
		iceServers:       cfg.ICEServers,
		api:              api,
		heartbeat:        signaling.NewHeartbeatLoop(cfg.Signaling, cfg.HeartbeatInterval),
		competition:      cfg.Competition,
		peers:            make(map[string]*peer),
		remotes:          make(map[string]*RemoteStream),
		orphanCandidates: make(map[string][]webrtc.ICECandidateInit),
	}
	e.timer = NewPerformanceTimer(cfg.PerformanceDuration, cfg.TimerInterval, e.onTimerExpired)
	return e, nil
}

// SetCompetition updates the competition used for permission checks.
func (e *Engine) SetCompetition(c types.Competition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.competition = c
}

func (e *Engine) CheckBroadcastPermissions(identity types.Identity) Permission {
	e.mu.Lock()
	competition := e.competition
	e.mu.Unlock()
	return CheckBroadcastPermissions(identity, competition)
}

// StartBroadcast checks permissions before touching the media source.
// Calling it while already broadcasting is a no-op.
func (e *Engine) StartBroadcast(ctx context.Context, identity types.Identity) error {
	permission := e.CheckBroadcastPermissions(identity)
	if !permission.Allowed {
		logger.Warn("Broadcast not permitted",
			zap.String("user_id", identity.UserID),
			zap.String("role", string(identity.Role)),
			zap.String("reason", permission.Reason))
		return &PermissionError{UserID: identity.UserID, Role: identity.Role, Reason: permission.Reason}
	}

	e.broadcastMu.Lock()
	defer e.broadcastMu.Unlock()

	if e.Broadcasting() {
		logger.Debug("Already broadcasting", zap.String("user_id", identity.UserID))
		return nil
	}
	if e.source == nil {
		return &MediaError{Op: "acquire", Err: ErrNoMediaSource}
	}

	stream, err := e.source.Acquire(ctx)
	if err != nil {
		logger.Error("Failed to acquire local audio", zap.Error(err))
		return &MediaError{Op: "acquire", Err: err}
	}

	e.mu.Lock()
	e.broadcasting = true
	e.broadcaster = identity
	e.stream = stream
	peers := make([]*peer, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()

	// 既存のピアにトラックを追加して再ネゴシエーション
	for _, p := range peers {
		if err := p.attachTrack(stream.Track()); err != nil {
			logger.Warn("Failed to attach track to peer", zap.String("peer", p.userID), zap.Error(err))
			e.dropPeer(p)
			continue
		}
		if err := e.sendOffer(p); err != nil {
			logger.Warn("Failed to renegotiate peer", zap.String("peer", p.userID), zap.Error(err))
			e.dropPeer(p)
		}
	}

	e.signal.Send(signaling.StartBroadcasting{
		UserID:   identity.UserID,
		UserName: identity.DisplayName,
		UserRole: identity.Role,
	})

	e.startSpeakingDetection(stream, identity)
	e.heartbeat.Start()
	if !identity.IsAdmin() {
		e.timer.Start()
	}

	logger.Info("Broadcast started",
		zap.String("user_id", identity.UserID),
		zap.Bool("timed", !identity.IsAdmin()))
	return nil
}

// StopBroadcast releases the local stream. Safe to call when not broadcasting.
func (e *Engine) StopBroadcast() {
	e.broadcastMu.Lock()
	defer e.broadcastMu.Unlock()

	e.mu.Lock()
	if !e.broadcasting {
		e.mu.Unlock()
		return
	}
	e.broadcasting = false
	stream := e.stream
	e.stream = nil
	identity := e.broadcaster
	e.broadcaster = types.Identity{}
	speakingStop := e.speakingStop
	e.speakingStop = nil
	peers := make([]*peer, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.Unlock()

	if speakingStop != nil {
		close(speakingStop)
	}
	e.heartbeat.Stop()
	e.timer.Cancel()

	for _, p := range peers {
		p.detachTrack()
	}
	if stream != nil {
		stream.Stop()
	}

	e.signal.Send(signaling.StopBroadcasting{
		UserID:   identity.UserID,
		UserName: identity.DisplayName,
		UserRole: identity.Role,
	})
	logger.Info("Broadcast stopped", zap.String("user_id", identity.UserID))
}

// onTimerExpired は持ち時間切れで配信を止める
func (e *Engine) onTimerExpired() {
	if !e.Broadcasting() {
		return
	}
	logger.Info("Performance time elapsed, stopping broadcast")
	e.StopBroadcast()
	if e.notifier != nil {
		e.notifier.Warning("Time elapsed", "Your performance time is over. The broadcast has been stopped.")
	}
}

func (e *Engine) startSpeakingDetection(stream LocalStream, identity types.Identity) {
	detector := NewSpeakingDetector(e.signal, identity)
	stop := make(chan struct{})

	e.mu.Lock()
	e.speakingStop = stop
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(speakingCadence)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				detector.Sample(stream.FrequencyData())
			case <-stop:
				return
			}
		}
	}()
}

func (e *Engine) StartListening() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listening = true
}

// StopListening tears down every peer and remote stream.
func (e *Engine) StopListening() {
	e.mu.Lock()
	e.listening = false
	e.mu.Unlock()
	e.closeAllPeers()
}

func (e *Engine) closeAllPeers() {
	e.mu.Lock()
	peers := e.peers
	e.peers = make(map[string]*peer)
	e.remotes = make(map[string]*RemoteStream)
	e.orphanCandidates = make(map[string][]webrtc.ICECandidateInit)
	e.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
}

func (e *Engine) Broadcasting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.broadcasting
}

func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening
}

// Broadcaster returns the identity currently broadcasting from this engine.
func (e *Engine) Broadcaster() (types.Identity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.broadcaster, e.broadcasting
}

func (e *Engine) localTrack() webrtc.TrackLocal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.broadcasting || e.stream == nil {
		return nil
	}
	return e.stream.Track()
}

// HandleSignal reacts to WebRTC relays and room membership changes.
func (e *Engine) HandleSignal(msg signaling.Inbound) {
	var err error
	switch m := msg.(type) {
	case signaling.RemoteOffer:
		err = e.handleOffer(m.FromUserID, m.Offer)
	case signaling.RemoteAnswer:
		err = e.handleAnswer(m.FromUserID, m.Answer)
	case signaling.RemoteICECandidate:
		err = e.handleCandidate(m.FromUserID, m.Candidate)
	case signaling.UserJoined:
		// 配信中なら新しいリスナーにオファーする
		if m.UserID != e.self.UserID && e.Broadcasting() {
			err = e.ConnectToPeer(m.UserID)
		}
	case signaling.UserLeft:
		e.closePeer(m.UserID)
	case signaling.BroadcastingStarted:
		if m.UserID != e.self.UserID && e.Listening() && e.peer(m.UserID) == nil {
			err = e.ConnectToPeer(m.UserID)
		}
	case signaling.BroadcastingStopped:
		if m.UserID != e.self.UserID && !e.Broadcasting() {
			e.closePeer(m.UserID)
		}
	case signaling.UserSpeaking:
		e.mu.Lock()
		e.remoteSpeaker = m.UserID
		e.mu.Unlock()
	}

	if err != nil {
		if errors.Is(err, ErrNotListening) {
			logger.Debug("Ignoring WebRTC signal", zap.Error(err))
			return
		}
		logger.Warn("WebRTC signal handling failed", zap.Error(err))
	}
}

// PeerStatus describes one remote peer.
type PeerStatus struct {
	UserID  string `json:"user_id"`
	Receive bool   `json:"receiving"`
	Packets int64  `json:"packets"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Broadcasting    bool          `json:"broadcasting"`
	Broadcaster     string        `json:"broadcaster,omitempty"`
	Listening       bool          `json:"listening"`
	TimerRunning    bool          `json:"timer_running"`
	TimerRemaining  time.Duration `json:"timer_remaining"`
	LastRemoteSpeak string        `json:"last_remote_speaker,omitempty"`
	Peers           []PeerStatus  `json:"peers"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	status := Status{
		Broadcasting:    e.broadcasting,
		Broadcaster:     e.broadcaster.UserID,
		Listening:       e.listening,
		LastRemoteSpeak: e.remoteSpeaker,
		Peers:           make([]PeerStatus, 0, len(e.peers)),
	}
	for userID := range e.peers {
		ps := PeerStatus{UserID: userID}
		if rs, ok := e.remotes[userID]; ok {
			ps.Receive = true
			ps.Packets = rs.Packets()
		}
		status.Peers = append(status.Peers, ps)
	}
	e.mu.Unlock()

	sort.Slice(status.Peers, func(i, j int) bool { return status.Peers[i].UserID < status.Peers[j].UserID })
	status.TimerRunning = e.timer.Running()
	status.TimerRemaining = e.timer.Remaining()
	return status
}

// Close stops broadcasting and closes all peers.
func (e *Engine) Close() {
	e.StopBroadcast()
	e.timer.Cancel()
	e.StopListening()
}
