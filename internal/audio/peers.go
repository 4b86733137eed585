package audio

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/signaling"
	"go.uber.org/zap"
)

// peer は1人のリモートユーザーとの PeerConnection
type peer struct {
	userID string
	pc     *webrtc.PeerConnection

	// mu serializes description/candidate handling on pc
	mu          sync.Mutex
	remoteSet   bool
	pending     []webrtc.ICECandidateInit
	trackSender *webrtc.RTPSender
}

// addCandidate はリモート記述が未設定なら候補をキューに積む
func (p *peer) addCandidate(candidate webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.remoteSet {
		p.pending = append(p.pending, candidate)
		return nil
	}
	return p.pc.AddICECandidate(candidate)
}

// setRemoteDescription applies desc and flushes queued candidates.
func (p *peer) setRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	p.remoteSet = true

	pending := p.pending
	p.pending = nil
	for _, candidate := range pending {
		if err := p.pc.AddICECandidate(candidate); err != nil {
			logger.Warn("Failed to add queued ICE candidate",
				zap.String("peer", p.userID),
				zap.Error(err))
		}
	}
	return nil
}

func (p *peer) pendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *peer) attachTrack(track webrtc.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.trackSender = sender
	p.mu.Unlock()
	return nil
}

func (p *peer) detachTrack() {
	p.mu.Lock()
	sender := p.trackSender
	p.trackSender = nil
	p.mu.Unlock()
	if sender == nil {
		return
	}
	if err := p.pc.RemoveTrack(sender); err != nil {
		logger.Debug("Failed to remove track", zap.String("peer", p.userID), zap.Error(err))
	}
}

func (p *peer) close() {
	if err := p.pc.Close(); err != nil {
		logger.Debug("Failed to close peer connection", zap.String("peer", p.userID), zap.Error(err))
	}
}

// newAPI はOpus を含む標準コーデックを登録した pion API を作る
func newAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
	), nil
}

// newPeer creates a peer connection wired to signaling and registers it,
// replacing any previous connection to the same user.
func (e *Engine) newPeer(userID string) (*peer, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.iceServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	p := &peer{userID: userID, pc: pc}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		e.signal.Send(signaling.ICECandidate{TargetUserID: userID, Candidate: candidate.ToJSON()})
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		e.handleICEStateChange(p, state)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.handleRemoteTrack(p, track)
	})

	e.mu.Lock()
	previous := e.peers[userID]
	e.peers[userID] = p
	// ピア作成前に届いた候補を引き継ぐ
	p.pending = append(p.pending, e.orphanCandidates[userID]...)
	delete(e.orphanCandidates, userID)
	e.mu.Unlock()

	if previous != nil {
		previous.close()
	}
	return p, nil
}

func (e *Engine) peer(userID string) *peer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peers[userID]
}

// dropPeer removes p if it is still the registered peer for its user.
func (e *Engine) dropPeer(p *peer) {
	e.mu.Lock()
	current, ok := e.peers[p.userID]
	if ok && current == p {
		delete(e.peers, p.userID)
		delete(e.remotes, p.userID)
	}
	e.mu.Unlock()

	if ok && current == p {
		p.close()
	}
}

func (e *Engine) closePeer(userID string) {
	if p := e.peer(userID); p != nil {
		e.dropPeer(p)
	}
}

func (e *Engine) handleICEStateChange(p *peer, state webrtc.ICEConnectionState) {
	logger.Info("ICE state change",
		zap.String("peer", p.userID),
		zap.String("state", state.String()))

	switch state {
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		// 失敗したピアだけ落とす
		go e.dropPeer(p)
	}
}

func (e *Engine) handleRemoteTrack(p *peer, track *webrtc.TrackRemote) {
	e.mu.Lock()
	if current, ok := e.peers[p.userID]; !ok || current != p {
		e.mu.Unlock()
		return
	}
	rs := newRemoteStream(p.userID, track)
	e.remotes[p.userID] = rs
	e.mu.Unlock()

	logger.Info("Remote audio track received",
		zap.String("peer", p.userID),
		zap.String("codec", rs.MimeType))
}

// ConnectToPeer starts an outbound handshake with userID. A broadcasting
// engine sends its track; otherwise a receive-only transceiver is offered.
func (e *Engine) ConnectToPeer(userID string) error {
	p, err := e.newPeer(userID)
	if err != nil {
		return err
	}

	if track := e.localTrack(); track != nil {
		if err := p.attachTrack(track); err != nil {
			e.dropPeer(p)
			return fmt.Errorf("failed to attach track for %s: %w", userID, err)
		}
	} else {
		_, err := p.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			e.dropPeer(p)
			return fmt.Errorf("failed to add transceiver for %s: %w", userID, err)
		}
	}

	if err := e.sendOffer(p); err != nil {
		e.dropPeer(p)
		return err
	}
	return nil
}

func (e *Engine) sendOffer(p *peer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer for %s: %w", p.userID, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description for %s: %w", p.userID, err)
	}
	e.signal.Send(signaling.Offer{TargetUserID: p.userID, Offer: offer})
	return nil
}

func (e *Engine) handleOffer(from string, offer webrtc.SessionDescription) error {
	if !e.Listening() && !e.Broadcasting() {
		return fmt.Errorf("offer from %s: %w", from, ErrNotListening)
	}

	p, err := e.newPeer(from)
	if err != nil {
		return err
	}
	if track := e.localTrack(); track != nil {
		if err := p.attachTrack(track); err != nil {
			e.dropPeer(p)
			return fmt.Errorf("failed to attach track for %s: %w", from, err)
		}
	}

	if err := p.setRemoteDescription(offer); err != nil {
		e.dropPeer(p)
		return fmt.Errorf("failed to set remote offer from %s: %w", from, err)
	}

	p.mu.Lock()
	answer, err := p.pc.CreateAnswer(nil)
	if err == nil {
		err = p.pc.SetLocalDescription(answer)
	}
	p.mu.Unlock()
	if err != nil {
		e.dropPeer(p)
		return fmt.Errorf("failed to answer %s: %w", from, err)
	}

	e.signal.Send(signaling.Answer{TargetUserID: from, Answer: answer})
	return nil
}

func (e *Engine) handleAnswer(from string, answer webrtc.SessionDescription) error {
	p := e.peer(from)
	if p == nil {
		return fmt.Errorf("answer from %s: %w", from, ErrUnknownPeer)
	}
	if err := p.setRemoteDescription(answer); err != nil {
		e.dropPeer(p)
		return fmt.Errorf("failed to set remote answer from %s: %w", from, err)
	}
	return nil
}

func (e *Engine) handleCandidate(from string, candidate webrtc.ICECandidateInit) error {
	e.mu.Lock()
	p := e.peers[from]
	if p == nil {
		e.orphanCandidates[from] = append(e.orphanCandidates[from], candidate)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := p.addCandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ICE candidate from %s: %w", from, err)
	}
	return nil
}

// pendingCandidates returns the number of queued candidates for userID.
func (e *Engine) pendingCandidates(userID string) int {
	e.mu.Lock()
	p := e.peers[userID]
	orphans := len(e.orphanCandidates[userID])
	e.mu.Unlock()
	if p == nil {
		return orphans
	}
	return p.pendingCount()
}
