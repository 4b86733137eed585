package audio

import (
	"sync"
	"time"

	"github.com/vibestore237/live-competition/internal/signaling"
	"github.com/vibestore237/live-competition/internal/types"
)

const (
	speakingThreshold = 30
	speakingThrottle  = 500 * time.Millisecond
	// アニメーションフレーム相当の間隔
	speakingCadence = 16 * time.Millisecond
)

// SpeakingDetector は周波数データの平均振幅から発話を検出して user-speaking を送る
type SpeakingDetector struct {
	sender   signaling.Sender
	identity types.Identity
	now      func() time.Time

	mu       sync.Mutex
	lastSent time.Time
}

func NewSpeakingDetector(sender signaling.Sender, identity types.Identity) *SpeakingDetector {
	return &SpeakingDetector{sender: sender, identity: identity, now: time.Now}
}

// Sample reports whether a user-speaking event was sent for freq.
func (d *SpeakingDetector) Sample(freq []byte) bool {
	if len(freq) == 0 {
		return false
	}
	sum := 0
	for _, v := range freq {
		sum += int(v)
	}
	average := float64(sum) / float64(len(freq))
	if average <= speakingThreshold {
		return false
	}

	d.mu.Lock()
	now := d.now()
	if !d.lastSent.IsZero() && now.Sub(d.lastSent) < speakingThrottle {
		d.mu.Unlock()
		return false
	}
	d.lastSent = now
	d.mu.Unlock()

	d.sender.Send(signaling.Speaking{
		UserID:   d.identity.UserID,
		UserRole: d.identity.Role,
		Volume:   average / 255,
	})
	return true
}
