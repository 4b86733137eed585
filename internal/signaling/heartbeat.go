package signaling

import (
	"sync"
	"time"
)

const HeartbeatInterval = 30 * time.Second

// HeartbeatLoop sends a heartbeat message every interval while running.
type HeartbeatLoop struct {
	sender   Sender
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

func NewHeartbeatLoop(sender Sender, interval time.Duration) *HeartbeatLoop {
	if interval <= 0 {
		interval = HeartbeatInterval
	}
	return &HeartbeatLoop{sender: sender, interval: interval}
}

// Start は二重に呼んでも1本のループしか動かさない
func (h *HeartbeatLoop) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		return
	}
	h.stop = make(chan struct{})
	go h.run(h.stop)
}

func (h *HeartbeatLoop) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop == nil {
		return
	}
	close(h.stop)
	h.stop = nil
}

func (h *HeartbeatLoop) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stop != nil
}

func (h *HeartbeatLoop) run(stop <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case t := <-ticker.C:
			h.sender.Send(Heartbeat{Timestamp: t.UnixMilli()})
		case <-stop:
			return
		}
	}
}
