package audio

import (
	"sync"
	"time"
)

const (
	PerformanceDuration     = 180 * time.Second
	DemoPerformanceDuration = 60 * time.Second
)

// PerformanceTimer は配信中の持ち時間カウントダウン。
// 0 になったら onExpire を1回だけ呼ぶ。
type PerformanceTimer struct {
	base     int
	interval time.Duration
	onExpire func()

	mu        sync.Mutex
	remaining int
	running   bool
	stop      chan struct{}
}

// NewPerformanceTimer creates a timer counting down base in one-second steps
// every interval.
func NewPerformanceTimer(base, interval time.Duration, onExpire func()) *PerformanceTimer {
	if interval <= 0 {
		interval = time.Second
	}
	seconds := int(base / time.Second)
	return &PerformanceTimer{
		base:      seconds,
		interval:  interval,
		onExpire:  onExpire,
		remaining: seconds,
	}
}

// Start resets the countdown to the base value and starts ticking.
func (t *PerformanceTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.remaining = t.base
	t.running = true
	t.stop = make(chan struct{})
	go t.run(t.stop)
}

func (t *PerformanceTimer) run(stop <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Tick()
		case <-stop:
			return
		}
	}
}

// Tick decrements the countdown by one second and returns the remaining
// seconds. Reaching zero while running fires onExpire.
func (t *PerformanceTimer) Tick() int {
	t.mu.Lock()
	if !t.running {
		remaining := t.remaining
		t.mu.Unlock()
		return remaining
	}
	if t.remaining > 0 {
		t.remaining--
	}
	remaining := t.remaining
	expired := remaining == 0
	if expired {
		t.running = false
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()

	if expired && t.onExpire != nil {
		t.onExpire()
	}
	return remaining
}

// Cancel stops the countdown and resets it to the base value. Safe to call
// any number of times.
func (t *PerformanceTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.running = false
	t.remaining = t.base
}

func (t *PerformanceTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *PerformanceTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.remaining) * time.Second
}
