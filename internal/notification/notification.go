package notification

import (
	"sync"
	"time"

	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

// Level はトーストの種類
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Notifier is the toast contract used across the session.
type Notifier interface {
	Success(title, message string)
	Error(title, message string)
	Warning(title, message string)
	Info(title, message string)
}

// Toast represents a notice to be displayed by the UI
type Toast struct {
	Level    Level     `json:"level"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Duration int       `json:"duration"` // seconds
	At       time.Time `json:"at"`
}

// Broadcaster delivers a toast to connected UI clients.
type Broadcaster func(toast Toast)

const (
	queueSize  = 100
	recentSize = 20
)

// Queue は通知をキューに積み、別goroutineで順番に配信する
type Queue struct {
	broadcast Broadcaster
	duration  time.Duration

	queue chan Toast
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	recent []Toast
}

// NewQueue starts the queue processor. broadcast may be nil, in which case
// toasts are only logged.
func NewQueue(broadcast Broadcaster, displayDuration time.Duration) *Queue {
	if displayDuration < time.Second || displayDuration > time.Minute {
		displayDuration = 5 * time.Second
	}
	q := &Queue{
		broadcast: broadcast,
		duration:  displayDuration,
		queue:     make(chan Toast, queueSize),
		done:      make(chan struct{}),
	}
	q.wg.Add(1)
	go q.process()
	logger.Info("Notification queue started", zap.Duration("display_duration", displayDuration))
	return q
}

func (q *Queue) Success(title, message string) { q.enqueue(LevelSuccess, title, message) }
func (q *Queue) Error(title, message string)   { q.enqueue(LevelError, title, message) }
func (q *Queue) Warning(title, message string) { q.enqueue(LevelWarning, title, message) }
func (q *Queue) Info(title, message string)    { q.enqueue(LevelInfo, title, message) }

func (q *Queue) enqueue(level Level, title, message string) {
	toast := Toast{
		Level:    level,
		Title:    title,
		Message:  message,
		Duration: int(q.duration / time.Second),
		At:       time.Now(),
	}

	select {
	case <-q.done:
		logger.Debug("Notification queue closed, dropping toast", zap.String("title", title))
		return
	default:
	}

	select {
	case q.queue <- toast:
	default:
		// キューが満杯の場合
		logger.Warn("Notification queue is full, dropping toast",
			zap.String("level", string(level)),
			zap.String("title", title))
	}
}

func (q *Queue) process() {
	defer q.wg.Done()
	for {
		select {
		case toast := <-q.queue:
			q.deliver(toast)
		case <-q.done:
			// 残っている通知は配信してから終了
			for {
				select {
				case toast := <-q.queue:
					q.deliver(toast)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(toast Toast) {
	fields := []zap.Field{zap.String("title", toast.Title), zap.String("message", toast.Message)}
	switch toast.Level {
	case LevelError:
		logger.Error("Toast", fields...)
	case LevelWarning:
		logger.Warn("Toast", fields...)
	default:
		logger.Info("Toast", append(fields, zap.String("level", string(toast.Level)))...)
	}

	q.mu.Lock()
	q.recent = append(q.recent, toast)
	if len(q.recent) > recentSize {
		q.recent = q.recent[len(q.recent)-recentSize:]
	}
	q.mu.Unlock()

	if q.broadcast != nil {
		q.broadcast(toast)
	}
}

// Recent returns the most recently delivered toasts, oldest first.
func (q *Queue) Recent() []Toast {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Toast, len(q.recent))
	copy(out, q.recent)
	return out
}

// Close stops the processor after draining queued toasts.
func (q *Queue) Close() {
	select {
	case <-q.done:
		return
	default:
		close(q.done)
	}
	q.wg.Wait()
}
