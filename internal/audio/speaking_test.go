package audio

import (
	"bytes"
	"testing"
	"time"

	"github.com/vibestore237/live-competition/internal/signaling"
)

func TestSpeakingDetector(t *testing.T) {
	sender := &recordingSender{}
	detector := NewSpeakingDetector(sender, organizerUser)
	now := time.Unix(1000, 0)
	detector.now = func() time.Time { return now }

	quiet := bytes.Repeat([]byte{speakingThreshold}, frequencyBins)
	loud := bytes.Repeat([]byte{102}, frequencyBins)

	if detector.Sample(quiet) {
		t.Fatalf("average at threshold should not count as speaking")
	}
	if detector.Sample(nil) {
		t.Fatalf("empty data should not count as speaking")
	}
	if !detector.Sample(loud) {
		t.Fatalf("loud sample should emit user-speaking")
	}

	now = now.Add(100 * time.Millisecond)
	if detector.Sample(loud) {
		t.Fatalf("events within the throttle window should be suppressed")
	}

	now = now.Add(speakingThrottle)
	if !detector.Sample(loud) {
		t.Fatalf("event after the throttle window expected")
	}

	msgs := sender.messages()
	if len(msgs) != 2 {
		t.Fatalf("unexpected message count: got=%d want=2", len(msgs))
	}
	speaking, ok := msgs[0].(signaling.Speaking)
	if !ok || speaking.UserID != organizerUser.UserID || speaking.Volume != 0.4 {
		t.Fatalf("unexpected message: %#v", msgs[0])
	}
}
