package live

import (
	"time"

	"github.com/vibestore237/live-competition/internal/types"
)

// DemoCompetition returns the competition used when demo mode has nothing
// to load.
func DemoCompetition(id string) types.Competition {
	if id == "" {
		id = "demo"
	}
	now := time.Now()
	return types.Competition{
		ID:                  id,
		Title:               "VibeStore237 Live Battle",
		Category:            "Afrobeats",
		MaxParticipants:     10,
		CurrentParticipants: 3,
		StartDate:           now.Format("2006-01-02"),
		StartTime:           now.Format("15:04"),
		DurationMinutes:     15,
		OrganizerID:         "demo-organizer",
	}
}

// DemoParticipants returns three waiting participants in performance order.
func DemoParticipants() []types.Participant {
	return []types.Participant{
		{ID: "demo-p1", User: types.User{ID: "demo-u1", DisplayName: "Ama Kofi"}, PerformanceTitle: "Sunrise in Douala", Status: types.StatusWaiting},
		{ID: "demo-p2", User: types.User{ID: "demo-u2", DisplayName: "Ngozi Beats"}, PerformanceTitle: "Lagos Nights", Status: types.StatusWaiting},
		{ID: "demo-p3", User: types.User{ID: "demo-u3", DisplayName: "Yaoundé Flow"}, PerformanceTitle: "Mboa Groove", Status: types.StatusWaiting},
	}
}
