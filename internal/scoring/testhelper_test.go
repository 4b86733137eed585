package scoring

import (
	"fmt"

	"github.com/vibestore237/live-competition/internal/types"
)

// generateParticipants はN人分のテスト参加者を決定論的に生成する。
func generateParticipants(n int) []types.Participant {
	participants := make([]types.Participant, 0, n)
	for i := 0; i < n; i++ {
		participants = append(participants, types.Participant{
			ID: fmt.Sprintf("p-%03d", i+1),
			User: types.User{
				ID:          fmt.Sprintf("user-%03d", i+1),
				DisplayName: fmt.Sprintf("User %03d", i+1),
			},
			PerformanceTitle: fmt.Sprintf("Track %d", i+1),
			Status:           types.StatusWaiting,
		})
	}
	return participants
}
