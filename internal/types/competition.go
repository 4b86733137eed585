package types

import (
	"fmt"
	"time"
)

// Competition はライブコンペティションの基本情報（セッション中は読み取り専用）
type Competition struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	Category            string  `json:"category"`
	EntryFee            float64 `json:"entry_fee"`
	MaxParticipants     int     `json:"max_participants"`
	CurrentParticipants int     `json:"current_participants"`
	StartDate           string  `json:"start_date"` // YYYY-MM-DD
	StartTime           string  `json:"start_time"` // HH:MM
	DurationMinutes     int     `json:"duration"`
	OrganizerID         string  `json:"organizer_id"`
}

// RoomID returns the signaling room for the competition.
func (c Competition) RoomID() string {
	return fmt.Sprintf("competition_%s", c.ID)
}

// TotalDuration returns the configured session length. Zero or negative
// durations fall back to one hour.
func (c Competition) TotalDuration() time.Duration {
	if c.DurationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.DurationMinutes) * time.Minute
}

// ScheduledStart parses StartDate/StartTime in the given location.
func (c Competition) ScheduledStart(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	value := c.StartDate
	layout := "2006-01-02"
	if c.StartTime != "" {
		value += " " + c.StartTime
		layout += " 15:04"
	}
	return time.ParseInLocation(layout, value, loc)
}

type ParticipantStatus string

const (
	StatusWaiting    ParticipantStatus = "waiting"
	StatusPerforming ParticipantStatus = "performing"
	StatusCompleted  ParticipantStatus = "completed"
)

// User は参加者に紐づくユーザー情報
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Participant はコンペティションの参加者。登録順はスライスの順序で表す。
type Participant struct {
	ID               string            `json:"id"`
	User             User              `json:"user"`
	PerformanceTitle string            `json:"performance_title"`
	Status           ParticipantStatus `json:"status"`
}

// Name returns the display name, falling back to the participant id.
func (p Participant) Name() string {
	if p.User.DisplayName != "" {
		return p.User.DisplayName
	}
	return p.ID
}
