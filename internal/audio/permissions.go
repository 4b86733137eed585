package audio

import "github.com/vibestore237/live-competition/internal/types"

// Permission is the result of a broadcast permission check.
type Permission struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckBroadcastPermissions は配信可否を判定する。
// 配信できるのは管理者と大会の主催者だけで、参加者も含めそれ以外は聴取のみ。
func CheckBroadcastPermissions(identity types.Identity, competition types.Competition) Permission {
	if identity.UserID == "" {
		return Permission{Reason: "not signed in"}
	}
	if identity.IsAdmin() {
		return Permission{Allowed: true}
	}
	if identity.IsOrganizerOf(competition) {
		return Permission{Allowed: true}
	}
	return Permission{Reason: "only administrators and the competition organizer can broadcast"}
}
