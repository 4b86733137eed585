package audio

import (
	"testing"

	"github.com/vibestore237/live-competition/internal/types"
)

func TestCheckBroadcastPermissions(t *testing.T) {
	tests := []struct {
		name     string
		identity types.Identity
		allowed  bool
	}{
		{name: "admin", identity: adminUser, allowed: true},
		{name: "organizer of competition", identity: organizerUser, allowed: true},
		{name: "organizer role of another competition", identity: types.Identity{UserID: "org-2", Role: types.RoleOrganizer}, allowed: false},
		{name: "participant", identity: performerUser, allowed: false},
		{name: "spectator", identity: spectatorUser, allowed: false},
		{name: "anonymous", identity: types.Identity{Role: types.RoleAdmin}, allowed: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := CheckBroadcastPermissions(tc.identity, competition)
			if got.Allowed != tc.allowed {
				t.Fatalf("unexpected result: got=%v want=%v (reason=%q)", got.Allowed, tc.allowed, got.Reason)
			}
			if !got.Allowed && got.Reason == "" {
				t.Fatalf("denied permission should carry a reason")
			}
		})
	}
}
