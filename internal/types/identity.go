package types

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
	RoleSpectator   Role = "spectator"
)

// Identity is the authenticated user handed to the session by the auth layer.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
	Token       string `json:"-"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// IsOrganizerOf reports whether the identity organizes the competition.
func (i Identity) IsOrganizerOf(c Competition) bool {
	return i.UserID != "" && i.UserID == c.OrganizerID
}
