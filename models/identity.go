package models

import "slices"

type Role string

const (
	RoleRootAdmin Role = "root_admin"
	RoleClubAdmin Role = "club_admin"
	RolePlayer    Role = "player"
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID  string
	Role    Role
	ClubIDs []string
}

func (i Identity) IsZero() bool {
	return i.UserID == ""
}

// Elevated identities see every club.
func (i Identity) Elevated() bool {
	return i.Role == RoleRootAdmin
}

func (i Identity) CanAccessClub(clubID string) bool {
	if clubID == "" {
		return false
	}
	if i.Elevated() {
		return true
	}
	return slices.Contains(i.ClubIDs, clubID)
}
