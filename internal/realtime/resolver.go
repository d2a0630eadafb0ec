package realtime

import (
	"court-realtime/models"
)

// Resolver decides which groups an identity may join.
type Resolver struct {
	// BroadMode lets a connection without a scope hint join every group its
	// identity can access. Kept for clients that predate club-scoped rooms.
	BroadMode bool
}

func NewResolver(broadMode bool) *Resolver {
	return &Resolver{BroadMode: broadMode}
}

// Authorize reports whether identity may join group.
func (r *Resolver) Authorize(identity models.Identity, group string) bool {
	if identity.IsZero() {
		return false
	}
	if group == models.AllClubsGroup {
		return identity.Elevated()
	}
	clubID, ok := models.ParseClubGroup(group)
	if !ok {
		return false
	}
	return identity.CanAccessClub(clubID)
}

// GroupsFor lists every group identity can access at once. Elevated
// identities get the all-clubs group, which already carries every club.
func (r *Resolver) GroupsFor(identity models.Identity) []string {
	if identity.IsZero() {
		return nil
	}
	if identity.Elevated() {
		return []string{models.AllClubsGroup}
	}
	groups := make([]string, 0, len(identity.ClubIDs))
	for _, clubID := range identity.ClubIDs {
		if clubID == "" {
			continue
		}
		groups = append(groups, models.ClubGroup(clubID))
	}
	return groups
}

// InitialGroups resolves the groups requested at handshake time. A scope
// hint asks for exactly one club group; without one the answer depends on
// BroadMode. The result is a request, each entry still goes through Authorize.
func (r *Resolver) InitialGroups(identity models.Identity, scopeHint string) []string {
	if scopeHint != "" {
		return []string{models.ClubGroup(scopeHint)}
	}
	if !r.BroadMode {
		return nil
	}
	return r.GroupsFor(identity)
}
