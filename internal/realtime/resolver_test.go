package realtime

import (
	"testing"

	"court-realtime/models"

	"github.com/stretchr/testify/assert"
)

func TestResolver_Authorize(t *testing.T) {
	r := NewResolver(false)
	player := models.Identity{UserID: "p1", Role: models.RolePlayer, ClubIDs: []string{"A", "C"}}

	tests := []struct {
		name     string
		identity models.Identity
		group    string
		want     bool
	}{
		{"scoped own club", clubAdminA, "club:A", true},
		{"scoped other club", clubAdminA, "club:B", false},
		{"scoped all group", clubAdminA, models.AllClubsGroup, false},
		{"player second club", player, "club:C", true},
		{"root any club", rootAdmin, "club:B", true},
		{"root all group", rootAdmin, models.AllClubsGroup, true},
		{"empty identity", models.Identity{}, "club:A", false},
		{"malformed key", rootAdmin, "court:1", false},
		{"empty club", rootAdmin, "club:", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Authorize(tt.identity, tt.group))
		})
	}
}

func TestResolver_InitialGroups(t *testing.T) {
	broad := NewResolver(true)
	strict := NewResolver(false)
	multi := models.Identity{UserID: "m", Role: models.RoleClubAdmin, ClubIDs: []string{"A", "", "B"}}

	assert.Equal(t, []string{"club:B"}, strict.InitialGroups(clubAdminA, "B"))
	assert.Nil(t, strict.InitialGroups(clubAdminA, ""))

	assert.Equal(t, []string{"club:A", "club:B"}, broad.InitialGroups(multi, ""))
	assert.Equal(t, []string{models.AllClubsGroup}, broad.InitialGroups(rootAdmin, ""))
	assert.Nil(t, broad.InitialGroups(models.Identity{}, ""))
}
