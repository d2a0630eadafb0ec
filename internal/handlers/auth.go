package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"court-realtime/internal/status"
	"court-realtime/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Authenticator resolves the identity behind a realtime handshake.
type Authenticator interface {
	Authenticate(r *http.Request) (models.Identity, error)
}

// PocketBaseAuthenticator validates PocketBase auth tokens.
type PocketBaseAuthenticator struct {
	app core.App
}

func NewPocketBaseAuthenticator(app core.App) *PocketBaseAuthenticator {
	return &PocketBaseAuthenticator{app: app}
}

func (a *PocketBaseAuthenticator) Authenticate(r *http.Request) (models.Identity, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return models.Identity{}, status.ErrAuthentication
	}

	record, err := a.app.FindAuthRecordByToken(token, core.TokenTypeAuth)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", status.ErrAuthentication, err)
	}
	return IdentityFromRecord(record), nil
}

// TokenFromRequest reads the token query parameter, falling back to a
// Bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(header)
}

// IdentityFromRecord maps an auth record to an identity. Superusers are root
// admins; users carry a role field and a clubs relation.
func IdentityFromRecord(record *core.Record) models.Identity {
	if record == nil {
		return models.Identity{}
	}
	if record.IsSuperuser() {
		return models.Identity{UserID: record.Id, Role: models.RoleRootAdmin}
	}

	role := models.Role(record.GetString("role"))
	if role == "" {
		role = models.RolePlayer
	}
	return models.Identity{
		UserID:  record.Id,
		Role:    role,
		ClubIDs: record.GetStringSlice("clubs"),
	}
}

func identityFromEvent(e *core.RequestEvent) (models.Identity, error) {
	if e.Auth == nil {
		return models.Identity{}, apis.NewUnauthorizedError("Unauthorized", nil)
	}
	return IdentityFromRecord(e.Auth), nil
}
