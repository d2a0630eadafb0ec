package models

import "errors"

// Notice is a cross-cutting message not tied to one entity. Without a club
// id it reaches only the all-clubs group.
type Notice struct {
	ID      string         `json:"id"`
	ClubID  string         `json:"clubId,omitempty"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (n Notice) Club() string { return n.ClubID }

func (n Notice) Validate() error {
	if n.ID == "" {
		return errors.New("notice id is required")
	}
	if n.Title == "" && n.Message == "" {
		return errors.New("notice needs a title or a message")
	}
	return nil
}
