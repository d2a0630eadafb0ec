package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"court-realtime/internal/status"
	"court-realtime/models"
)

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// FetchBookings loads the booking snapshot of a club, used to seed a Store
// before or while live events arrive.
func FetchBookings(ctx context.Context, httpClient *http.Client, apiURL, token, clubID string) ([]models.BookingSnapshot, error) {
	if httpClient == nil {
		httpClient = defaultHTTPClient
	}

	endpoint := strings.TrimRight(apiURL, "/") + "/api/v1/clubs/" + url.PathEscape(clubID) + "/bookings"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", status.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch bookings: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Bookings []models.BookingSnapshot `json:"bookings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetch bookings: %w", err)
	}
	return body.Bookings, nil
}
