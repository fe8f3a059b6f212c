// Package client holds the stateless HTTP clients for the backend API:
// token issuance and the room registry read.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/teamcollab/huddle/internal/domain"
)

// Backend requests short-lived tokens and room snapshots. It caches nothing
// and never retries; callers decide what a failure means.
type Backend struct {
	base string
	hc   *http.Client
}

func NewBackend(baseURL string, hc *http.Client) *Backend {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Backend{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

type authToken struct {
	Token string `json:"token"`
}

// GetAuthToken fetches a bearer token for identity. An empty identity asks
// the server to assign one.
func (b *Backend) GetAuthToken(ctx context.Context, identity domain.Identity) (string, error) {
	endpoint := b.base + "/api/video/token"
	if identity != "" {
		endpoint += "/" + url.PathEscape(string(identity))
	}
	var payload authToken
	if err := b.getJSON(ctx, "get auth token", endpoint, &payload); err != nil {
		return "", err
	}
	return payload.Token, nil
}

// ListRooms returns the full registry snapshot in arrival order. The order
// carries no meaning; either the whole list arrives or an error does.
func (b *Backend) ListRooms(ctx context.Context) ([]domain.NamedRoom, error) {
	var rooms []domain.NamedRoom
	if err := b.getJSON(ctx, "list rooms", b.base+"/api/video/rooms", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (b *Backend) getJSON(ctx context.Context, op, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	resp, err := b.hc.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	return nil
}
