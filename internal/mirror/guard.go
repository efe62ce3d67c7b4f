// Package mirror implements the client-side capability guard: a cached
// copy of the authenticated identity used to decide what to render or
// attempt before the server is asked. It is advisory only. The session
// gate and permission middleware remain the authority; a stale guard can
// at worst show an action that the server will then refuse.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// State is the guard's cached view of the authenticated identity.
type State struct {
	UserID      int64    `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	CSRFToken   string   `json:"csrf_token"`
}

// Guard evaluates capability checks against the last refreshed state.
// All lookups are pure reads of the cache; only Refresh touches the
// network.
type Guard struct {
	client  *http.Client
	baseURL string

	mu    sync.RWMutex
	state State
	ready bool
}

// NewGuard constructs a Guard talking to the given API base URL. The
// client must carry the session cookie (a cookie jar or a proxy).
func NewGuard(client *http.Client, baseURL string) *Guard {
	if client == nil {
		client = http.DefaultClient
	}
	return &Guard{client: client, baseURL: baseURL}
}

// Refresh replaces the cached state from the identity endpoint. Called
// after login and after any grant change the client learns about. A
// non-200 response clears the cache: an unauthenticated guard allows
// nothing.
func (g *Guard) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/auth/me", nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.mu.Lock()
		g.state = State{}
		g.ready = false
		g.mu.Unlock()
		return fmt.Errorf("mirror: identity endpoint returned %d", resp.StatusCode)
	}

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return fmt.Errorf("mirror: decode identity: %w", err)
	}

	g.mu.Lock()
	g.state = state
	g.ready = true
	g.mu.Unlock()
	return nil
}

// CanAccess reports whether the cached effective set holds the
// permission. False before the first successful Refresh.
func (g *Guard) CanAccess(permission string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.ready {
		return false
	}
	for _, p := range g.state.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CanAccessAnyOf reports whether any of the permissions is held.
func (g *Guard) CanAccessAnyOf(permissions ...string) bool {
	for _, p := range permissions {
		if g.CanAccess(p) {
			return true
		}
	}
	return false
}

// RoleIs reports whether the cached role matches.
func (g *Guard) RoleIs(role string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready && g.state.Role == role
}

// RoleIsNot reports whether the cached role differs. False when no
// identity is cached: with nothing known, nothing is asserted.
func (g *Guard) RoleIsNot(role string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready && g.state.Role != role
}

// CSRFToken returns the token to attach to mutating requests.
func (g *Guard) CSRFToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.CSRFToken
}

// Clear drops the cached identity, e.g. on logout.
func (g *Guard) Clear() {
	g.mu.Lock()
	g.state = State{}
	g.ready = false
	g.mu.Unlock()
}
