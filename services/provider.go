// services/provider.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider names — the set is fixed and compiled in.
const (
	ProviderSteam = "steam"
	ProviderXbox  = "xbox"
	ProviderPSN   = "psn"
	ProviderEpic  = "epic"
)

// AuthContext is the short-lived authorization produced by a provider's
// credential exchange and threaded through every adapter call. Adapters are
// stateless and must not retain it between calls.
type AuthContext struct {
	AccessToken  string
	RefreshToken string
	UserHash     string // Xbox only — the uhs half of the XBL3.0 header
	ExternalID   string // provider account id, when the exchange reveals it
	ExpiresAt    time.Time
}

// Profile is the normalized identity stub every provider can produce.
type Profile struct {
	ExternalID  string
	DisplayName string
	AvatarURL   string
	ProfileURL  string
}

// RawTitle is one owned title as reported by a provider, before normalization.
type RawTitle struct {
	ID              string
	Name            string
	CoverURL        string
	PlaytimeMinutes *int64 // nil when the provider doesn't expose playtime
	LastPlayedUnix  int64  // 0 is the "never / unknown" sentinel
}

// RawAchievementDef is one catalog entry — the catalog is authoritative for
// which achievements exist for a title.
type RawAchievementDef struct {
	ID          string
	Title       string
	Description string
}

// RawAchievementState is one earned-state entry, joined to the catalog by ID.
type RawAchievementState struct {
	ID           string
	Unlocked     bool
	UnlockedUnix int64
}

// AchievementData bundles the two halves some providers serve from separate
// endpoints.
type AchievementData struct {
	Catalog  []RawAchievementDef
	Unlocked []RawAchievementState
}

// ProviderCapabilities declares which parts of the capability surface a
// provider actually implements.
type ProviderCapabilities struct {
	Friends      bool
	Achievements bool
	Playtime     bool
}

// ProviderAdapter is the uniform capability surface over one platform's API.
// A failure fetching one title's achievements or one friend's profile is the
// caller's problem to degrade on — adapters just report it.
type ProviderAdapter interface {
	Name() string
	Capabilities() ProviderCapabilities

	// Exchange runs the provider's multi-hop token acquisition from the
	// caller-supplied authorization material (OAuth code, npsso cookie, …).
	Exchange(ctx context.Context, material string) (*AuthContext, error)
	// Refresh re-acquires an access token from a stored refresh token.
	// Providers without a refresh flow return ErrNotSupported.
	Refresh(ctx context.Context, refreshToken string) (*AuthContext, error)

	FetchProfile(ctx context.Context, auth *AuthContext) (*Profile, error)
	FetchFriendIDs(ctx context.Context, auth *AuthContext) ([]string, error)
	FetchFriendProfile(ctx context.Context, auth *AuthContext, externalID string) (*Profile, error)
	FetchOwnedTitles(ctx context.Context, auth *AuthContext) ([]RawTitle, error)
	FetchAchievements(ctx context.Context, auth *AuthContext, titleID string) (*AchievementData, error)
}

// ProviderRegistry maps provider name → adapter.
type ProviderRegistry map[string]ProviderAdapter

func (r ProviderRegistry) Get(name string) (ProviderAdapter, bool) {
	p, ok := r[name]
	return p, ok
}

// getJSON issues an authenticated GET and decodes the JSON body into out.
// Every adapter funnels its reads through here so they all share the
// keep-alive pool and the per-call timeout, and report non-2xx uniformly.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s returned %d: %s", url, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
