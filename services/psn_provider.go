// services/psn_provider.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"game-library-system/utils"
)

const (
	psnAuthBase   = "https://ca.account.sony.com/api/authz/v3/oauth"
	psnTrophyBase = "https://m.np.playstation.com/api/trophy"
	psnUserBase   = "https://m.np.playstation.com/api/userProfile"

	// Public mobile-app client, the one the browser-extension flow targets.
	psnClientAuth = "Basic MDk1MTUxNTktNzIzNy00MzcwLTliNDAtMzgwNmU2N2MwODkx"
)

// PSNProvider speaks the PlayStation Network trophy API. There is no OAuth
// redirect we can drive — users grab their npsso session cookie out-of-band
// (browser extension) and we relay it: cookie → short-lived access code →
// access+refresh token pair.
type PSNProvider struct {
	authBase   string
	trophyBase string
	userBase   string
	client     *http.Client
}

func NewPSNProvider() *PSNProvider {
	return &PSNProvider{
		authBase:   psnAuthBase,
		trophyBase: psnTrophyBase,
		userBase:   psnUserBase,
		client:     utils.HTTPClient,
	}
}

func (p *PSNProvider) Name() string { return ProviderPSN }

func (p *PSNProvider) Capabilities() ProviderCapabilities {
	// Trophies stand in for achievements; the trophy API exposes no playtime.
	return ProviderCapabilities{Friends: true, Achievements: true, Playtime: false}
}

const (
	psnHopAccessCode = "access-code"
	psnHopToken      = "token"
)

// Exchange relays the npsso cookie through the two-step token acquisition.
func (p *PSNProvider) Exchange(ctx context.Context, npsso string) (*AuthContext, error) {
	code, err := p.fetchAccessCode(ctx, npsso)
	if err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderPSN, Hop: psnHopAccessCode, Err: err}
	}

	auth, err := p.fetchTokens(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"com.scee.psxandroid.scecompcall://redirect"},
		"token_format": {"jwt"},
	})
	if err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderPSN, Hop: psnHopToken, Err: err}
	}
	return auth, nil
}

func (p *PSNProvider) Refresh(ctx context.Context, refreshToken string) (*AuthContext, error) {
	auth, err := p.fetchTokens(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"scope":         {"psn:mobile.v2.core psn:clientapp"},
		"token_format":  {"jwt"},
	})
	if err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderPSN, Hop: "refresh", Err: err}
	}
	return auth, nil
}

// fetchAccessCode trades the npsso cookie for a one-shot authorization code.
// Sony answers with a redirect whose Location carries the code; we must not
// follow it.
func (p *PSNProvider) fetchAccessCode(ctx context.Context, npsso string) (string, error) {
	q := url.Values{
		"access_type":   {"offline"},
		"client_id":     {"09515159-7237-4370-9b40-3806e67c0891"},
		"redirect_uri":  {"com.scee.psxandroid.scecompcall://redirect"},
		"response_type": {"code"},
		"scope":         {"psn:mobile.v2.core psn:clientapp"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.authBase+"/authorize?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Cookie", "npsso="+npsso)

	noRedirect := &http.Client{
		Timeout:   p.client.Timeout,
		Transport: p.client.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	location := resp.Header.Get("Location")
	if location == "" || !strings.Contains(location, "code=") {
		return "", fmt.Errorf("authorize did not yield an access code (status %d) — npsso likely expired", resp.StatusCode)
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	code := loc.Query().Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect location carried no code")
	}
	return code, nil
}

func (p *PSNProvider) fetchTokens(ctx context.Context, form url.Values) (*AuthContext, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authBase+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", psnClientAuth)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(b))
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("empty access token")
	}
	return &AuthContext{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}, nil
}

func (p *PSNProvider) bearer(auth *AuthContext) map[string]string {
	return map[string]string{"Authorization": "Bearer " + auth.AccessToken}
}

func (p *PSNProvider) FetchProfile(ctx context.Context, auth *AuthContext) (*Profile, error) {
	var out struct {
		AccountID string `json:"accountId"`
		OnlineID  string `json:"onlineId"`
		AvatarURL string `json:"avatarUrl"`
	}
	if err := getJSON(ctx, p.client, p.userBase+"/v1/internal/users/me/profile", p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderPSN, Resource: "profile", Err: err}
	}
	return &Profile{
		ExternalID:  out.AccountID,
		DisplayName: out.OnlineID,
		AvatarURL:   out.AvatarURL,
		ProfileURL:  "https://psnprofiles.com/" + out.OnlineID,
	}, nil
}

func (p *PSNProvider) FetchFriendIDs(ctx context.Context, auth *AuthContext) ([]string, error) {
	var out struct {
		Friends []string `json:"friends"`
	}
	if err := getJSON(ctx, p.client, p.userBase+"/v1/internal/users/me/friends", p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderPSN, Resource: "friends", Err: err}
	}
	return out.Friends, nil
}

func (p *PSNProvider) FetchFriendProfile(ctx context.Context, auth *AuthContext, externalID string) (*Profile, error) {
	var out struct {
		OnlineID string `json:"onlineId"`
		Avatars  []struct {
			Size string `json:"size"`
			URL  string `json:"url"`
		} `json:"avatars"`
	}
	url := fmt.Sprintf("%s/v1/internal/users/%s/profiles", p.userBase, externalID)
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderPSN, Resource: "friend-profile", Err: err}
	}
	prof := &Profile{
		ExternalID:  externalID,
		DisplayName: out.OnlineID,
		ProfileURL:  "https://psnprofiles.com/" + out.OnlineID,
	}
	for _, a := range out.Avatars {
		prof.AvatarURL = a.URL
		if a.Size == "l" {
			break
		}
	}
	return prof, nil
}

func (p *PSNProvider) FetchOwnedTitles(ctx context.Context, auth *AuthContext) ([]RawTitle, error) {
	var out struct {
		TrophyTitles []struct {
			NPCommunicationID string `json:"npCommunicationId"`
			TrophyTitleName   string `json:"trophyTitleName"`
			TrophyTitleIcon   string `json:"trophyTitleIconUrl"`
			LastUpdatedAt     time.Time `json:"lastUpdatedDateTime"`
		} `json:"trophyTitles"`
	}
	url := p.trophyBase + "/v1/users/me/trophyTitles?limit=800"
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderPSN, Resource: "titles", Err: err}
	}

	titles := make([]RawTitle, 0, len(out.TrophyTitles))
	for _, t := range out.TrophyTitles {
		raw := RawTitle{
			ID:       t.NPCommunicationID,
			Name:     t.TrophyTitleName,
			CoverURL: t.TrophyTitleIcon,
		}
		if !t.LastUpdatedAt.IsZero() {
			raw.LastPlayedUnix = t.LastUpdatedAt.Unix()
		}
		titles = append(titles, raw)
	}
	return titles, nil
}

// FetchAchievements joins the title's trophy catalog with the user's earned
// trophies by trophyId. Two separate endpoints, catalog authoritative.
func (p *PSNProvider) FetchAchievements(ctx context.Context, auth *AuthContext, titleID string) (*AchievementData, error) {
	type trophy struct {
		TrophyID     int       `json:"trophyId"`
		TrophyName   string    `json:"trophyName"`
		TrophyDetail string    `json:"trophyDetail"`
		Earned       bool      `json:"earned"`
		EarnedAt     time.Time `json:"earnedDateTime"`
	}

	var catalog struct {
		Trophies []trophy `json:"trophies"`
	}
	catalogURL := fmt.Sprintf("%s/v1/npCommunicationIds/%s/trophyGroups/all/trophies?npServiceName=trophy", p.trophyBase, titleID)
	if err := getJSON(ctx, p.client, catalogURL, p.bearer(auth), &catalog); err != nil {
		return nil, &UpstreamError{Provider: ProviderPSN, Resource: "achievements", Err: err}
	}

	var earned struct {
		Trophies []trophy `json:"trophies"`
	}
	earnedURL := fmt.Sprintf("%s/v1/users/me/npCommunicationIds/%s/trophyGroups/all/trophies?npServiceName=trophy", p.trophyBase, titleID)
	if err := getJSON(ctx, p.client, earnedURL, p.bearer(auth), &earned); err != nil {
		return nil, &UpstreamError{Provider: ProviderPSN, Resource: "achievements", Err: err}
	}

	data := &AchievementData{}
	for _, t := range catalog.Trophies {
		data.Catalog = append(data.Catalog, RawAchievementDef{
			ID:          fmt.Sprintf("%d", t.TrophyID),
			Title:       t.TrophyName,
			Description: t.TrophyDetail,
		})
	}
	for _, t := range earned.Trophies {
		if !t.Earned {
			continue
		}
		state := RawAchievementState{ID: fmt.Sprintf("%d", t.TrophyID), Unlocked: true}
		if !t.EarnedAt.IsZero() {
			state.UnlockedUnix = t.EarnedAt.Unix()
		}
		data.Unlocked = append(data.Unlocked, state)
	}
	return data, nil
}
