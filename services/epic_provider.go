// services/epic_provider.go
package services

import (
	"context"
	"encoding/base64"
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
	epicTokenURL    = "https://account-public-service-prod.ol.epicgames.com/account/api/oauth/token"
	epicAccountBase = "https://account-public-service-prod.ol.epicgames.com/account/api"
	epicFriendsBase = "https://friends-public-service-prod.ol.epicgames.com/friends/api"
	epicLibraryBase = "https://library-service.live.use1a.on.epicgames.com/library/api"
)

// EpicProvider covers the Epic Games Store. Single-hop exchange with HTTP
// basic client auth. Epic exposes no global achievement API, so titles import
// with empty achievement lists and progress 0 — ownership survives the gap.
type EpicProvider struct {
	clientID     string
	clientSecret string
	tokenURL     string
	accountBase  string
	friendsBase  string
	libraryBase  string
	client       *http.Client
}

func NewEpicProvider(clientID, clientSecret string) *EpicProvider {
	return &EpicProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     epicTokenURL,
		accountBase:  epicAccountBase,
		friendsBase:  epicFriendsBase,
		libraryBase:  epicLibraryBase,
		client:       utils.HTTPClient,
	}
}

func (p *EpicProvider) Name() string { return ProviderEpic }

func (p *EpicProvider) Capabilities() ProviderCapabilities {
	return ProviderCapabilities{Friends: true, Achievements: false, Playtime: false}
}

func (p *EpicProvider) Exchange(ctx context.Context, code string) (*AuthContext, error) {
	return p.token(ctx, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	}, "token")
}

func (p *EpicProvider) Refresh(ctx context.Context, refreshToken string) (*AuthContext, error) {
	return p.token(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}, "refresh")
}

func (p *EpicProvider) token(ctx context.Context, form url.Values, hop string) (*AuthContext, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderEpic, Hop: hop, Err: err}
	}
	basic := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderEpic, Hop: hop, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &CredentialExchangeError{
			Provider: ProviderEpic, Hop: hop,
			Err: fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(b)),
		}
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		AccountID    string `json:"account_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderEpic, Hop: hop, Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &CredentialExchangeError{Provider: ProviderEpic, Hop: hop, Err: fmt.Errorf("empty access token")}
	}
	return &AuthContext{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExternalID:   tok.AccountID,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
	}, nil
}

func (p *EpicProvider) bearer(auth *AuthContext) map[string]string {
	return map[string]string{"Authorization": "Bearer " + auth.AccessToken}
}

type epicAccount struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

func (a epicAccount) profile() *Profile {
	return &Profile{
		ExternalID:  a.ID,
		DisplayName: a.DisplayName,
		ProfileURL:  "https://store.epicgames.com/u/" + a.ID,
	}
}

func (p *EpicProvider) FetchProfile(ctx context.Context, auth *AuthContext) (*Profile, error) {
	var out epicAccount
	url := fmt.Sprintf("%s/public/account/%s", p.accountBase, auth.ExternalID)
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderEpic, Resource: "profile", Err: err}
	}
	return out.profile(), nil
}

func (p *EpicProvider) FetchFriendIDs(ctx context.Context, auth *AuthContext) ([]string, error) {
	var out []struct {
		AccountID string `json:"accountId"`
		Status    string `json:"status"`
	}
	url := fmt.Sprintf("%s/public/friends/%s", p.friendsBase, auth.ExternalID)
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderEpic, Resource: "friends", Err: err}
	}
	ids := make([]string, 0, len(out))
	for _, f := range out {
		if f.Status != "" && f.Status != "ACCEPTED" {
			continue
		}
		ids = append(ids, f.AccountID)
	}
	return ids, nil
}

func (p *EpicProvider) FetchFriendProfile(ctx context.Context, auth *AuthContext, externalID string) (*Profile, error) {
	var out epicAccount
	url := fmt.Sprintf("%s/public/account/%s", p.accountBase, externalID)
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderEpic, Resource: "friend-profile", Err: err}
	}
	return out.profile(), nil
}

func (p *EpicProvider) FetchOwnedTitles(ctx context.Context, auth *AuthContext) ([]RawTitle, error) {
	var out struct {
		Records []struct {
			CatalogItemID string `json:"catalogItemId"`
			AppName       string `json:"appName"`
			SandboxName   string `json:"sandboxName"`
		} `json:"records"`
	}
	url := p.libraryBase + "/public/items?includeMetadata=true"
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderEpic, Resource: "titles", Err: err}
	}

	titles := make([]RawTitle, 0, len(out.Records))
	for _, r := range out.Records {
		name := r.SandboxName
		if name == "" {
			name = r.AppName
		}
		titles = append(titles, RawTitle{
			ID:   r.CatalogItemID,
			Name: name,
		})
	}
	return titles, nil
}

// FetchAchievements: Epic has no achievement API to call.
func (p *EpicProvider) FetchAchievements(ctx context.Context, auth *AuthContext, titleID string) (*AchievementData, error) {
	return nil, ErrNotSupported
}
