// services/steam_provider.go
package services

import (
	"context"
	"fmt"
	"net/http"

	"game-library-system/utils"

	"golang.org/x/oauth2"
)

const (
	steamAPIBase      = "https://api.steampowered.com"
	steamTokenURL     = "https://login.steampowered.com/oauth/token"
	steamProfileBase  = "https://steamcommunity.com/profiles"
	steamCoverPattern = "https://cdn.cloudflare.steamstatic.com/steam/apps/%s/header.jpg"
)

// SteamProvider talks to the Steam Web API. Credential exchange is the plain
// single-hop authorization-code flow against the partner OAuth endpoint.
type SteamProvider struct {
	oauth   *oauth2.Config
	apiBase string
	client  *http.Client
}

func NewSteamProvider(clientID, clientSecret string) *SteamProvider {
	return &SteamProvider{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: steamTokenURL},
		},
		apiBase: steamAPIBase,
		client:  utils.HTTPClient,
	}
}

func (p *SteamProvider) Name() string { return ProviderSteam }

func (p *SteamProvider) Capabilities() ProviderCapabilities {
	return ProviderCapabilities{Friends: true, Achievements: true, Playtime: true}
}

func (p *SteamProvider) Exchange(ctx context.Context, code string) (*AuthContext, error) {
	ctx = p.oauthContext(ctx)
	return p.exchangeToken(func() (*oauth2.Token, error) {
		return p.oauth.Exchange(ctx, code)
	}, "token")
}

func (p *SteamProvider) Refresh(ctx context.Context, refreshToken string) (*AuthContext, error) {
	ctx = p.oauthContext(ctx)
	return p.exchangeToken(func() (*oauth2.Token, error) {
		src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		return src.Token()
	}, "refresh")
}

// oauthContext makes the token endpoint calls go through the adapter's
// client instead of http.DefaultClient, so they share the keep-alive pool
// and the per-call timeout with every other outbound request.
func (p *SteamProvider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

func (p *SteamProvider) exchangeToken(fn func() (*oauth2.Token, error), hop string) (*AuthContext, error) {
	tok, err := fn()
	if err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderSteam, Hop: hop, Err: err}
	}
	auth := &AuthContext{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	// Steam attaches the account's steamid to the token response.
	if id, ok := tok.Extra("steamid").(string); ok {
		auth.ExternalID = id
	}
	return auth, nil
}

func (p *SteamProvider) bearer(auth *AuthContext) map[string]string {
	return map[string]string{"Authorization": "Bearer " + auth.AccessToken}
}

func (p *SteamProvider) FetchProfile(ctx context.Context, auth *AuthContext) (*Profile, error) {
	var out struct {
		Response struct {
			Players []steamPlayer `json:"players"`
		} `json:"response"`
	}
	url := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/?steamids=%s", p.apiBase, auth.ExternalID)
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderSteam, Resource: "profile", Err: err}
	}
	if len(out.Response.Players) == 0 {
		return nil, &UpstreamError{Provider: ProviderSteam, Resource: "profile", Err: fmt.Errorf("empty player summary for %s", auth.ExternalID)}
	}
	return out.Response.Players[0].profile(), nil
}

type steamPlayer struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
	AvatarFull  string `json:"avatarfull"`
}

func (sp steamPlayer) profile() *Profile {
	profileURL := sp.ProfileURL
	if profileURL == "" {
		profileURL = fmt.Sprintf("%s/%s", steamProfileBase, sp.SteamID)
	}
	return &Profile{
		ExternalID:  sp.SteamID,
		DisplayName: sp.PersonaName,
		AvatarURL:   sp.AvatarFull,
		ProfileURL:  profileURL,
	}
}

func (p *SteamProvider) FetchFriendIDs(ctx context.Context, auth *AuthContext) ([]string, error) {
	var out struct {
		FriendsList struct {
			Friends []struct {
				SteamID string `json:"steamid"`
			} `json:"friends"`
		} `json:"friendslist"`
	}
	url := fmt.Sprintf("%s/ISteamUser/GetFriendList/v1/?steamid=%s&relationship=friend", p.apiBase, auth.ExternalID)
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderSteam, Resource: "friends", Err: err}
	}
	ids := make([]string, 0, len(out.FriendsList.Friends))
	for _, f := range out.FriendsList.Friends {
		ids = append(ids, f.SteamID)
	}
	return ids, nil
}

func (p *SteamProvider) FetchFriendProfile(ctx context.Context, auth *AuthContext, externalID string) (*Profile, error) {
	var out struct {
		Response struct {
			Players []steamPlayer `json:"players"`
		} `json:"response"`
	}
	url := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/?steamids=%s", p.apiBase, externalID)
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderSteam, Resource: "friend-profile", Err: err}
	}
	if len(out.Response.Players) == 0 {
		return nil, &UpstreamError{Provider: ProviderSteam, Resource: "friend-profile", Err: fmt.Errorf("no summary for %s", externalID)}
	}
	return out.Response.Players[0].profile(), nil
}

func (p *SteamProvider) FetchOwnedTitles(ctx context.Context, auth *AuthContext) ([]RawTitle, error) {
	var out struct {
		Response struct {
			Games []struct {
				AppID           int64  `json:"appid"`
				Name            string `json:"name"`
				PlaytimeForever int64  `json:"playtime_forever"` // minutes
				RTimeLastPlayed int64  `json:"rtime_last_played"`
			} `json:"games"`
		} `json:"response"`
	}
	url := fmt.Sprintf("%s/IPlayerService/GetOwnedGames/v1/?steamid=%s&include_appinfo=1&include_played_free_games=1", p.apiBase, auth.ExternalID)
	if err := getJSON(ctx, p.client, url, p.bearer(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderSteam, Resource: "titles", Err: err}
	}

	titles := make([]RawTitle, 0, len(out.Response.Games))
	for _, g := range out.Response.Games {
		id := fmt.Sprintf("%d", g.AppID)
		playtime := g.PlaytimeForever
		titles = append(titles, RawTitle{
			ID:              id,
			Name:            g.Name,
			CoverURL:        fmt.Sprintf(steamCoverPattern, id),
			PlaytimeMinutes: &playtime,
			LastPlayedUnix:  g.RTimeLastPlayed,
		})
	}
	return titles, nil
}

// FetchAchievements joins two endpoints: the game schema (catalog of every
// achievement that exists) and the player achievements (earned state),
// matched by apiname.
func (p *SteamProvider) FetchAchievements(ctx context.Context, auth *AuthContext, titleID string) (*AchievementData, error) {
	var schema struct {
		Game struct {
			AvailableGameStats struct {
				Achievements []struct {
					Name        string `json:"name"` // apiname
					DisplayName string `json:"displayName"`
					Description string `json:"description"`
				} `json:"achievements"`
			} `json:"availableGameStats"`
		} `json:"game"`
	}
	schemaURL := fmt.Sprintf("%s/ISteamUserStats/GetSchemaForGame/v2/?appid=%s", p.apiBase, titleID)
	if err := getJSON(ctx, p.client, schemaURL, p.bearer(auth), &schema); err != nil {
		return nil, &UpstreamError{Provider: ProviderSteam, Resource: "achievements", Err: err}
	}

	var player struct {
		PlayerStats struct {
			Achievements []struct {
				APIName    string `json:"apiname"`
				Achieved   int    `json:"achieved"`
				UnlockTime int64  `json:"unlocktime"`
			} `json:"achievements"`
		} `json:"playerstats"`
	}
	playerURL := fmt.Sprintf("%s/ISteamUserStats/GetPlayerAchievements/v1/?steamid=%s&appid=%s", p.apiBase, auth.ExternalID, titleID)
	if err := getJSON(ctx, p.client, playerURL, p.bearer(auth), &player); err != nil {
		return nil, &UpstreamError{Provider: ProviderSteam, Resource: "achievements", Err: err}
	}

	data := &AchievementData{}
	for _, a := range schema.Game.AvailableGameStats.Achievements {
		data.Catalog = append(data.Catalog, RawAchievementDef{
			ID:          a.Name,
			Title:       a.DisplayName,
			Description: a.Description,
		})
	}
	for _, a := range player.PlayerStats.Achievements {
		if a.Achieved != 1 {
			continue
		}
		data.Unlocked = append(data.Unlocked, RawAchievementState{
			ID:           a.APIName,
			Unlocked:     true,
			UnlockedUnix: a.UnlockTime,
		})
	}
	return data, nil
}
