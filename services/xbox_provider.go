// services/xbox_provider.go
package services

import (
	"bytes"
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
	xboxMSTokenURL   = "https://login.live.com/oauth20_token.srf"
	xboxUserAuthURL  = "https://user.auth.xboxlive.com/user/authenticate"
	xboxXSTSAuthURL  = "https://xsts.auth.xboxlive.com/xsts/authorize"
	xboxTitleHubBase = "https://titlehub.xboxlive.com"
	xboxAchievesBase = "https://achievements.xboxlive.com"
	xboxPeopleBase   = "https://peoplehub.xboxlive.com"
	xboxProfileBase  = "https://profile.xboxlive.com"
)

// XboxProvider implements the Xbox Live surface. The credential exchange is a
// strict three-hop chain — Microsoft account token → user security token →
// XSTS session token — where each hop's output is only usable as the next
// hop's input. The final context carries both the XSTS token and the
// user-hash, sent together as "XBL3.0 x=<uhs>;<token>".
type XboxProvider struct {
	clientID     string
	clientSecret string
	msTokenURL   string
	userAuthURL  string
	xstsAuthURL  string
	titleBase    string
	achBase      string
	peopleBase   string
	profileBase  string
	client       *http.Client
}

func NewXboxProvider(clientID, clientSecret string) *XboxProvider {
	return &XboxProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		msTokenURL:   xboxMSTokenURL,
		userAuthURL:  xboxUserAuthURL,
		xstsAuthURL:  xboxXSTSAuthURL,
		titleBase:    xboxTitleHubBase,
		achBase:      xboxAchievesBase,
		peopleBase:   xboxPeopleBase,
		profileBase:  xboxProfileBase,
		client:       utils.HTTPClient,
	}
}

func (p *XboxProvider) Name() string { return ProviderXbox }

func (p *XboxProvider) Capabilities() ProviderCapabilities {
	return ProviderCapabilities{Friends: true, Achievements: true, Playtime: false}
}

// Hop names reported in CredentialExchangeError.
const (
	xboxHopMSToken   = "ms-token"
	xboxHopUserToken = "user-token"
	xboxHopXSTS      = "xsts"
)

type xblTokenResponse struct {
	Token         string `json:"Token"`
	DisplayClaims struct {
		XUI []struct {
			UHS string `json:"uhs"`
			XID string `json:"xid"`
			GTG string `json:"gtg"`
		} `json:"xui"`
	} `json:"DisplayClaims"`
}

// Exchange runs the triple hop starting from a Microsoft authorization code.
// None of the intermediate tokens is independently usable as a credential.
func (p *XboxProvider) Exchange(ctx context.Context, code string) (*AuthContext, error) {
	// Hop 1: authorization code → Microsoft-account access token
	msToken, err := p.exchangeMSCode(ctx, code)
	if err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderXbox, Hop: xboxHopMSToken, Err: err}
	}

	// Hop 2: MS token → user security token
	userBody := map[string]any{
		"Properties": map[string]any{
			"AuthMethod": "RPS",
			"SiteName":   "user.auth.xboxlive.com",
			"RpsTicket":  "d=" + msToken,
		},
		"RelyingParty": "http://auth.xboxlive.com",
		"TokenType":    "JWT",
	}
	var userResp xblTokenResponse
	if err := p.postXBL(ctx, p.userAuthURL, userBody, &userResp); err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderXbox, Hop: xboxHopUserToken, Err: err}
	}
	if userResp.Token == "" {
		return nil, &CredentialExchangeError{Provider: ProviderXbox, Hop: xboxHopUserToken, Err: fmt.Errorf("empty user token")}
	}

	// Hop 3: user security token → XSTS session token
	xstsBody := map[string]any{
		"Properties": map[string]any{
			"SandboxId":  "RETAIL",
			"UserTokens": []string{userResp.Token},
		},
		"RelyingParty": "http://xboxlive.com",
		"TokenType":    "JWT",
	}
	var xstsResp xblTokenResponse
	if err := p.postXBL(ctx, p.xstsAuthURL, xstsBody, &xstsResp); err != nil {
		return nil, &CredentialExchangeError{Provider: ProviderXbox, Hop: xboxHopXSTS, Err: err}
	}
	if xstsResp.Token == "" || len(xstsResp.DisplayClaims.XUI) == 0 {
		return nil, &CredentialExchangeError{Provider: ProviderXbox, Hop: xboxHopXSTS, Err: fmt.Errorf("missing token or display claims")}
	}

	claims := xstsResp.DisplayClaims.XUI[0]
	return &AuthContext{
		AccessToken: xstsResp.Token,
		UserHash:    claims.UHS,
		ExternalID:  claims.XID,
		// XSTS tokens are good for roughly a day; we re-exchange rather than refresh.
		ExpiresAt: time.Now().Add(8 * time.Hour),
	}, nil
}

// Refresh is not available — Xbox has no refresh-token flow at this layer,
// the whole chain is re-run from a fresh Microsoft token instead.
func (p *XboxProvider) Refresh(ctx context.Context, refreshToken string) (*AuthContext, error) {
	return nil, ErrNotSupported
}

func (p *XboxProvider) exchangeMSCode(ctx context.Context, code string) (string, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"scope":         {"XboxLive.signin offline_access"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.msTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(b))
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return tok.AccessToken, nil
}

func (p *XboxProvider) postXBL(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-xbl-contract-version", "1")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s returned %d: %s", url, resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *XboxProvider) headers(auth *AuthContext) map[string]string {
	return map[string]string{
		"Authorization":          fmt.Sprintf("XBL3.0 x=%s;%s", auth.UserHash, auth.AccessToken),
		"x-xbl-contract-version": "2",
		"Accept-Language":        "en-US",
	}
}

type xboxProfileUser struct {
	ID       string `json:"id"`
	Settings []struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"settings"`
}

func (u xboxProfileUser) profile() *Profile {
	prof := &Profile{ExternalID: u.ID}
	for _, s := range u.Settings {
		switch s.ID {
		case "Gamertag":
			prof.DisplayName = s.Value
		case "GameDisplayPicRaw":
			prof.AvatarURL = s.Value
		}
	}
	prof.ProfileURL = "https://account.xbox.com/en-us/profile?gamertag=" + prof.DisplayName
	return prof
}

func (p *XboxProvider) FetchProfile(ctx context.Context, auth *AuthContext) (*Profile, error) {
	return p.fetchProfile(ctx, auth, "me")
}

func (p *XboxProvider) FetchFriendProfile(ctx context.Context, auth *AuthContext, externalID string) (*Profile, error) {
	return p.fetchProfile(ctx, auth, "xuid("+externalID+")")
}

func (p *XboxProvider) fetchProfile(ctx context.Context, auth *AuthContext, who string) (*Profile, error) {
	resource := "profile"
	if who != "me" {
		resource = "friend-profile"
	}
	var out struct {
		ProfileUsers []xboxProfileUser `json:"profileUsers"`
	}
	url := fmt.Sprintf("%s/users/%s/profile/settings?settings=Gamertag,GameDisplayPicRaw", p.profileBase, who)
	if err := getJSON(ctx, p.client, url, p.headers(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderXbox, Resource: resource, Err: err}
	}
	if len(out.ProfileUsers) == 0 {
		return nil, &UpstreamError{Provider: ProviderXbox, Resource: resource, Err: fmt.Errorf("empty profile response")}
	}
	return out.ProfileUsers[0].profile(), nil
}

func (p *XboxProvider) FetchFriendIDs(ctx context.Context, auth *AuthContext) ([]string, error) {
	var out struct {
		People []struct {
			XUID string `json:"xuid"`
		} `json:"people"`
	}
	url := p.peopleBase + "/users/me/people/social"
	if err := getJSON(ctx, p.client, url, p.headers(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderXbox, Resource: "friends", Err: err}
	}
	ids := make([]string, 0, len(out.People))
	for _, person := range out.People {
		ids = append(ids, person.XUID)
	}
	return ids, nil
}

func (p *XboxProvider) FetchOwnedTitles(ctx context.Context, auth *AuthContext) ([]RawTitle, error) {
	var out struct {
		Titles []struct {
			TitleID     string `json:"titleId"`
			Name        string `json:"name"`
			DisplayImage string `json:"displayImage"`
			TitleHistory struct {
				LastTimePlayed time.Time `json:"lastTimePlayed"`
			} `json:"titleHistory"`
		} `json:"titles"`
	}
	url := fmt.Sprintf("%s/users/xuid(%s)/titles/titlehistory/decoration/image,titlehistory", p.titleBase, auth.ExternalID)
	if err := getJSON(ctx, p.client, url, p.headers(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderXbox, Resource: "titles", Err: err}
	}

	titles := make([]RawTitle, 0, len(out.Titles))
	for _, t := range out.Titles {
		raw := RawTitle{
			ID:       t.TitleID,
			Name:     t.Name,
			CoverURL: t.DisplayImage,
		}
		if !t.TitleHistory.LastTimePlayed.IsZero() {
			raw.LastPlayedUnix = t.TitleHistory.LastTimePlayed.Unix()
		}
		titles = append(titles, raw)
	}
	return titles, nil
}

// FetchAchievements gets catalog and earned state from one payload — the
// achievements endpoint lists every achievement with a progressState, so the
// adapter splits it into the two raw lists the normalizer joins.
func (p *XboxProvider) FetchAchievements(ctx context.Context, auth *AuthContext, titleID string) (*AchievementData, error) {
	var out struct {
		Achievements []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Description   string `json:"description"`
			ProgressState string `json:"progressState"`
			Progression   struct {
				TimeUnlocked time.Time `json:"timeUnlocked"`
			} `json:"progression"`
		} `json:"achievements"`
	}
	url := fmt.Sprintf("%s/users/xuid(%s)/achievements?titleId=%s&maxItems=1000", p.achBase, auth.ExternalID, titleID)
	if err := getJSON(ctx, p.client, url, p.headers(auth), &out); err != nil {
		return nil, &UpstreamError{Provider: ProviderXbox, Resource: "achievements", Err: err}
	}

	data := &AchievementData{}
	for _, a := range out.Achievements {
		data.Catalog = append(data.Catalog, RawAchievementDef{
			ID:          a.ID,
			Title:       a.Name,
			Description: a.Description,
		})
		if a.ProgressState == "Achieved" {
			state := RawAchievementState{ID: a.ID, Unlocked: true}
			if !a.Progression.TimeUnlocked.IsZero() {
				state.UnlockedUnix = a.Progression.TimeUnlocked.Unix()
			}
			data.Unlocked = append(data.Unlocked, state)
		}
	}
	return data, nil
}
