package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// xboxTestServer scripts the three authentication endpoints plus the data
// APIs on one mux. failHop cuts the chain at a named hop.
func xboxTestServer(t *testing.T, failHop string) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth20_token.srf", func(w http.ResponseWriter, r *http.Request) {
		if failHop == xboxHopMSToken {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.Equal(t, "the-code", r.FormValue("code"))
		fmt.Fprint(w, `{"access_token":"ms-access"}`)
	})

	mux.HandleFunc("/user/authenticate", func(w http.ResponseWriter, r *http.Request) {
		if failHop == xboxHopUserToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var body struct {
			Properties struct {
				RpsTicket string `json:"RpsTicket"`
			} `json:"Properties"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "d=ms-access", body.Properties.RpsTicket, "hop 2 consumes hop 1's token")
		fmt.Fprint(w, `{"Token":"user-security-token"}`)
	})

	mux.HandleFunc("/xsts/authorize", func(w http.ResponseWriter, r *http.Request) {
		if failHop == xboxHopXSTS {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var body struct {
			Properties struct {
				UserTokens []string `json:"UserTokens"`
			} `json:"Properties"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"user-security-token"}, body.Properties.UserTokens, "hop 3 consumes hop 2's token")
		fmt.Fprint(w, `{"Token":"xsts-token","DisplayClaims":{"xui":[{"uhs":"hash123","xid":"2533274","gtg":"SomeGamertag"}]}}`)
	})

	mux.HandleFunc("/users/me/profile/settings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "XBL3.0 x=hash123;xsts-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"profileUsers":[{"id":"2533274","settings":[
			{"id":"Gamertag","value":"SomeGamertag"},
			{"id":"GameDisplayPicRaw","value":"https://img.example/pic.png"}
		]}]}`)
	})

	mux.HandleFunc("/users/xuid(2533274)/achievements", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"achievements":[
			{"id":"1","name":"First Blood","description":"Win a match","progressState":"Achieved",
			 "progression":{"timeUnlocked":"2023-11-14T22:13:20Z"}},
			{"id":"2","name":"Veteran","description":"Win 100 matches","progressState":"NotStarted",
			 "progression":{"timeUnlocked":"0001-01-01T00:00:00Z"}}
		]}`)
	})

	return httptest.NewServer(mux)
}

func newTestXboxProvider(srv *httptest.Server) *XboxProvider {
	p := NewXboxProvider("client-id", "client-secret")
	p.msTokenURL = srv.URL + "/oauth20_token.srf"
	p.userAuthURL = srv.URL + "/user/authenticate"
	p.xstsAuthURL = srv.URL + "/xsts/authorize"
	p.titleBase = srv.URL
	p.achBase = srv.URL
	p.peopleBase = srv.URL
	p.profileBase = srv.URL
	p.client = srv.Client()
	return p
}

func TestXboxExchange_TripleHop(t *testing.T) {
	srv := xboxTestServer(t, "")
	defer srv.Close()

	p := newTestXboxProvider(srv)
	auth, err := p.Exchange(context.Background(), "the-code")
	require.NoError(t, err)

	assert.Equal(t, "xsts-token", auth.AccessToken)
	assert.Equal(t, "hash123", auth.UserHash)
	assert.Equal(t, "2533274", auth.ExternalID)
}

func TestXboxExchange_HopFailuresNameTheHop(t *testing.T) {
	for _, hop := range []string{xboxHopMSToken, xboxHopUserToken, xboxHopXSTS} {
		t.Run(hop, func(t *testing.T) {
			srv := xboxTestServer(t, hop)
			defer srv.Close()

			p := newTestXboxProvider(srv)
			_, err := p.Exchange(context.Background(), "the-code")

			var credErr *CredentialExchangeError
			require.ErrorAs(t, err, &credErr)
			assert.Equal(t, ProviderXbox, credErr.Provider)
			assert.Equal(t, hop, credErr.Hop)
		})
	}
}

func TestXboxFetchProfile_SendsCompositeAuthHeader(t *testing.T) {
	srv := xboxTestServer(t, "")
	defer srv.Close()

	p := newTestXboxProvider(srv)
	auth := &AuthContext{AccessToken: "xsts-token", UserHash: "hash123", ExternalID: "2533274"}
	profile, err := p.FetchProfile(context.Background(), auth)
	require.NoError(t, err)

	assert.Equal(t, "2533274", profile.ExternalID)
	assert.Equal(t, "SomeGamertag", profile.DisplayName)
	assert.Equal(t, "https://img.example/pic.png", profile.AvatarURL)
}

func TestXboxFetchAchievements_SplitsByProgressState(t *testing.T) {
	srv := xboxTestServer(t, "")
	defer srv.Close()

	p := newTestXboxProvider(srv)
	auth := &AuthContext{AccessToken: "xsts-token", UserHash: "hash123", ExternalID: "2533274"}
	data, err := p.FetchAchievements(context.Background(), auth, "910")
	require.NoError(t, err)

	// the whole list is catalog, only Achieved entries become state
	require.Len(t, data.Catalog, 2)
	require.Len(t, data.Unlocked, 1)
	assert.Equal(t, "1", data.Unlocked[0].ID)
	assert.EqualValues(t, 1700000000, data.Unlocked[0].UnlockedUnix)
}

func TestXboxRefresh_NotSupported(t *testing.T) {
	p := NewXboxProvider("id", "secret")
	_, err := p.Refresh(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNotSupported)
}
