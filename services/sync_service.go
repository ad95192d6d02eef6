// services/sync_service.go
package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"game-library-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SyncStage names one stage of a (user, provider) run. Only CredentialCheck
// and TitleList can fail the run; everything after degrades per item.
type SyncStage string

const (
	StageCredentialCheck  SyncStage = "CredentialCheck"
	StageFriendImport     SyncStage = "FriendImport"
	StageTitleList        SyncStage = "TitleList"
	StageAchievementFetch SyncStage = "AchievementFetch"
	StageMerge            SyncStage = "Merge"
	StageDone             SyncStage = "Done"
)

// SyncResult is what the caller sees for a completed run. The counts may be
// lower than the true upstream totals — per-item failures are excluded, not
// surfaced.
type SyncResult struct {
	TitlesImported  int `json:"titles_imported"`
	FriendsImported int `json:"friends_imported"`
}

// SyncService drives one end-to-end sync per (user, provider): exchange
// credentials → import friends → list titles → bounded achievement fetches →
// merge each title as it completes.
type SyncService struct {
	Store     AggregateStore
	Providers ProviderRegistry
	Pool      *FetchPool
	Covers    *CoverArtService // nil when R2 isn't configured
}

func NewSyncService(store AggregateStore, providers ProviderRegistry, pool *FetchPool, covers *CoverArtService) *SyncService {
	return &SyncService{Store: store, Providers: providers, Pool: pool, Covers: covers}
}

// StartSync runs a full sync from fresh authorization material and persists
// the exchanged credentials for later refreshes.
func (s *SyncService) StartSync(ctx context.Context, userID, provider, material string) (*SyncResult, error) {
	adapter, ok := s.Providers.Get(provider)
	if !ok {
		return nil, &RunError{Stage: StageCredentialCheck, Err: errors.New("unknown provider " + provider)}
	}

	runID := uuid.NewString()[:8]
	log.Printf("[SYNC] 🚀 run=%s user=%s provider=%s starting", runID, userID, provider)

	auth, err := adapter.Exchange(ctx, material)
	if err != nil {
		log.Printf("[SYNC] ❌ run=%s credential exchange failed: %v", runID, err)
		return nil, &RunError{Stage: StageCredentialCheck, Err: err}
	}

	profile, err := adapter.FetchProfile(ctx, auth)
	if err != nil {
		// Without the provider-side identity nothing downstream can be
		// addressed, so this is still a CredentialCheck failure.
		log.Printf("[SYNC] ❌ run=%s profile fetch failed: %v", runID, err)
		return nil, &RunError{Stage: StageCredentialCheck, Err: err}
	}
	if auth.ExternalID == "" {
		auth.ExternalID = profile.ExternalID
	}

	account := models.LinkedAccount{
		ExternalID:   auth.ExternalID,
		DisplayName:  profile.DisplayName,
		AvatarURL:    profile.AvatarURL,
		AccessToken:  auth.AccessToken,
		RefreshToken: auth.RefreshToken,
		UserHash:     auth.UserHash,
		LinkedAt:     time.Now().UTC(),
	}
	if !auth.ExpiresAt.IsZero() {
		expires := auth.ExpiresAt
		account.ExpiresAt = &expires
	}
	if err := s.Store.SaveLinkedAccount(ctx, userID, provider, account); err != nil {
		return nil, &RunError{Stage: StageCredentialCheck, Err: err}
	}

	friends := s.importFriends(ctx, runID, userID, adapter, auth)

	titles, err := s.syncTitles(ctx, runID, userID, adapter, auth)
	if err != nil {
		return nil, err
	}

	log.Printf("[SYNC] ✅ run=%s done: %d titles, %d friends", runID, titles, friends)
	return &SyncResult{TitlesImported: titles, FriendsImported: friends}, nil
}

// RefreshTitles re-runs the title+achievement half only, from stored
// credentials. Hinted providers without a linked account are skipped, not
// failed — the sweep reports how many titles it actually refreshed.
func (s *SyncService) RefreshTitles(ctx context.Context, userID string, providerHints []string) (int, error) {
	if len(providerHints) == 0 {
		for name := range s.Providers {
			providerHints = append(providerHints, name)
		}
	}

	updated := 0
	for _, provider := range providerHints {
		adapter, ok := s.Providers.Get(provider)
		if !ok {
			continue
		}
		account, err := s.Store.LinkedAccount(ctx, userID, provider)
		if err != nil {
			return updated, err
		}
		if account == nil {
			continue
		}

		auth, err := s.authFromAccount(ctx, userID, provider, adapter, account)
		if err != nil {
			return updated, &RunError{Stage: StageCredentialCheck, Err: err}
		}

		runID := uuid.NewString()[:8]
		n, err := s.syncTitles(ctx, runID, userID, adapter, auth)
		if err != nil {
			return updated, err
		}
		log.Printf("[REFRESH] ✅ run=%s user=%s provider=%s refreshed %d titles", runID, userID, provider, n)
		updated += n
	}
	return updated, nil
}

// authFromAccount rebuilds an AuthContext from stored credentials, refreshing
// the access token when it has expired and the provider supports it.
func (s *SyncService) authFromAccount(ctx context.Context, userID, provider string, adapter ProviderAdapter, account *models.LinkedAccount) (*AuthContext, error) {
	if !account.Expired() {
		auth := &AuthContext{
			AccessToken: account.AccessToken,
			UserHash:    account.UserHash,
			ExternalID:  account.ExternalID,
		}
		if account.ExpiresAt != nil {
			auth.ExpiresAt = *account.ExpiresAt
		}
		return auth, nil
	}

	if account.RefreshToken == "" {
		return nil, &CredentialExchangeError{Provider: provider, Hop: "refresh", Err: errors.New("access token expired and no refresh token stored")}
	}
	auth, err := adapter.Refresh(ctx, account.RefreshToken)
	if err != nil {
		return nil, err
	}
	if auth.ExternalID == "" {
		auth.ExternalID = account.ExternalID
	}

	refreshed := *account
	refreshed.AccessToken = auth.AccessToken
	if auth.RefreshToken != "" {
		refreshed.RefreshToken = auth.RefreshToken
	}
	if !auth.ExpiresAt.IsZero() {
		expires := auth.ExpiresAt
		refreshed.ExpiresAt = &expires
	}
	if err := s.Store.SaveLinkedAccount(ctx, userID, provider, refreshed); err != nil {
		return nil, err
	}
	return auth, nil
}

// importFriends pulls the provider's friend list as a complete snapshot.
// Any failure here means "import zero friends this pass" — friend data and
// title data are independent outputs of one run.
func (s *SyncService) importFriends(ctx context.Context, runID, userID string, adapter ProviderAdapter, auth *AuthContext) int {
	if !adapter.Capabilities().Friends {
		return 0
	}
	provider := adapter.Name()

	ids, err := adapter.FetchFriendIDs(ctx, auth)
	if err != nil {
		log.Printf("[SYNC] ⚠️ run=%s friend list unavailable for %s, importing none: %v", runID, provider, err)
		return 0
	}

	var (
		mu    sync.Mutex
		edges []models.FriendEdge
		wg    sync.WaitGroup
	)
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Pool.Run(ctx, ClassFriendProfiles, func() error {
				profile, err := adapter.FetchFriendProfile(ctx, auth, id)
				if err != nil {
					return err
				}
				mu.Lock()
				edges = append(edges, models.FriendEdge{
					AccountID:   profile.ExternalID,
					DisplayName: profile.DisplayName,
					ProfileURL:  profile.ProfileURL,
					AvatarURL:   profile.AvatarURL,
					Status:      models.FriendStatusAccepted, // providers expose no pending concept
					Source:      provider,
				})
				mu.Unlock()
				return nil
			})
			if err != nil {
				log.Printf("[SYNC] ⚠️ run=%s skipping friend %s: %v", runID, id, err)
			}
		}()
	}
	wg.Wait()

	if err := s.Store.SetFriendEdges(ctx, userID, provider, edges); err != nil {
		log.Printf("[SYNC] ⚠️ run=%s persisting friend edges failed: %v", runID, err)
		return 0
	}
	return len(edges)
}

// syncTitles lists owned titles and fans achievement fetches out through the
// bounded pool, merging each title as its fetch completes. A per-title
// achievement failure keeps the title with an empty list and progress 0 —
// ownership survives achievement-API unavailability.
func (s *SyncService) syncTitles(ctx context.Context, runID, userID string, adapter ProviderAdapter, auth *AuthContext) (int, error) {
	provider := adapter.Name()

	raws, err := adapter.FetchOwnedTitles(ctx, auth)
	if err != nil {
		log.Printf("[SYNC] ❌ run=%s title list failed for %s: %v", runID, provider, err)
		return 0, &RunError{Stage: StageTitleList, Err: err}
	}

	caps := adapter.Capabilities()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		imported int
	)
	for _, raw := range raws {
		raw := raw
		wg.Add(1)
		go func() {
			defer wg.Done()

			if !caps.Playtime {
				raw.PlaytimeMinutes = nil
			}
			title := NormalizeTitle(raw, provider)
			if caps.Achievements {
				err := s.Pool.Run(ctx, ClassAchievements, func() error {
					data, err := adapter.FetchAchievements(ctx, auth, raw.ID)
					if err != nil {
						return err
					}
					title.Achievements = MergeTitleAchievements(data.Catalog, data.Unlocked)
					return nil
				})
				if err != nil {
					log.Printf("[SYNC] ⚠️ run=%s achievements unavailable for %s/%s: %v", runID, provider, raw.ID, err)
					title.Achievements = []models.Achievement{}
				}
			}
			title.Progress = ComputeProgress(title.Achievements)

			if s.Covers != nil && title.CoverURL != nil {
				if cdn, err := s.Covers.MirrorCover(ctx, provider, title.ID, title.Name, *title.CoverURL); err == nil {
					title.CoverURL = &cdn
				} else {
					log.Printf("[SYNC] ⚠️ run=%s cover mirror failed for %s/%s, keeping source URL: %v", runID, provider, raw.ID, err)
				}
			}

			if err := s.Store.UpsertTitle(ctx, userID, provider, title); err != nil {
				log.Printf("[SYNC] ⚠️ run=%s skipping title %s/%s, merge failed: %v", runID, provider, raw.ID, err)
				return
			}
			mu.Lock()
			imported++
			mu.Unlock()
		}()
	}
	wg.Wait()

	return imported, nil
}

// --- Fiber handlers ---

func (s *SyncService) HandleStartSync(c *fiber.Ctx) error {
	provider := c.Params("provider")
	var body struct {
		AuthorizationCode string `json:"authorization_code"`
	}
	if err := c.BodyParser(&body); err != nil || body.AuthorizationCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "authorization_code is required"})
	}

	result, err := s.StartSync(c.UserContext(), actingUserID(c), provider, body.AuthorizationCode)
	if err != nil {
		return syncErrorResponse(c, err)
	}
	return c.JSON(result)
}

func (s *SyncService) HandleRefresh(c *fiber.Ctx) error {
	var body struct {
		Providers []string `json:"providers"`
	}
	_ = c.BodyParser(&body) // empty body means "all linked providers"

	updated, err := s.RefreshTitles(c.UserContext(), actingUserID(c), body.Providers)
	if err != nil {
		return syncErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"updated": updated})
}

// HandleLibrary returns the user's aggregated owned titles, grouped per
// provider with the human-facing label.
func (s *SyncService) HandleLibrary(c *fiber.Ctx) error {
	agg, err := s.Store.Get(c.UserContext(), actingUserID(c))
	if err != nil {
		return syncErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"library": libraryView(agg.OwnedTitles)})
}

type providerLibrary struct {
	Provider string                  `json:"provider"`
	Label    string                  `json:"label"`
	Titles   map[string]models.Title `json:"titles"`
}

// libraryView flattens the owned-titles map into a stable provider-ordered
// list so the frontend doesn't re-derive labels or ordering per render.
func libraryView(owned models.OwnedTitleMap) []providerLibrary {
	providers := make([]string, 0, len(owned))
	for name := range owned {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	view := make([]providerLibrary, 0, len(providers))
	for _, name := range providers {
		view = append(view, providerLibrary{
			Provider: name,
			Label:    ProviderDisplayName(name),
			Titles:   owned[name],
		})
	}
	return view
}

func syncErrorResponse(c *fiber.Ctx, err error) error {
	var runErr *RunError
	if errors.As(err, &runErr) {
		status := fiber.StatusBadGateway
		var credErr *CredentialExchangeError
		if errors.As(err, &credErr) {
			status = fiber.StatusUnauthorized
		}
		return c.Status(status).JSON(fiber.Map{
			"error": runErr.Err.Error(),
			"stage": string(runErr.Stage),
		})
	}
	if errors.Is(err, models.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	log.Printf("[SYNC] ❌ %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
