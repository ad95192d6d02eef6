package services

import (
	"context"
	"sync"

	"game-library-system/models"
)

// fakeStore is an in-memory AggregateStore with the same per-document write
// semantics as the Postgres implementation: each edge op applies under the
// store lock, mirrored halves are sequential and individually guarded.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*models.UserAggregate
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*models.UserAggregate{}}
}

func (s *fakeStore) addUser(id, publicID, username string) *models.UserAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := &models.UserAggregate{
		ID:             id,
		PublicID:       publicID,
		Username:       username,
		LinkedAccounts: models.LinkedAccountMap{},
		OwnedTitles:    models.OwnedTitleMap{},
		Friends:        models.FriendsMap{},
	}
	s.users[id] = agg
	return agg
}

func (s *fakeStore) Get(ctx context.Context, userID string) (*models.UserAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return agg, nil
}

func (s *fakeStore) FindByPublicID(ctx context.Context, publicID string) (*models.UserAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, agg := range s.users {
		if agg.PublicID == publicID {
			return agg, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (s *fakeStore) UpsertTitle(ctx context.Context, userID, provider string, title models.Title) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	if agg.OwnedTitles == nil {
		agg.OwnedTitles = models.OwnedTitleMap{}
	}
	if agg.OwnedTitles[provider] == nil {
		agg.OwnedTitles[provider] = map[string]models.Title{}
	}
	agg.OwnedTitles[provider][title.ID] = title
	return nil
}

func (s *fakeStore) SetFriendEdges(ctx context.Context, userID, source string, edges []models.FriendEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	if agg.Friends == nil {
		agg.Friends = models.FriendsMap{}
	}
	if edges == nil {
		edges = []models.FriendEdge{}
	}
	agg.Friends[source] = edges
	return nil
}

func (s *fakeStore) MirroredEdgeWrite(ctx context.Context, userA, userB string, opOnA, opOnB models.EdgeOp) (bool, bool, error) {
	appliedA, err := s.applyEdgeOp(userA, opOnA)
	if err != nil {
		return false, false, err
	}
	appliedB, err := s.applyEdgeOp(userB, opOnB)
	if err != nil {
		return appliedA, false, err
	}
	return appliedA, appliedB, nil
}

func (s *fakeStore) applyEdgeOp(userID string, op models.EdgeOp) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.users[userID]
	if !ok {
		return false, models.ErrUserNotFound
	}
	edges, applied := op(agg.Friends[models.FriendSourceUser])
	if !applied {
		return false, nil
	}
	if agg.Friends == nil {
		agg.Friends = models.FriendsMap{}
	}
	agg.Friends[models.FriendSourceUser] = edges
	return true, nil
}

func (s *fakeStore) SaveLinkedAccount(ctx context.Context, userID, provider string, account models.LinkedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	if agg.LinkedAccounts == nil {
		agg.LinkedAccounts = models.LinkedAccountMap{}
	}
	agg.LinkedAccounts[provider] = account
	return nil
}

func (s *fakeStore) LinkedAccount(ctx context.Context, userID, provider string) (*models.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.users[userID]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	account, ok := agg.LinkedAccounts[provider]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (s *fakeStore) UsersWithLinkedAccounts(ctx context.Context) ([]models.UserAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserAggregate
	for _, agg := range s.users {
		if len(agg.LinkedAccounts) > 0 {
			out = append(out, *agg)
		}
	}
	return out, nil
}

func (s *fakeStore) userEdges(userID string) []models.FriendEdge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID].Friends[models.FriendSourceUser]
}
