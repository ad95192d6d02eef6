// services/aggregate_store.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"game-library-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AggregateStore is the merge surface over the per-user aggregate document.
// Services program against this interface; tests swap in an in-memory fake.
type AggregateStore interface {
	Get(ctx context.Context, userID string) (*models.UserAggregate, error)
	FindByPublicID(ctx context.Context, publicID string) (*models.UserAggregate, error)

	// UpsertTitle writes one title at key path (provider, titleID) without
	// touching any other path, so concurrent syncs for two providers commute.
	UpsertTitle(ctx context.Context, userID, provider string, title models.Title) error

	// SetFriendEdges replaces the whole edge list for one source key —
	// provider imports are always complete snapshots.
	SetFriendEdges(ctx context.Context, userID, source string, edges []models.FriendEdge) error

	// MirroredEdgeWrite applies one guarded op to each side's "User" edge
	// list. A failed guard makes that side a no-op, not an error; the two
	// applied flags tell the state machine whether anything matched.
	MirroredEdgeWrite(ctx context.Context, userA, userB string, opOnA, opOnB models.EdgeOp) (appliedA, appliedB bool, err error)

	SaveLinkedAccount(ctx context.Context, userID, provider string, account models.LinkedAccount) error
	LinkedAccount(ctx context.Context, userID, provider string) (*models.LinkedAccount, error)
	UsersWithLinkedAccounts(ctx context.Context) ([]models.UserAggregate, error)
}

// GormAggregateStore implements AggregateStore on Postgres. Every merge is a
// single UPDATE built around jsonb_set so the write is atomic at the key path
// and never a read-modify-write of the whole column.
type GormAggregateStore struct {
	DB *gorm.DB
}

func NewGormAggregateStore(db *gorm.DB) *GormAggregateStore {
	return &GormAggregateStore{DB: db}
}

func (s *GormAggregateStore) Get(ctx context.Context, userID string) (*models.UserAggregate, error) {
	var agg models.UserAggregate
	err := s.DB.WithContext(ctx).First(&agg, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (s *GormAggregateStore) FindByPublicID(ctx context.Context, publicID string) (*models.UserAggregate, error) {
	var agg models.UserAggregate
	err := s.DB.WithContext(ctx).First(&agg, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (s *GormAggregateStore) UpsertTitle(ctx context.Context, userID, provider string, title models.Title) error {
	payload, err := json.Marshal(title)
	if err != nil {
		return err
	}
	// Inner jsonb_set guarantees the provider key exists, outer one writes the
	// title — one statement, one atomic row update.
	res := s.DB.WithContext(ctx).Exec(`
		UPDATE user_aggregates
		SET owned_titles = jsonb_set(
			jsonb_set(COALESCE(owned_titles, '{}'::jsonb), ARRAY[?]::text[], COALESCE(owned_titles -> ?, '{}'::jsonb), true),
			ARRAY[?, ?]::text[], ?::jsonb, true),
		    updated_at = now()
		WHERE id = ? AND deleted_at IS NULL`,
		provider, provider, provider, title.ID, string(payload), userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *GormAggregateStore) SetFriendEdges(ctx context.Context, userID, source string, edges []models.FriendEdge) error {
	if edges == nil {
		edges = []models.FriendEdge{}
	}
	payload, err := json.Marshal(edges)
	if err != nil {
		return err
	}
	res := s.DB.WithContext(ctx).Exec(`
		UPDATE user_aggregates
		SET friends = jsonb_set(COALESCE(friends, '{}'::jsonb), ARRAY[?]::text[], ?::jsonb, true),
		    updated_at = now()
		WHERE id = ? AND deleted_at IS NULL`,
		source, string(payload), userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// MirroredEdgeWrite applies each half inside its own row-locked transaction.
// The two halves are deliberately not atomic as a pair — there is no
// cross-document transaction here. The guards make either ordering, and a
// retry after a crash between the halves, converge to the same end state.
func (s *GormAggregateStore) MirroredEdgeWrite(ctx context.Context, userA, userB string, opOnA, opOnB models.EdgeOp) (bool, bool, error) {
	appliedA, err := s.applyEdgeOp(ctx, userA, opOnA)
	if err != nil {
		return false, false, fmt.Errorf("edge write on %s: %w", userA, err)
	}
	appliedB, err := s.applyEdgeOp(ctx, userB, opOnB)
	if err != nil {
		return appliedA, false, fmt.Errorf("edge write on %s: %w", userB, err)
	}
	return appliedA, appliedB, nil
}

func (s *GormAggregateStore) applyEdgeOp(ctx context.Context, userID string, op models.EdgeOp) (bool, error) {
	applied := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agg models.UserAggregate
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&agg, "id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		edges, ok := op(agg.Friends[models.FriendSourceUser])
		if !ok {
			return nil // guard failed — per-side no-op
		}
		applied = true

		payload, err := json.Marshal(edges)
		if err != nil {
			return err
		}
		return tx.Exec(`
			UPDATE user_aggregates
			SET friends = jsonb_set(COALESCE(friends, '{}'::jsonb), ARRAY[?]::text[], ?::jsonb, true),
			    updated_at = now()
			WHERE id = ?`,
			models.FriendSourceUser, string(payload), userID).Error
	})
	return applied, err
}

func (s *GormAggregateStore) SaveLinkedAccount(ctx context.Context, userID, provider string, account models.LinkedAccount) error {
	payload, err := json.Marshal(account)
	if err != nil {
		return err
	}
	res := s.DB.WithContext(ctx).Exec(`
		UPDATE user_aggregates
		SET linked_accounts = jsonb_set(COALESCE(linked_accounts, '{}'::jsonb), ARRAY[?]::text[], ?::jsonb, true),
		    updated_at = now()
		WHERE id = ? AND deleted_at IS NULL`,
		provider, string(payload), userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *GormAggregateStore) LinkedAccount(ctx context.Context, userID, provider string) (*models.LinkedAccount, error) {
	agg, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	account, ok := agg.LinkedAccounts[provider]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (s *GormAggregateStore) UsersWithLinkedAccounts(ctx context.Context) ([]models.UserAggregate, error) {
	var aggs []models.UserAggregate
	err := s.DB.WithContext(ctx).
		Where("linked_accounts IS NOT NULL AND linked_accounts != '{}'::jsonb").
		Find(&aggs).Error
	return aggs, err
}
