package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// UserAggregate is the single per-user document holding everything we
// synchronize: linked provider accounts, the owned-titles map and the friends
// map. The row itself is created by the signup flow; this service only mutates
// it through the AggregateStore merge operations.
type UserAggregate struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	PublicID string `gorm:"uniqueIndex;not null" json:"public_id"` // in-app public identifier, used in friend edges
	Username string `gorm:"index;not null" json:"username"`
	Email    string `json:"email,omitempty"`

	AvatarURL *string `json:"avatar_url,omitempty"`

	// Per-provider linked identity + credential material. The token strings are
	// written by the signup/link flow already encrypted — this service treats
	// them as opaque except for the expiry check.
	LinkedAccounts LinkedAccountMap `gorm:"type:jsonb" json:"linked_accounts,omitempty"`

	// provider → titleID → Title
	OwnedTitles OwnedTitleMap `gorm:"type:jsonb" json:"owned_titles"`

	// source ("User" or a provider name) → edge list
	Friends FriendsMap `gorm:"type:jsonb" json:"friends"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// LinkedAccount holds one provider's identity and credential material for a user.
type LinkedAccount struct {
	ExternalID   string     `json:"external_id"`
	DisplayName  string     `json:"display_name,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	UserHash     string     `json:"user_hash,omitempty"` // Xbox user-hash half of the composite auth header
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LinkedAt     time.Time  `json:"linked_at"`
}

// Expired reports whether the stored access token is past its expiry.
// Accounts without a recorded expiry are assumed still valid.
func (a LinkedAccount) Expired() bool {
	return a.ExpiresAt != nil && time.Now().After(*a.ExpiresAt)
}

type LinkedAccountMap map[string]LinkedAccount

// OwnedTitleMap is provider → titleID → Title.
type OwnedTitleMap map[string]map[string]Title

// FriendsMap is source → ordered edge list.
type FriendsMap map[string][]FriendEdge

// jsonb plumbing — GORM needs Valuer/Scanner for map columns.

func jsonbValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonbScan(dest any, src any) error {
	if src == nil {
		return nil
	}
	switch s := src.(type) {
	case []byte:
		return json.Unmarshal(s, dest)
	case string:
		return json.Unmarshal([]byte(s), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

func (m LinkedAccountMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return jsonbValue(m)
}

func (m *LinkedAccountMap) Scan(src any) error { return jsonbScan(m, src) }

func (m OwnedTitleMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return jsonbValue(m)
}

func (m *OwnedTitleMap) Scan(src any) error { return jsonbScan(m, src) }

func (m FriendsMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return jsonbValue(m)
}

func (m *FriendsMap) Scan(src any) error { return jsonbScan(m, src) }

var ErrUserNotFound = errors.New("user not found")
