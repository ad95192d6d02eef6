package models

import "time"

// Title is the canonical shape for one owned game on one provider. IDs are
// provider-scoped — uniqueness is (provider, id), which is also the key path
// the store writes it under.
type Title struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`

	CoverURL *string `json:"cover_url,omitempty"`

	// Completion percentage, recomputed from the achievement list whenever
	// achievements are present (two decimals, 0–100).
	Progress float64 `json:"progress"`

	Achievements []Achievement `json:"achievements"`

	// Total play duration in the provider's native units, pre-formatted
	// (e.g. "34h25m0s"). Nil when the provider doesn't expose playtime.
	Playtime *string `json:"playtime,omitempty"`

	LastPlayedAt *time.Time `json:"last_played_at,omitempty"`
}

// Achievement is immutable once normalized for a sync pass — a later pass
// replaces a title's whole list instead of patching entries.
type Achievement struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}
