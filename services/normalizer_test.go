package services

import (
	"testing"
	"time"

	"game-library-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeTitleAchievements(t *testing.T) {
	catalog := []RawAchievementDef{
		{ID: "ACH_WIN_1", Title: "First Victory", Description: "Win a round"},
		{ID: "ACH_WIN_100", Title: "Centurion", Description: ""},
		{ID: "ACH_SECRET", Title: "???", Description: "Shh"},
	}
	unlocked := []RawAchievementState{
		{ID: "ACH_WIN_1", Unlocked: true, UnlockedUnix: 1700000000},
		{ID: "ACH_REMOVED", Unlocked: true, UnlockedUnix: 1700000001}, // not in catalog
	}

	got := MergeTitleAchievements(catalog, unlocked)
	require.Len(t, got, 3, "catalog is authoritative — output never exceeds it")

	assert.True(t, got[0].Unlocked)
	require.NotNil(t, got[0].UnlockedAt)
	assert.Equal(t, int64(1700000000), got[0].UnlockedAt.Unix())

	// never earned → unlocked=false, no timestamp
	assert.False(t, got[1].Unlocked)
	assert.Nil(t, got[1].UnlockedAt)
	// empty description falls back to the placeholder
	assert.Equal(t, AchievementDescriptionPlaceholder, got[1].Description)

	assert.False(t, got[2].Unlocked)

	// the state entry absent from the catalog was dropped
	for _, a := range got {
		assert.NotEqual(t, "ACH_REMOVED", a.Title)
	}
}

func TestMergeTitleAchievements_UnknownUnlockTime(t *testing.T) {
	got := MergeTitleAchievements(
		[]RawAchievementDef{{ID: "a", Title: "A"}},
		[]RawAchievementState{{ID: "a", Unlocked: true, UnlockedUnix: 0}},
	)
	require.Len(t, got, 1)
	assert.True(t, got[0].Unlocked)
	assert.Nil(t, got[0].UnlockedAt, "zero epoch means unlocked at an unknown time")
}

func TestMergeTitleAchievements_EmptyInputs(t *testing.T) {
	assert.Empty(t, MergeTitleAchievements(nil, nil))
	assert.Empty(t, MergeTitleAchievements(nil, []RawAchievementState{{ID: "x", Unlocked: true}}))
}

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name     string
		unlocked int
		total    int
		want     float64
	}{
		{"empty list", 0, 0, 0},
		{"one of four", 1, 4, 25.0},
		{"all unlocked", 7, 7, 100.0},
		{"rounds to two decimals", 1, 3, 33.33},
		{"two thirds", 2, 3, 66.67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			achievements := make([]models.Achievement, 0, tt.total)
			for i := 0; i < tt.total; i++ {
				achievements = append(achievements, models.Achievement{Unlocked: i < tt.unlocked})
			}
			assert.Equal(t, tt.want, ComputeProgress(achievements))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	playtime := int64(3 * 60)
	raw := RawTitle{
		ID:              "220",
		Name:            "Half-Life 2",
		CoverURL:        "https://cdn.example.com/220/header.jpg",
		PlaytimeMinutes: &playtime,
		LastPlayedUnix:  1700000000,
	}

	title := NormalizeTitle(raw, ProviderSteam)
	assert.Equal(t, "220", title.ID)
	assert.Equal(t, ProviderSteam, title.Provider)
	require.NotNil(t, title.CoverURL)
	require.NotNil(t, title.Playtime)
	assert.Equal(t, "3h0m0s", *title.Playtime)
	require.NotNil(t, title.LastPlayedAt)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), *title.LastPlayedAt)
	assert.NotNil(t, title.Achievements, "achievement list starts empty, never nil")
	assert.Zero(t, title.Progress)
}

func TestNormalizeTitle_Sentinels(t *testing.T) {
	title := NormalizeTitle(RawTitle{ID: "x", Name: "X"}, ProviderEpic)
	assert.Nil(t, title.CoverURL)
	assert.Nil(t, title.Playtime, "providers without playtime stay nil")
	assert.Nil(t, title.LastPlayedAt, "zero epoch is the never-played sentinel")
}

func TestFormatPlaytime(t *testing.T) {
	assert.Equal(t, "0s", FormatPlaytime(0))
	assert.Equal(t, "45m0s", FormatPlaytime(45))
	assert.Equal(t, "34h25m0s", FormatPlaytime(34*60+25))
}

func TestProviderDisplayName(t *testing.T) {
	assert.Equal(t, "Steam", ProviderDisplayName(ProviderSteam))
	assert.Equal(t, "Xbox", ProviderDisplayName(ProviderXbox))
	assert.Equal(t, "PSN", ProviderDisplayName(ProviderPSN))
	assert.Equal(t, "Epic", ProviderDisplayName(ProviderEpic))
}
