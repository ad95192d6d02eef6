// services/normalizer.go — pure mapping from raw provider records to the
// canonical shapes. No I/O here; everything is deterministic and unit-tested.
package services

import (
	"math"
	"time"

	"game-library-system/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Shown when a provider omits an achievement description (hidden/secret
// achievements on most platforms).
const AchievementDescriptionPlaceholder = "Hidden achievement"

var titleCaser = cases.Title(language.English)

// MergeTitleAchievements left-joins unlocked state onto the catalog by
// achievement id. The catalog is authoritative: states whose id is missing
// from the catalog are dropped, catalog entries never earned come out with
// Unlocked=false and no timestamp.
func MergeTitleAchievements(catalog []RawAchievementDef, unlocked []RawAchievementState) []models.Achievement {
	states := make(map[string]RawAchievementState, len(unlocked))
	for _, s := range unlocked {
		states[s.ID] = s
	}

	out := make([]models.Achievement, 0, len(catalog))
	for _, def := range catalog {
		desc := def.Description
		if desc == "" {
			desc = AchievementDescriptionPlaceholder
		}
		a := models.Achievement{
			Title:       def.Title,
			Description: desc,
		}
		if s, ok := states[def.ID]; ok && s.Unlocked {
			a.Unlocked = true
			if s.UnlockedUnix > 0 {
				t := time.Unix(s.UnlockedUnix, 0).UTC()
				a.UnlockedAt = &t
			}
		}
		out = append(out, a)
	}
	return out
}

// ComputeProgress returns the completion percentage for an achievement list,
// rounded to two decimals. Empty list → 0.
func ComputeProgress(achievements []models.Achievement) float64 {
	if len(achievements) == 0 {
		return 0
	}
	unlocked := 0
	for _, a := range achievements {
		if a.Unlocked {
			unlocked++
		}
	}
	pct := 100 * float64(unlocked) / float64(len(achievements))
	return math.Round(pct*100) / 100
}

// NormalizeTitle maps a provider's raw title into the canonical shape.
// Achievements are attached separately by the orchestrator as each bounded
// fetch completes.
func NormalizeTitle(raw RawTitle, provider string) models.Title {
	t := models.Title{
		ID:           raw.ID,
		Name:         raw.Name,
		Provider:     provider,
		Achievements: []models.Achievement{},
	}
	if raw.CoverURL != "" {
		cover := raw.CoverURL
		t.CoverURL = &cover
	}
	if raw.PlaytimeMinutes != nil {
		formatted := FormatPlaytime(*raw.PlaytimeMinutes)
		t.Playtime = &formatted
	}
	if raw.LastPlayedUnix > 0 {
		lp := time.Unix(raw.LastPlayedUnix, 0).UTC()
		t.LastPlayedAt = &lp
	}
	return t
}

// FormatPlaytime renders provider playtime minutes as "XhYmZs".
func FormatPlaytime(minutes int64) string {
	return (time.Duration(minutes) * time.Minute).String()
}

// ProviderDisplayName is the human-facing provider label ("steam" → "Steam").
func ProviderDisplayName(provider string) string {
	switch provider {
	case ProviderPSN:
		return "PSN"
	default:
		return titleCaser.String(provider)
	}
}
