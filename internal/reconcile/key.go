package reconcile

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/agscout/trapsync/internal/database"
)

// LocationKey computes the stable identity key of a location. Names are
// Unicode case-folded so that "Trap A" and "TRAP a" key identically
// regardless of which schema the row came from, and coordinates are
// rounded to 6 decimal places to absorb float noise from repeated
// storage round-trips.
func LocationKey(name string, lat, lng float64, surveyYear int) string {
	return fmt.Sprintf("%s|%.6f|%.6f|%d", foldName(name), roundCoord(lat), roundCoord(lng), surveyYear)
}

// foldName normalizes a name for matching. Case folding rather than
// ToLower: the source schema holds operator-entered names in mixed
// scripts.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func roundCoord(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// trapDisplayName picks the trap's location name: the dedicated
// identifier field when present, otherwise the plain name field.
func trapDisplayName(t *database.SourceTrap) string {
	if t.TrapID != nil && strings.TrimSpace(*t.TrapID) != "" {
		return strings.TrimSpace(*t.TrapID)
	}
	if t.Name != nil {
		return strings.TrimSpace(*t.Name)
	}
	return ""
}

// trapSurveyYear resolves the survey year for a trap: the explicit
// survey_year column, else the year of the trap's creation date, else
// the current calendar year.
func trapSurveyYear(t *database.SourceTrap, now time.Time) int {
	if t.SurveyYear != nil && *t.SurveyYear > 0 {
		return *t.SurveyYear
	}
	if t.CreatedAt != nil {
		return t.CreatedAt.Year()
	}
	return now.Year()
}

// trapKey computes a trap's location identity key. The second return is
// false when the trap cannot form a valid key (blank name or missing
// coordinates).
func trapKey(t *database.SourceTrap, now time.Time) (string, bool) {
	name := trapDisplayName(t)
	if name == "" || t.Lat == nil || t.Lng == nil {
		return "", false
	}
	return LocationKey(name, *t.Lat, *t.Lng, trapSurveyYear(t, now)), true
}

// LocationKeySet computes the identity keys of existing destination
// locations.
func LocationKeySet(locations []*database.Location) map[string]struct{} {
	keys := make(map[string]struct{}, len(locations))
	for _, l := range locations {
		keys[LocationKey(l.Name, l.Lat, l.Lng, l.SurveyYear)] = struct{}{}
	}
	return keys
}

// LocationKeyMap maps identity keys to destination location ids.
func LocationKeyMap(locations []*database.Location) map[string]int64 {
	byKey := make(map[string]int64, len(locations))
	for _, l := range locations {
		key := LocationKey(l.Name, l.Lat, l.Lng, l.SurveyYear)
		if _, ok := byKey[key]; !ok {
			byKey[key] = l.ID
		}
	}
	return byKey
}
