package reconcile

import (
	"testing"
	"time"

	"github.com/agscout/trapsync/internal/database"
)

func TestLocationKey_RoundsCoordinates(t *testing.T) {
	key := LocationKey("T1", 10.123456789, 20.987654321, 2026)
	want := "t1|10.123457|20.987654|2026"
	if key != want {
		t.Errorf("Expected key %q, got %q", want, key)
	}
}

func TestLocationKey_CaseInsensitive(t *testing.T) {
	a := LocationKey("Trap Alpha", 1.5, 2.5, 2026)
	b := LocationKey("TRAP ALPHA", 1.5, 2.5, 2026)
	if a != b {
		t.Errorf("Expected identical keys, got %q and %q", a, b)
	}
}

func TestLocationKey_AbsorbsFloatNoise(t *testing.T) {
	// Values differing past the 6th decimal are the same location
	a := LocationKey("T1", 10.1234567, 20.9876543, 2026)
	b := LocationKey("T1", 10.1234571, 20.9876539, 2026)
	if a != b {
		t.Errorf("Expected identical keys, got %q and %q", a, b)
	}
}

func TestLocationKey_TrimsName(t *testing.T) {
	a := LocationKey("  T1  ", 1, 2, 2026)
	b := LocationKey("T1", 1, 2, 2026)
	if a != b {
		t.Errorf("Expected identical keys, got %q and %q", a, b)
	}
}

func TestTrapKey_FallbackOrder(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	year := 2023

	lat, lng := 1.0, 2.0
	id, name := "T1", "Plain Name"

	// Explicit survey year wins
	trap := &database.SourceTrap{TrapID: &id, Lat: &lat, Lng: &lng, SurveyYear: &year, CreatedAt: &created}
	key, ok := trapKey(trap, now)
	if !ok {
		t.Fatal("Expected a valid key")
	}
	if key != LocationKey("T1", 1, 2, 2023) {
		t.Errorf("Expected survey year 2023 in key, got %q", key)
	}

	// Creation date year next
	trap = &database.SourceTrap{TrapID: &id, Lat: &lat, Lng: &lng, CreatedAt: &created}
	key, _ = trapKey(trap, now)
	if key != LocationKey("T1", 1, 2, 2024) {
		t.Errorf("Expected creation year 2024 in key, got %q", key)
	}

	// Current year last
	trap = &database.SourceTrap{TrapID: &id, Lat: &lat, Lng: &lng}
	key, _ = trapKey(trap, now)
	if key != LocationKey("T1", 1, 2, 2026) {
		t.Errorf("Expected current year 2026 in key, got %q", key)
	}

	// Identifier preferred over plain name
	trap = &database.SourceTrap{TrapID: &id, Name: &name, Lat: &lat, Lng: &lng}
	key, _ = trapKey(trap, now)
	if key != LocationKey("T1", 1, 2, 2026) {
		t.Errorf("Expected identifier in key, got %q", key)
	}

	// Plain name when no identifier
	trap = &database.SourceTrap{Name: &name, Lat: &lat, Lng: &lng}
	key, _ = trapKey(trap, now)
	if key != LocationKey("Plain Name", 1, 2, 2026) {
		t.Errorf("Expected plain name in key, got %q", key)
	}
}

func TestTrapKey_InvalidTraps(t *testing.T) {
	now := time.Now()
	lat, lng := 1.0, 2.0
	blank := "   "

	if _, ok := trapKey(&database.SourceTrap{Lat: &lat, Lng: &lng}, now); ok {
		t.Error("Expected no key for a nameless trap")
	}
	if _, ok := trapKey(&database.SourceTrap{TrapID: &blank, Lat: &lat, Lng: &lng}, now); ok {
		t.Error("Expected no key for a blank-named trap")
	}
	name := "T1"
	if _, ok := trapKey(&database.SourceTrap{TrapID: &name, Lng: &lng}, now); ok {
		t.Error("Expected no key without latitude")
	}
}

func TestLocationKeyMap_KeepsFirstID(t *testing.T) {
	locations := []*database.Location{
		{ID: 5, Name: "T1", Lat: 1, Lng: 2, SurveyYear: 2026},
		{ID: 9, Name: "t1", Lat: 1, Lng: 2, SurveyYear: 2026},
	}
	byKey := LocationKeyMap(locations)
	if len(byKey) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(byKey))
	}
	if id := byKey[LocationKey("T1", 1, 2, 2026)]; id != 5 {
		t.Errorf("Expected first id 5, got %d", id)
	}
}
