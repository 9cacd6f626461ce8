package reconcile

import (
	"context"
	"strings"
	"testing"

	"github.com/agscout/trapsync/internal/database"
)

type fakeCardStore struct {
	cards       []*database.ModelCard
	codeLookups int
	searches    int
}

func (f *fakeCardStore) FindModelCardByCode(ctx context.Context, code string) (*database.ModelCard, error) {
	f.codeLookups++
	for _, c := range f.cards {
		if c.Code == code {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCardStore) SearchModelCard(ctx context.Context, term string) (*database.ModelCard, error) {
	f.searches++
	term = strings.ToLower(term)
	for _, c := range f.cards {
		if strings.Contains(strings.ToLower(c.Name), term) || strings.Contains(strings.ToLower(c.Code), term) {
			return c, nil
		}
	}
	return nil, nil
}

type fakeResolutionCache struct {
	entries map[string]Resolution
	hits    int
}

func (f *fakeResolutionCache) Get(ctx context.Context, pestName string) (*Resolution, error) {
	if res, ok := f.entries[pestName]; ok {
		f.hits++
		return &res, nil
	}
	return nil, nil
}

func (f *fakeResolutionCache) Put(ctx context.Context, pestName string, res Resolution) error {
	f.entries[pestName] = res
	return nil
}

func testCards() []*database.ModelCard {
	return []*database.ModelCard{
		{ID: 3, Name: "Navel Orangeworm", Code: "NOW"},
		{ID: 4, Name: "Codling Moth", Code: "CM"},
		{ID: 8, Name: "Filbertworm", Code: "FW"},
	}
}

func strPtr(s string) *string { return &s }

func TestResolve_AliasSubstring(t *testing.T) {
	r := NewPestModelResolver(&fakeCardStore{cards: testCards()}, nil)

	id, ok, err := r.Resolve(context.Background(), strPtr("Navel Orangeworm - damage"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected a match")
	}
	if id != 3 {
		t.Errorf("Expected model id 3, got %d", id)
	}
}

func TestResolve_AliasCaseInsensitive(t *testing.T) {
	r := NewPestModelResolver(&fakeCardStore{cards: testCards()}, nil)

	id, ok, err := r.Resolve(context.Background(), strPtr("AMYELOIS TRANSITELLA"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !ok || id != 3 {
		t.Errorf("Expected model id 3, got id=%d ok=%v", id, ok)
	}
}

func TestResolve_NilAndEmpty(t *testing.T) {
	r := NewPestModelResolver(&fakeCardStore{cards: testCards()}, nil)

	if _, ok, _ := r.Resolve(context.Background(), nil); ok {
		t.Error("Expected no match for nil pest name")
	}
	if _, ok, _ := r.Resolve(context.Background(), strPtr("   ")); ok {
		t.Error("Expected no match for blank pest name")
	}
}

func TestResolve_SplitCommonName(t *testing.T) {
	store := &fakeCardStore{cards: testCards()}
	r := NewPestModelResolver(store, nil)

	// Not in the alias table; the trailing common name matches a card
	id, ok, err := r.Resolve(context.Background(), strPtr("Cydia latiferreana - Filbertworm"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !ok || id != 8 {
		t.Errorf("Expected model id 8, got id=%d ok=%v", id, ok)
	}
	if store.searches != 1 {
		t.Errorf("Expected 1 search, got %d", store.searches)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	r := NewPestModelResolver(&fakeCardStore{cards: testCards()}, nil)

	if _, ok, _ := r.Resolve(context.Background(), strPtr("Unknown Bug")); ok {
		t.Error("Expected no match for an unknown pest")
	}
}

func TestResolve_CachesOutcomes(t *testing.T) {
	store := &fakeCardStore{cards: testCards()}
	cache := &fakeResolutionCache{entries: make(map[string]Resolution)}
	r := NewPestModelResolver(store, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, ok, err := r.Resolve(ctx, strPtr("Codling Moth"))
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if !ok || id != 4 {
			t.Fatalf("Expected model id 4, got id=%d ok=%v", id, ok)
		}
	}
	if store.codeLookups != 1 {
		t.Errorf("Expected 1 store lookup, got %d", store.codeLookups)
	}
	if cache.hits != 2 {
		t.Errorf("Expected 2 cache hits, got %d", cache.hits)
	}

	// Unmatched names are cached too
	for i := 0; i < 2; i++ {
		if _, ok, _ := r.Resolve(ctx, strPtr("Unknown Bug")); ok {
			t.Fatal("Expected no match")
		}
	}
	if cache.hits != 3 {
		t.Errorf("Expected 3 cache hits, got %d", cache.hits)
	}
}
