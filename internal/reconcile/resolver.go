package reconcile

import (
	"context"
	"strings"

	"github.com/agscout/trapsync/internal/database"
)

// ModelCardStore is the lookup surface the resolver needs from the
// destination schema.
type ModelCardStore interface {
	FindModelCardByCode(ctx context.Context, code string) (*database.ModelCard, error)
	SearchModelCard(ctx context.Context, term string) (*database.ModelCard, error)
}

// Resolution is a cached pest-name resolution outcome. Unmatched names
// are cached too, so repeat runs skip the lookup either way.
type Resolution struct {
	ModelID int64 `json:"model_id"`
	Matched bool  `json:"matched"`
}

// ResolutionCache is an optional cross-run cache in front of the
// ModelCard lookups. Get returns nil on a miss.
type ResolutionCache interface {
	Get(ctx context.Context, pestName string) (*Resolution, error)
	Put(ctx context.Context, pestName string, res Resolution) error
}

// pestAliases maps known scientific and common pest names to model
// codes. Matching is by case-insensitive substring, first entry wins.
var pestAliases = []struct {
	name string
	code string
}{
	{"navel orangeworm", "NOW"},
	{"amyelois transitella", "NOW"},
	{"codling moth", "CM"},
	{"cydia pomonella", "CM"},
	{"oriental fruit moth", "OFM"},
	{"grapholita molesta", "OFM"},
	{"peach twig borer", "PTB"},
	{"anarsia lineatella", "PTB"},
	{"san jose scale", "SJS"},
	{"quadraspidiotus perniciosus", "SJS"},
}

// splitSeparator is the "<scientific> - <common>" separator used by
// some source records.
const splitSeparator = " - "

// PestModelResolver maps free-text pest names to model ids. Best
// effort: an unmatched name is not an error, the caller skips the
// record and counts it.
type PestModelResolver struct {
	store ModelCardStore
	cache ResolutionCache
}

// NewPestModelResolver creates a resolver. cache may be nil.
func NewPestModelResolver(store ModelCardStore, cache ResolutionCache) *PestModelResolver {
	return &PestModelResolver{store: store, cache: cache}
}

// Resolve maps a pest name to a model id. The second return is false
// when no model matches.
func (r *PestModelResolver) Resolve(ctx context.Context, pestName *string) (int64, bool, error) {
	if pestName == nil {
		return 0, false, nil
	}
	name := strings.TrimSpace(*pestName)
	if name == "" {
		return 0, false, nil
	}

	folded := foldName(name)

	if r.cache != nil {
		// Cache read failures degrade to a plain lookup.
		if res, err := r.cache.Get(ctx, folded); err == nil && res != nil {
			return res.ModelID, res.Matched, nil
		}
	}

	id, ok, err := r.lookup(ctx, name, folded)
	if err != nil {
		return 0, false, err
	}

	if r.cache != nil {
		_ = r.cache.Put(ctx, folded, Resolution{ModelID: id, Matched: ok})
	}

	return id, ok, nil
}

func (r *PestModelResolver) lookup(ctx context.Context, name, folded string) (int64, bool, error) {
	// Known alias table first.
	for _, alias := range pestAliases {
		if !strings.Contains(folded, alias.name) {
			continue
		}
		card, err := r.store.FindModelCardByCode(ctx, alias.code)
		if err != nil {
			return 0, false, err
		}
		if card != nil {
			return card.ID, true, nil
		}
	}

	// "<scientific> - <common>": take the trailing common name and
	// search it against card names and codes.
	if idx := strings.Index(name, splitSeparator); idx >= 0 {
		term := strings.TrimSpace(name[idx+len(splitSeparator):])
		if term != "" {
			card, err := r.store.SearchModelCard(ctx, term)
			if err != nil {
				return 0, false, err
			}
			if card != nil {
				return card.ID, true, nil
			}
		}
	}

	return 0, false, nil
}
