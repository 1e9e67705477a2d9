package cache

import (
	"fmt"
	"strings"

	"esports-aggregator/internal/domain"

	"github.com/cespare/xxhash/v2"
)

type Key struct {
	Game       domain.GameKind   `json:"game"`
	Kind       domain.RecordKind `json:"kind"`
	ParamsHash uint64            `json:"params_hash"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%016x", k.Kind, k.Game, k.ParamsHash)
}

// KeyFor derives the cache key of a query. Filters are case-insensitive.
// Limit and ForceRefresh are not part of the key: entries hold the full
// provider payload and limits are applied when serving.
func KeyFor(q domain.Query) Key {
	return Key{Game: q.Game, Kind: q.Kind, ParamsHash: ParamsHash(q)}
}

func ParamsHash(q domain.Query) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(strings.ToLower(strings.TrimSpace(q.Team)))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strings.ToLower(strings.TrimSpace(q.Player)))
	return d.Sum64()
}

// Seed mixes the whole query into one value, for deterministic generators.
func Seed(q domain.Query) uint64 {
	return xxhash.Sum64String(KeyFor(q).String())
}
