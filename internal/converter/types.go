// Package converter turns raw source-specific score payloads into
// canonical dry scores with their resolved chart and song. Converters
// are pure aside from chart/song lookups and never write to the score
// store.
package converter

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"rhythm-tracker/internal/domain"
)

// ClassResolver fetches or derives externally-reported classes (dan
// ranks etc.) for a user. Returned by parsers whose source carries
// class data; merged into UGS recomputation after the import's
// aggregation phase.
type ClassResolver func(ctx context.Context, game domain.Game, playtype domain.Playtype, userID int, ratings map[string]*float64) (map[string]int, error)

// BatchContext is the per-batch conversion context shared by every
// record in one import run.
type BatchContext struct {
	Game     domain.Game
	Playtype domain.Playtype
	Service  string
	Version  string
}

// ParseResult is what a parser yields from one raw payload: the
// per-record iterable, the batch context, and an optional class
// resolver. Parse failures are whole-batch fatal.
type ParseResult struct {
	Records       []json.RawMessage
	Context       BatchContext
	ClassResolver ClassResolver
}

// Parser validates a whole raw payload and splits it into records.
type Parser func(payload []byte, logger zerolog.Logger) (*ParseResult, error)

// ConversionResult is a successfully converted record.
type ConversionResult struct {
	Song     *domain.Song
	Chart    *domain.Chart
	DryScore *domain.DryScore
}

// Converter converts one record. Failures are the typed errors in
// this package; anything else is treated as an internal failure.
type Converter func(ctx context.Context, record json.RawMessage, bctx BatchContext, logger zerolog.Logger) (*ConversionResult, error)

// ImportType bundles the parser and converter for one source format.
type ImportType struct {
	Name    string
	Parse   Parser
	Convert Converter

	// SupportsOrphaning reports whether DataNotFound records from
	// this source should enter the orphan queue instead of erroring.
	SupportsOrphaning bool

	// ClassResolver is the fallback resolver used when a payload
	// carries no class data of its own, for sources whose service
	// exposes profile classes remotely.
	ClassResolver ClassResolver
}

// Registry maps import type names to their implementations.
type Registry struct {
	types map[string]*ImportType
}

func NewRegistry(types ...*ImportType) *Registry {
	m := make(map[string]*ImportType, len(types))
	for _, t := range types {
		m[t.Name] = t
	}
	return &Registry{types: m}
}

// Get returns nil for an unknown import type.
func (r *Registry) Get(name string) *ImportType {
	return r.types[name]
}
