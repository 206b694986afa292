package anidb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrSeriesNotFound is returned when no series identifier could be resolved
// for a name.
var ErrSeriesNotFound = errors.New("series not found")

// SeriesMatcher resolves a free-text series name to a provider identifier.
// Fuzzy matching lives outside this module; implementations return an empty
// identifier when nothing matched.
type SeriesMatcher interface {
	FindSeriesID(ctx context.Context, name string) (string, error)
}

// Resolver orchestrates one series resolution: identifier lookup, cache
// refresh, and parsing of the cached document.
type Resolver struct {
	matcher SeriesMatcher
	cache   *Cache
	parser  *Parser
	oracle  *StalenessOracle
	lang    string
	logger  zerolog.Logger
}

// NewResolver creates a new series resolver.
func NewResolver(matcher SeriesMatcher, cache *Cache, parser *Parser, oracle *StalenessOracle, preferredLanguage string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		matcher: matcher,
		cache:   cache,
		parser:  parser,
		oracle:  oracle,
		lang:    preferredLanguage,
		logger:  logger.With().Str("component", "anidb-resolver").Logger(),
	}
}

// Resolve produces the series record for a series name and optional known
// provider identifier. When no identifier is supplied the external matcher
// is consulted; ErrSeriesNotFound is returned if it finds nothing.
func (r *Resolver) Resolve(ctx context.Context, name, knownID string) (*SeriesRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := knownID
	if id == "" {
		found, err := r.matcher.FindSeriesID(ctx, name)
		if err != nil {
			return nil, err
		}
		if found == "" {
			r.logger.Debug().Str("name", name).Msg("No series id matched")
			return nil, ErrSeriesNotFound
		}
		id = found
	}

	path, err := r.cache.EnsureFresh(ctx, id)
	if err != nil {
		return nil, err
	}

	record, err := r.parser.Parse(path, r.lang)
	if err != nil {
		return nil, err
	}
	record.ProviderIDs[ProviderName] = id

	r.logger.Debug().
		Str("seriesId", id).
		Str("title", record.Name).
		Msg("Resolved series")

	return record, nil
}

// NeedsRefresh exposes the staleness oracle so hosts can schedule
// re-resolution from the same handle they resolve with.
func (r *Resolver) NeedsRefresh(seriesID string, lastRefresh time.Time) bool {
	return r.oracle.NeedsRefresh(seriesID, lastRefresh)
}
