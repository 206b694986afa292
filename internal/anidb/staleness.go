package anidb

import (
	"time"

	"github.com/spf13/afero"
)

// StalenessOracle answers whether a host should re-resolve a series because
// its cached documents changed after the host last refreshed its own record.
//
// This is a scheduling question, not a fetch-now question, which is why a
// missing cache directory means "needs refresh" here while the cache itself
// treats the same absence as "go download".
type StalenessOracle struct {
	fs      afero.Fs
	cache   *Cache
	enabled bool
}

// NewStalenessOracle creates a new staleness oracle. When enabled is false
// (automatic updates turned off) it always answers no.
func NewStalenessOracle(fs afero.Fs, cache *Cache, enabled bool) *StalenessOracle {
	return &StalenessOracle{fs: fs, cache: cache, enabled: enabled}
}

// NeedsRefresh reports whether any cached top-level document for the series
// is newer than the host's last refresh time.
func (o *StalenessOracle) NeedsRefresh(seriesID string, lastRefresh time.Time) bool {
	if !o.enabled {
		return false
	}
	if seriesID == "" {
		// Nothing known, nothing to check.
		return false
	}

	dir := o.cache.SeriesDir(seriesID)
	entries, err := afero.ReadDir(o.fs, dir)
	if err != nil {
		return true
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if entry.ModTime().After(lastRefresh) {
			return true
		}
	}
	return false
}
