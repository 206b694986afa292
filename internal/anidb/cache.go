package anidb

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/animeta/animeta/internal/anidb/ratelimit"
)

const (
	seriesFileName    = "series.xml"
	castFileName      = "cast.xml"
	episodeFilePrefix = "episode-"
)

// Fetcher downloads one raw series document to a destination path.
type Fetcher interface {
	FetchSeries(ctx context.Context, seriesID, destPath string) error
}

// Cache is the on-disk store of raw series documents.
//
// A document is fresh while it is younger than the staleness window; a fresh
// document is served without touching the network. Refreshes replace the
// document wholesale, never merge.
type Cache struct {
	fs       afero.Fs
	root     string
	window   time.Duration
	limiter  *ratelimit.Limiter
	fetcher  Fetcher
	splitter *Splitter
	logger   zerolog.Logger

	// group collapses concurrent refreshes of the same series into one
	// download, so a library scan cannot race itself into duplicate
	// fetches or torn cache writes.
	group singleflight.Group
}

// NewCache creates a new series document cache rooted at root.
func NewCache(fs afero.Fs, root string, window time.Duration, limiter *ratelimit.Limiter, fetcher Fetcher, splitter *Splitter, logger zerolog.Logger) *Cache {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &Cache{
		fs:       fs,
		root:     root,
		window:   window,
		limiter:  limiter,
		fetcher:  fetcher,
		splitter: splitter,
		logger:   logger.With().Str("component", "anidb-cache").Logger(),
	}
}

// SeriesDir returns the cache directory for one series.
func (c *Cache) SeriesDir(seriesID string) string {
	return filepath.Join(c.root, "anidb", "series", seriesID)
}

// SeriesPath returns the path of the cached raw document for one series.
func (c *Cache) SeriesPath(seriesID string) string {
	return filepath.Join(c.SeriesDir(seriesID), seriesFileName)
}

// EnsureFresh returns the path to a cached raw document for the series,
// downloading a new copy first when the cache is stale or missing.
func (c *Cache) EnsureFresh(ctx context.Context, seriesID string) (string, error) {
	path := c.SeriesPath(seriesID)

	if c.isFresh(path) {
		return path, nil
	}

	_, err, _ := c.group.Do(seriesID, func() (interface{}, error) {
		// A concurrent caller may have refreshed while this one queued.
		if c.isFresh(path) {
			return nil, nil
		}
		return nil, c.refresh(ctx, seriesID)
	})
	if err != nil {
		return "", err
	}

	return path, nil
}

func (c *Cache) isFresh(path string) bool {
	info, err := c.fs.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) <= c.window
}

// refresh downloads a new raw document and rebuilds the derived artifacts.
// The cached document is only replaced once the full response has been
// received and decompressed, so a cancelled download leaves the previous
// cache intact.
func (c *Cache) refresh(ctx context.Context, seriesID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	dir := c.SeriesDir(seriesID)
	if err := c.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	path := c.SeriesPath(seriesID)
	tmp := path + ".tmp"

	if err := c.fetcher.FetchSeries(ctx, seriesID, tmp); err != nil {
		_ = c.fs.Remove(tmp)
		return err
	}

	// The provider renumbers episodes between revisions; stale episode
	// artifacts must not outlive the document they were split from.
	c.removeEpisodeArtifacts(dir)

	if err := c.fs.Rename(tmp, path); err != nil {
		_ = c.fs.Remove(tmp)
		return fmt.Errorf("failed to replace cached document: %w", err)
	}

	if err := c.splitter.Split(path, dir); err != nil {
		c.logger.Warn().Err(err).Str("seriesId", seriesID).Msg("Failed to split cache artifacts")
	}

	c.logger.Info().Str("seriesId", seriesID).Msg("Refreshed series cache")
	return nil
}

// removeEpisodeArtifacts deletes every cached per-episode file under dir.
// A missing directory is not an error.
func (c *Cache) removeEpisodeArtifacts(dir string) {
	entries, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, episodeFilePrefix) || !strings.HasSuffix(name, ".xml") {
			continue
		}
		if err := c.fs.Remove(filepath.Join(dir, name)); err != nil {
			c.logger.Warn().Err(err).Str("path", name).Msg("Failed to remove episode artifact")
		}
	}
}
