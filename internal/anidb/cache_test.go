package anidb

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animeta/animeta/internal/anidb/ratelimit"
)

// countingFetcher writes a canned document and counts downloads.
type countingFetcher struct {
	fs      afero.Fs
	content string
	err     error
	calls   atomic.Int32
}

func (f *countingFetcher) FetchSeries(ctx context.Context, seriesID, destPath string) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	return afero.WriteFile(f.fs, destPath, []byte(f.content), 0644)
}

func newTestCache(fs afero.Fs, fetcher Fetcher) *Cache {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Min:     time.Millisecond,
		Average: time.Millisecond,
		Burst:   time.Millisecond,
	}, zerolog.Nop())
	splitter := NewSplitter(fs, zerolog.Nop())
	return NewCache(fs, "/cache", 7*24*time.Hour, limiter, fetcher, splitter, zerolog.Nop())
}

func TestCache_MissingTriggersOneFetch(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := &countingFetcher{fs: fs, content: sampleEpisodesDoc}
	cache := newTestCache(fs, fetcher)

	path, err := cache.EnsureFresh(context.Background(), "30")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load())

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, sampleEpisodesDoc, string(data))
}

func TestCache_FreshSkipsNetwork(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := &countingFetcher{fs: fs, content: sampleEpisodesDoc}
	cache := newTestCache(fs, fetcher)

	_, err := cache.EnsureFresh(context.Background(), "30")
	require.NoError(t, err)

	_, err = cache.EnsureFresh(context.Background(), "30")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.calls.Load(), "fresh cache must not refetch")
}

func TestCache_StaleTriggersRefetch(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := &countingFetcher{fs: fs, content: sampleEpisodesDoc}
	cache := newTestCache(fs, fetcher)

	path, err := cache.EnsureFresh(context.Background(), "30")
	require.NoError(t, err)

	old := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, fs.Chtimes(path, old, old))

	_, err = cache.EnsureFresh(context.Background(), "30")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.calls.Load())

	info, err := fs.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().After(old), "refresh must renew the document timestamp")
}

func TestCache_RemovesStaleEpisodeArtifacts(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := &countingFetcher{fs: fs, content: sampleEpisodesDoc}
	cache := newTestCache(fs, fetcher)

	// A leftover from a previous provider-side renumbering.
	require.NoError(t, afero.WriteFile(fs, "/cache/anidb/series/30/episode-99.xml", []byte("<episode/>"), 0644))

	_, err := cache.EnsureFresh(context.Background(), "30")
	require.NoError(t, err)

	ok, err := afero.Exists(fs, "/cache/anidb/series/30/episode-99.xml")
	require.NoError(t, err)
	assert.False(t, ok, "orphaned episode artifacts must not survive a refresh")

	ok, err = afero.Exists(fs, "/cache/anidb/series/30/episode-1.xml")
	require.NoError(t, err)
	assert.True(t, ok, "current episodes are re-split")
}

func TestCache_FetchFailureLeavesCacheIntact(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := &countingFetcher{fs: fs, content: sampleEpisodesDoc}
	cache := newTestCache(fs, fetcher)

	path, err := cache.EnsureFresh(context.Background(), "30")
	require.NoError(t, err)

	old := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, fs.Chtimes(path, old, old))

	fetcher.err = errors.New("network down")
	_, err = cache.EnsureFresh(context.Background(), "30")
	require.Error(t, err)

	data, readErr := afero.ReadFile(fs, path)
	require.NoError(t, readErr)
	assert.Equal(t, sampleEpisodesDoc, string(data), "failed refresh must not corrupt the cached document")
}

func TestCache_ConcurrentCallersShareOneDownload(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := &countingFetcher{fs: fs, content: sampleEpisodesDoc}
	cache := newTestCache(fs, fetcher)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.EnsureFresh(context.Background(), "30")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetcher.calls.Load(), "concurrent resolutions of one series share a download")
}

func TestCache_Cancellation(t *testing.T) {
	fs := afero.NewMemMapFs()
	fetcher := &countingFetcher{fs: fs, content: sampleEpisodesDoc}
	cache := newTestCache(fs, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.EnsureFresh(ctx, "30")
	require.ErrorIs(t, err, context.Canceled)

	ok, _ := afero.Exists(fs, cache.SeriesPath("30"))
	assert.False(t, ok, "cancelled refresh must not leave a partial document")
}
