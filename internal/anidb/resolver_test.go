package anidb

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animeta/animeta/internal/anidb/ratelimit"
	"github.com/animeta/animeta/internal/config"
)

type fakeMatcher struct {
	id  string
	err error
}

func (m *fakeMatcher) FindSeriesID(ctx context.Context, name string) (string, error) {
	return m.id, m.err
}

// newTestResolver wires the whole pipeline against an httptest server and
// returns the resolver plus the server's request counter.
func newTestResolver(t *testing.T, matcher SeriesMatcher) (*Resolver, *atomic.Int32) {
	t.Helper()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(sampleSeriesDoc))
		_ = gz.Close()
	}))
	t.Cleanup(server.Close)

	cfg := config.AniDBConfig{
		Client:            "animeta",
		ClientVersion:     1,
		BaseURL:           server.URL,
		ImageBaseURL:      "http://img7.anidb.net/pics/anime/",
		Timeout:           5,
		PreferredLanguage: "en",
		TitlePreference:   "localized",
	}

	fs := afero.NewMemMapFs()
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Min:     time.Millisecond,
		Average: time.Millisecond,
		Burst:   time.Millisecond,
	}, zerolog.Nop())
	client := NewClient(cfg, fs, zerolog.Nop())
	splitter := NewSplitter(fs, zerolog.Nop())
	cache := NewCache(fs, "/cache", 7*24*time.Hour, limiter, client, splitter, zerolog.Nop())
	parser := NewParser(cfg, fs, zerolog.Nop())
	oracle := NewStalenessOracle(fs, cache, true)

	return NewResolver(matcher, cache, parser, oracle, cfg.PreferredLanguage, zerolog.Nop()), &requests
}

func TestResolver_KnownID(t *testing.T) {
	resolver, requests := newTestResolver(t, &fakeMatcher{})

	record, err := resolver.Resolve(context.Background(), "Neon Genesis Evangelion", "30")
	require.NoError(t, err)

	assert.Equal(t, "Neon Genesis Evangelion", record.Name)
	assert.Equal(t, "30", record.ProviderIDs[ProviderName])
	assert.Equal(t, "30", record.ProviderIDs[SecondaryProviderName])
	assert.Equal(t, int32(1), requests.Load())
}

func TestResolver_MatcherLookup(t *testing.T) {
	resolver, _ := newTestResolver(t, &fakeMatcher{id: "30"})

	record, err := resolver.Resolve(context.Background(), "evangelion", "")
	require.NoError(t, err)
	assert.Equal(t, "30", record.ProviderIDs[ProviderName])
}

func TestResolver_NoMatch(t *testing.T) {
	resolver, requests := newTestResolver(t, &fakeMatcher{})

	_, err := resolver.Resolve(context.Background(), "unknown series", "")
	require.ErrorIs(t, err, ErrSeriesNotFound)
	assert.Equal(t, int32(0), requests.Load(), "no identifier means no network access")
}

func TestResolver_MatcherError(t *testing.T) {
	wantErr := errors.New("matcher offline")
	resolver, _ := newTestResolver(t, &fakeMatcher{err: wantErr})

	_, err := resolver.Resolve(context.Background(), "anything", "")
	require.ErrorIs(t, err, wantErr)
}

func TestResolver_Idempotent(t *testing.T) {
	resolver, requests := newTestResolver(t, &fakeMatcher{})

	first, err := resolver.Resolve(context.Background(), "", "30")
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), "", "30")
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b), "repeat resolution over a fresh cache is byte-identical")
	assert.Equal(t, int32(1), requests.Load(), "repeat resolution performs zero additional network calls")
}

func TestResolver_Cancelled(t *testing.T) {
	resolver, requests := newTestResolver(t, &fakeMatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, "", "30")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), requests.Load())
}

func TestResolver_NeedsRefresh(t *testing.T) {
	resolver, _ := newTestResolver(t, &fakeMatcher{})

	_, err := resolver.Resolve(context.Background(), "", "30")
	require.NoError(t, err)

	assert.True(t, resolver.NeedsRefresh("30", time.Now().Add(-time.Hour)),
		"fresh download is newer than an hour-old host record")
	assert.False(t, resolver.NeedsRefresh("30", time.Now().Add(time.Hour)))
}
