package anidb

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newTestOracle(fs afero.Fs, enabled bool) *StalenessOracle {
	cache := newTestCache(fs, &countingFetcher{fs: fs})
	return NewStalenessOracle(fs, cache, enabled)
}

func TestStalenessOracle_Disabled(t *testing.T) {
	fs := afero.NewMemMapFs()
	oracle := newTestOracle(fs, false)

	if oracle.NeedsRefresh("30", time.Time{}) {
		t.Error("disabled oracle must never request a refresh")
	}
}

func TestStalenessOracle_NoIdentifier(t *testing.T) {
	fs := afero.NewMemMapFs()
	oracle := newTestOracle(fs, true)

	if oracle.NeedsRefresh("", time.Now()) {
		t.Error("no identifier means nothing to check")
	}
}

func TestStalenessOracle_MissingDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	oracle := newTestOracle(fs, true)

	if !oracle.NeedsRefresh("30", time.Now()) {
		t.Error("missing cache directory means a refresh is due")
	}
}

func TestStalenessOracle_ComparesNewestFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	oracle := newTestOracle(fs, true)

	path := "/cache/anidb/series/30/series.xml"
	if err := afero.WriteFile(fs, path, []byte("<anime/>"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-time.Hour)
	if err := fs.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	if oracle.NeedsRefresh("30", time.Now()) {
		t.Error("cache older than the last refresh should not trigger")
	}
	if !oracle.NeedsRefresh("30", time.Now().Add(-2*time.Hour)) {
		t.Error("cache newer than the last refresh should trigger")
	}
}
