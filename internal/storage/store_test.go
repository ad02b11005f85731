package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestStorage_Hostnames(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	t.Run("returns nil for unknown addresses", func(tt *testing.T) {
		rec, err := store.GetHostname(ctx, "10.9.9.9")
		require.NoError(tt, err)
		assert.Nil(tt, rec)
	})

	t.Run("upsert increments visit count and overwrites fields", func(tt *testing.T) {
		first := HostnameRecord{IP: "10.0.0.1", Hostname: strPtr("a.example.com"), FoundAt: time.Now().UTC(), LookupLatencyMs: 12}
		require.NoError(tt, store.UpsertHostname(ctx, first))

		second := HostnameRecord{IP: "10.0.0.1", Hostname: strPtr("b.example.com"), FoundAt: time.Now().UTC(), LookupLatencyMs: 30}
		require.NoError(tt, store.UpsertHostname(ctx, second))

		rec, err := store.GetHostname(ctx, "10.0.0.1")
		require.NoError(tt, err)
		require.NotNil(tt, rec)
		require.NotNil(tt, rec.Hostname)
		assert.Equal(tt, "b.example.com", *rec.Hostname)
		assert.Equal(tt, uint32(30), rec.LookupLatencyMs)
		assert.Equal(tt, uint32(2), rec.VisitCount)
	})

	t.Run("stores misses with a null hostname", func(tt *testing.T) {
		require.NoError(tt, store.UpsertHostname(ctx, HostnameRecord{IP: "10.0.0.2", FoundAt: time.Now().UTC()}))
		rec, err := store.GetHostname(ctx, "10.0.0.2")
		require.NoError(tt, err)
		require.NotNil(tt, rec)
		assert.Nil(tt, rec.Hostname)
	})
}

func TestStorage_SiteMetadata(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)
	require.NoError(t, store.UpsertHostname(ctx, HostnameRecord{IP: "10.0.0.1", Hostname: strPtr("h"), FoundAt: time.Now().UTC()}))

	require.NoError(t, store.UpsertSiteMetadata(ctx, "10.0.0.1", SiteMetadata{Title: strPtr("old"), HTTPStatus: 200, FinalURL: "http://h/"}))
	require.NoError(t, store.UpsertSiteMetadata(ctx, "10.0.0.1", SiteMetadata{HTTPStatus: 503, SizeBytes: 42, FinalURL: "http://h/"}))

	meta, err := store.GetSiteMetadata(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Nil(t, meta.Title, "most recent fetch wins")
	assert.Equal(t, uint16(503), meta.HTTPStatus)
	assert.Equal(t, uint64(42), meta.SizeBytes)
}

func TestStorage_ScanHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	start := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.RecordScan(ctx, ScanSummary{
		RangeStart: "10.0.0.0", RangeEnd: "10.0.0.3", Mode: "sequential",
		Processed: 4, Found: 2, StartTime: start, EndTime: start.Add(time.Minute), DurationSeconds: 60,
	}))

	history, err := store.ScanHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, uint64(4), history[0].Processed)
	assert.Equal(t, uint64(2), history[0].Found)
}

func TestStorage_CrawlAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	save := func(url string, words []WordCount) {
		require.NoError(t, store.SaveCrawl(ctx,
			Site{URL: url, Title: url, Pages: 1, TotalWords: 10, CrawledAt: time.Now().UTC()},
			[]PageRecord{{URL: url, Title: "home", RawTextLength: 100}},
			words,
		))
	}

	save("http://a.example/", []WordCount{{"golang", 5}, {"crawler", 2}})
	save("http://b.example/", []WordCount{{"golang", 1}, {"search", 9}})

	t.Run("ranks by summed term frequency", func(tt *testing.T) {
		hits, err := store.Search(ctx, []string{"golang", "crawler"}, 10)
		require.NoError(tt, err)
		require.Len(tt, hits, 2)
		assert.Equal(tt, "http://a.example/", hits[0].URL)
		assert.Equal(tt, uint64(7), hits[0].Score)
	})

	t.Run("recrawl replaces previous words", func(tt *testing.T) {
		save("http://a.example/", []WordCount{{"rewritten", 3}})
		hits, err := store.Search(ctx, []string{"crawler"}, 10)
		require.NoError(tt, err)
		assert.Empty(tt, hits)

		site, err := store.GetSite(ctx, "http://a.example/")
		require.NoError(tt, err)
		require.NotNil(tt, site)
		words, err := store.TopWords(ctx, site.SiteID, 5)
		require.NoError(tt, err)
		assert.Equal(tt, []WordCount{{"rewritten", 3}}, words)
	})

	t.Run("equal frequencies keep saved order", func(tt *testing.T) {
		save("http://c.example/", []WordCount{{"omega", 4}, {"zeta", 2}, {"alpha", 2}, {"mid", 2}})
		site, err := store.GetSite(ctx, "http://c.example/")
		require.NoError(tt, err)
		require.NotNil(tt, site)

		words, err := store.TopWords(ctx, site.SiteID, 10)
		require.NoError(tt, err)
		assert.Equal(tt, []WordCount{{"omega", 4}, {"zeta", 2}, {"alpha", 2}, {"mid", 2}}, words)
	})

	t.Run("empty query returns nothing", func(tt *testing.T) {
		hits, err := store.Search(ctx, nil, 10)
		require.NoError(tt, err)
		assert.Empty(tt, hits)
	})
}

func TestNewStorage_UnknownDriver(t *testing.T) {
	_, err := NewStorage("oracle", "x")
	assert.Error(t, err)
}
