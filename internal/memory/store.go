package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alvmarrod/web-weaver/internal/storage"
	"github.com/sirupsen/logrus"
)

// Store keeps scan and crawl records in process memory. It mirrors the method
// set of storage.Storage and is used when no database is configured.
type Store struct {
	hostnames map[string]*storage.HostnameRecord // ip -> record
	metadata  map[string]storage.SiteMetadata    // ip -> latest fetch
	history   []storage.ScanSummary
	sites     map[string]*siteEntry // seed url -> crawl
	siteIDs   map[int64]*siteEntry
	siteSeq   int64
	mu        sync.RWMutex
}

type siteEntry struct {
	site  storage.Site
	pages []storage.PageRecord
	words map[string]uint64
	order []storage.WordCount // as saved, ties keep this order
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		hostnames: make(map[string]*storage.HostnameRecord),
		metadata:  make(map[string]storage.SiteMetadata),
		sites:     make(map[string]*siteEntry),
		siteIDs:   make(map[int64]*siteEntry),
	}
}

// UpsertHostname inserts or updates a hostname record
func (s *Store) UpsertHostname(_ context.Context, rec storage.HostnameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.hostnames[rec.IP]; ok {
		existing.Hostname = rec.Hostname
		existing.FoundAt = rec.FoundAt
		existing.LookupLatencyMs = rec.LookupLatencyMs
		existing.VisitCount++
		return nil
	}

	rec.VisitCount = 1
	s.hostnames[rec.IP] = &rec
	return nil
}

// GetHostname retrieves a hostname record by IP
func (s *Store) GetHostname(_ context.Context, ip string) (*storage.HostnameRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.hostnames[ip]; ok {
		recCopy := *rec
		return &recCopy, nil
	}
	return nil, nil
}

// UpsertSiteMetadata replaces the metadata for ip
func (s *Store) UpsertSiteMetadata(_ context.Context, ip string, meta storage.SiteMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[ip] = meta
	return nil
}

// GetSiteMetadata retrieves the latest metadata for ip
func (s *Store) GetSiteMetadata(_ context.Context, ip string) (*storage.SiteMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if meta, ok := s.metadata[ip]; ok {
		return &meta, nil
	}
	return nil, nil
}

// RecordScan appends a scan summary
func (s *Store) RecordScan(_ context.Context, summary storage.ScanSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, summary)
	return nil
}

// ScanHistory returns the most recent summaries, newest first
func (s *Store) ScanHistory(_ context.Context, limit int) ([]storage.ScanSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.ScanSummary
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

// SaveCrawl stores a crawl, replacing any previous crawl of the same seed
func (s *Store) SaveCrawl(_ context.Context, site storage.Site, pages []storage.PageRecord, words []storage.WordCount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sites[site.URL]
	if !ok {
		s.siteSeq++
		entry = &siteEntry{}
		site.SiteID = s.siteSeq
		s.sites[site.URL] = entry
		s.siteIDs[site.SiteID] = entry
	} else {
		site.SiteID = entry.site.SiteID
	}

	entry.site = site
	entry.pages = append([]storage.PageRecord(nil), pages...)
	entry.words = make(map[string]uint64, len(words))
	entry.order = append([]storage.WordCount(nil), words...)
	for _, w := range words {
		entry.words[w.Word] = w.Frequency
	}

	logrus.Debugf("Stored crawl of %s in memory: %d pages, %d words", site.URL, len(pages), len(words))
	return nil
}

// GetSite retrieves a crawled site by seed URL
func (s *Store) GetSite(_ context.Context, url string) (*storage.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.sites[url]; ok {
		site := entry.site
		return &site, nil
	}
	return nil, nil
}

// TopWords returns the most frequent words of a site
func (s *Store) TopWords(_ context.Context, siteID int64, limit int) ([]storage.WordCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.siteIDs[siteID]
	if !ok {
		return nil, nil
	}

	words := append([]storage.WordCount(nil), entry.order...)
	sort.SliceStable(words, func(i, j int) bool {
		return words[i].Frequency > words[j].Frequency
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words, nil
}

// Search ranks sites by the summed frequency of the given terms
func (s *Store) Search(_ context.Context, terms []string, limit int) ([]storage.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []storage.SearchHit
	for _, entry := range s.sites {
		var score uint64
		for _, term := range terms {
			score += entry.words[term]
		}
		if score > 0 {
			hits = append(hits, storage.SearchHit{URL: entry.site.URL, Title: entry.site.Title, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].URL < hits[j].URL
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Stats returns the number of hostname records and crawled sites held
func (s *Store) Stats() (hostnames, sites int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hostnames), len(s.sites)
}
