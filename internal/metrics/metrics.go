package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/alvmarrod/web-weaver/internal/storage"
)

// Tracker holds and manages run metrics for a scan or a crawl
type Tracker struct {
	mu                sync.Mutex
	data              storage.Metrics
	totalLookupTimeMs int64
	lookupCount       int64

	unique     *bloom.BloomFilter
	collectors *Collectors
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	return &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
		},
	}
}

// WithUniqueEstimate enables counting distinct addresses with a bloom filter
// sized for n elements at false positive rate fp. Random scans draw with
// replacement, so this is the only view of how much of the range was covered.
func (t *Tracker) WithUniqueEstimate(n uint, fp float64) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unique = bloom.NewWithEstimates(n, fp)
	return t
}

// WithCollectors mirrors every update into Prometheus collectors
func (t *Tracker) WithCollectors(c *Collectors) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.collectors = c
	return t
}

// RecordLookup records one processed address
func (t *Tracker) RecordLookup(ip string, found bool, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Processed++
	if found {
		t.data.Found++
	}
	t.totalLookupTimeMs += latency.Milliseconds()
	t.lookupCount++

	if t.unique != nil && !t.unique.TestAndAdd([]byte(ip)) {
		t.data.UniqueAddresses++
	}

	if c := t.collectors; c != nil {
		c.Processed.Inc()
		if found {
			c.Found.Inc()
		}
		c.LookupLatency.Observe(latency.Seconds())
		if t.unique != nil {
			c.UniqueAddresses.Set(float64(t.data.UniqueAddresses))
		}
	}
}

// IncrementMetadataFetched increments the metadata fetch counter
func (t *Tracker) IncrementMetadataFetched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.MetadataFetched++
	if t.collectors != nil {
		t.collectors.MetadataFetched.Inc()
	}
}

// IncrementPersistFailures increments the failed store/log write counter
func (t *Tracker) IncrementPersistFailures() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PersistFailures++
	if t.collectors != nil {
		t.collectors.PersistFailures.Inc()
	}
}

// IncrementPagesFetched increments the successful fetch counter
func (t *Tracker) IncrementPagesFetched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFetched++
	if t.collectors != nil {
		t.collectors.PagesFetched.Inc()
	}
}

// IncrementPagesFailed increments the failed fetch counter
func (t *Tracker) IncrementPagesFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFailed++
	if t.collectors != nil {
		t.collectors.PagesFailed.Inc()
	}
}

// AddWordsIndexed adds n indexed tokens
func (t *Tracker) AddWordsIndexed(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.WordsIndexed += uint64(n)
	if t.collectors != nil {
		t.collectors.WordsIndexed.Add(float64(n))
	}
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() storage.Metrics {
	snapshot := t.data
	snapshot.TotalLookupTimeMs = t.totalLookupTimeMs
	if t.lookupCount > 0 {
		snapshot.AvgLookupTimeMs = t.totalLookupTimeMs / t.lookupCount
	}
	return snapshot
}

// Finish stamps the end time and termination reason and returns the final metrics
func (t *Tracker) Finish(reason string) storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data.EndTime.IsZero() {
		t.data.EndTime = time.Now()
	}
	t.data.TerminationReason = reason
	return t.snapshotLocked()
}

// WriteToFile finishes the run with reason and exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	final := t.Finish(reason)

	jsonData, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for periodic console updates
func (t *Tracker) LogProgress() string {
	s := t.GetSnapshot()

	if s.PagesFetched > 0 || s.PagesFailed > 0 {
		return fmt.Sprintf("Pages: %d fetched, %d failed | Words: %d indexed | Persist failures: %d",
			s.PagesFetched,
			s.PagesFailed,
			s.WordsIndexed,
			s.PersistFailures,
		)
	}

	return fmt.Sprintf("Processed: %d | Found: %d (%.1f%%) | Unique: %d | Metadata: %d | Persist failures: %d | Avg lookup: %dms",
		s.Processed,
		s.Found,
		ResolutionRate(s.Processed, s.Found),
		s.UniqueAddresses,
		s.MetadataFetched,
		s.PersistFailures,
		s.AvgLookupTimeMs,
	)
}

// ResolutionRate returns found as a percentage of processed
func ResolutionRate(processed, found uint64) float64 {
	if processed == 0 {
		return 0
	}
	return float64(found) / float64(processed) * 100
}
