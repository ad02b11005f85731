package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/web-weaver/internal/storage"
)

func TestTracker_RecordLookup(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	tr := NewTracker().WithUniqueEstimate(1000, 0.001).WithCollectors(c)

	tr.RecordLookup("10.0.0.1", true, 10*time.Millisecond)
	tr.RecordLookup("10.0.0.2", false, 30*time.Millisecond)
	tr.RecordLookup("10.0.0.1", true, 20*time.Millisecond)
	tr.IncrementMetadataFetched()
	tr.IncrementPersistFailures()

	s := tr.GetSnapshot()
	assert.Equal(t, uint64(3), s.Processed)
	assert.Equal(t, uint64(2), s.Found)
	assert.Equal(t, uint64(2), s.UniqueAddresses)
	assert.Equal(t, uint64(1), s.MetadataFetched)
	assert.Equal(t, uint64(1), s.PersistFailures)
	assert.Equal(t, int64(60), s.TotalLookupTimeMs)
	assert.Equal(t, int64(20), s.AvgLookupTimeMs)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.Processed))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Found))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.UniqueAddresses))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PersistFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(c.LookupLatency))

	assert.Contains(t, tr.LogProgress(), "Processed: 3 | Found: 2 (66.7%)")
}

func TestTracker_Crawl(t *testing.T) {
	tr := NewTracker()
	tr.IncrementPagesFetched()
	tr.IncrementPagesFetched()
	tr.IncrementPagesFailed()
	tr.AddWordsIndexed(42)
	tr.AddWordsIndexed(0)

	s := tr.GetSnapshot()
	assert.Equal(t, uint64(2), s.PagesFetched)
	assert.Equal(t, uint64(1), s.PagesFailed)
	assert.Equal(t, uint64(42), s.WordsIndexed)
	assert.Equal(t, "Pages: 2 fetched, 1 failed | Words: 42 indexed | Persist failures: 0", tr.LogProgress())
}

func TestTracker_WriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	tr := NewTracker()
	tr.RecordLookup("1.1.1.1", true, time.Millisecond)

	require.NoError(t, tr.WriteToFile(path, "completed"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m storage.Metrics
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "completed", m.TerminationReason)
	assert.Equal(t, uint64(1), m.Processed)
	assert.False(t, m.EndTime.Before(m.StartTime))
}

func TestResolutionRate(t *testing.T) {
	assert.Equal(t, 0.0, ResolutionRate(0, 0))
	assert.Equal(t, 50.0, ResolutionRate(4, 2))
}
