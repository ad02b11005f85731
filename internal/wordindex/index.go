package wordindex

import (
	"sort"
	"sync"

	"github.com/alvmarrod/web-weaver/internal/storage"
)

// Index accumulates word frequencies across the pages of one crawl. It is safe
// for concurrent use by crawl workers.
type Index struct {
	stop StopWords

	mu    sync.Mutex
	freq  map[string]uint64
	first map[string]int // word -> order of first occurrence
	total uint64
}

// NewIndex creates an index filtering with stop. A nil stop uses the defaults.
func NewIndex(stop StopWords) *Index {
	if stop == nil {
		stop = DefaultStopWords()
	}
	return &Index{
		stop:  stop,
		freq:  make(map[string]uint64),
		first: make(map[string]int),
	}
}

// Add tokenizes plain text and counts every indexable token. It returns the
// number of tokens counted. Markup must go through Tokenize and AddTokens.
func (ix *Index) Add(text string) int {
	return ix.AddTokens(TokenizeText(text))
}

// AddTokens counts already tokenized input.
func (ix *Index) AddTokens(tokens []string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	counted := 0
	for _, tok := range tokens {
		if !ix.stop.Indexable(tok) {
			continue
		}
		if _, seen := ix.first[tok]; !seen {
			ix.first[tok] = len(ix.first)
		}
		ix.freq[tok]++
		counted++
	}
	ix.total += uint64(counted)
	return counted
}

// Frequency returns how often word was counted.
func (ix *Index) Frequency(word string) uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.freq[word]
}

// Len returns the number of distinct words.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.freq)
}

// Total returns the number of indexed tokens, the sum of all frequencies.
func (ix *Index) Total() uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.total
}

// Sorted returns words by descending frequency. Equal frequencies keep the
// order in which the words were first seen.
func (ix *Index) Sorted() []storage.WordCount {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	words := make([]storage.WordCount, 0, len(ix.freq))
	for w, f := range ix.freq {
		words = append(words, storage.WordCount{Word: w, Frequency: f})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].Frequency != words[j].Frequency {
			return words[i].Frequency > words[j].Frequency
		}
		return ix.first[words[i].Word] < ix.first[words[j].Word]
	})
	return words
}
