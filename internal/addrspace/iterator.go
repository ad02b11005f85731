package addrspace

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Mode selects how an Iterator walks its range.
type Mode int

const (
	// Sequential visits every address once in increasing order.
	Sequential Mode = iota
	// Random draws addresses uniformly with replacement and never ends.
	Random
)

func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case Random:
		return "random"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts "sequential" or "random" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential", "seq":
		return Sequential, nil
	case "random", "rand":
		return Random, nil
	default:
		return Sequential, fmt.Errorf("unknown scan mode %q", s)
	}
}

// Iterator produces successive batches of addresses from a Range.
// It is not safe for concurrent use.
type Iterator struct {
	rng       Range
	batchSize uint32
	mode      Mode
	random    *rand.Rand

	cursor  uint32
	done    bool
	resumed bool
	last    uint32
}

// NewIterator creates an iterator over r. When resumeFrom is non-nil and lies
// within [r.Start, r.End) the walk starts at *resumeFrom+1, otherwise the
// resume point is ignored. A nil src seeds the random mode from the runtime.
func NewIterator(r Range, batchSize uint32, mode Mode, resumeFrom *uint32, src rand.Source) *Iterator {
	if batchSize == 0 {
		batchSize = 1
	}
	it := &Iterator{
		rng:       r,
		batchSize: batchSize,
		mode:      mode,
		cursor:    r.Start,
	}
	if src != nil {
		it.random = rand.New(src)
	} else {
		it.random = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	if mode == Sequential && resumeFrom != nil && *resumeFrom >= r.Start && *resumeFrom < r.End {
		it.cursor = *resumeFrom + 1
		it.resumed = true
	}
	return it
}

// Resumed reports whether a resume point was applied.
func (it *Iterator) Resumed() bool {
	return it.resumed
}

// Position returns the next address a sequential walk would produce, or the
// most recent draw in random mode.
func (it *Iterator) Position() uint32 {
	if it.mode == Random {
		return it.last
	}
	return it.cursor
}

// Exhausted reports whether a sequential walk has passed the end of the range.
func (it *Iterator) Exhausted() bool {
	return it.mode == Sequential && it.done
}

// Next returns the next batch. limit caps the batch below the configured batch
// size when positive. A nil result means the sequential walk is over.
func (it *Iterator) Next(limit int) []string {
	n := it.batchSize
	if limit > 0 && uint32(limit) < n {
		n = uint32(limit)
	}
	if it.mode == Random {
		return it.nextRandom(n)
	}
	return it.nextSequential(n)
}

func (it *Iterator) nextSequential(n uint32) []string {
	if it.done {
		return nil
	}

	// remaining fits in 64 bits even for the full space
	remaining := uint64(it.rng.End) - uint64(it.cursor) + 1
	if uint64(n) > remaining {
		n = uint32(remaining)
	}

	batch := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		batch = append(batch, FormatAddr(it.cursor+i))
	}

	last := it.cursor + n - 1
	if last == it.rng.End {
		it.done = true
	} else {
		it.cursor = last + 1
	}
	return batch
}

func (it *Iterator) nextRandom(n uint32) []string {
	span := it.rng.Size()
	batch := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		addr := uint32(uint64(it.rng.Start) + it.random.Uint64N(span))
		it.last = addr
		batch = append(batch, FormatAddr(addr))
	}
	return batch
}
