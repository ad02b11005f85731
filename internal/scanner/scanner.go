package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/alvmarrod/web-weaver/internal/addrspace"
	"github.com/alvmarrod/web-weaver/internal/metrics"
	"github.com/alvmarrod/web-weaver/internal/resolver"
	"github.com/alvmarrod/web-weaver/internal/resultlog"
	"github.com/alvmarrod/web-weaver/internal/storage"
)

// Resolver performs reverse lookups
type Resolver interface {
	Resolve(ctx context.Context, ip string, timeout time.Duration) resolver.Result
}

// MetadataFetcher retrieves landing page metadata for a resolved host
type MetadataFetcher interface {
	Fetch(ctx context.Context, hostname string, timeout time.Duration) storage.SiteMetadata
}

// Store is the persistence the scanner writes through. Implementations must
// be safe for concurrent use.
type Store interface {
	UpsertHostname(ctx context.Context, rec storage.HostnameRecord) error
	UpsertSiteMetadata(ctx context.Context, ip string, meta storage.SiteMetadata) error
	RecordScan(ctx context.Context, summary storage.ScanSummary) error
}

// RowWriter is the append-only result log
type RowWriter interface {
	Write(row resultlog.Row) error
}

// ProgressBar is advanced after every batch
type ProgressBar interface {
	Add(n int, elapsed time.Duration)
	Done()
}

// Options configures a scan
type Options struct {
	Range         addrspace.Range
	Mode          addrspace.Mode
	BatchSize     uint32
	Workers       int
	Delay         time.Duration
	Timeout       time.Duration
	FetchMetadata bool
	// RecordMisses also upserts addresses without a name into the store.
	RecordMisses bool
	// MaxItems stops the scan after this many addresses; zero means no cap.
	MaxItems uint64
	// ResumeLog is the result log of an earlier run to continue from.
	ResumeLog        string
	ProgressInterval time.Duration
	// RandSource seeds random mode; nil uses a runtime seed.
	RandSource rand.Source
}

// Deps are the collaborators of a scan. Only Resolver is required.
type Deps struct {
	Resolver Resolver
	Fetcher  MetadataFetcher
	Store    Store
	Log      RowWriter
	Tracker  *metrics.Tracker
	// NewProgress is called once the number of planned addresses is known.
	NewProgress func(total int64) ProgressBar
}

// Report is the outcome of Run
type Report struct {
	Checkpoint
	Summary storage.ScanSummary
	Reason  string
	Resumed bool
}

// Scanner drives an address iterator through a bounded worker pool
type Scanner struct {
	opts    Options
	deps    Deps
	limiter *rate.Limiter

	state atomic.Int32

	mu         sync.Mutex
	checkpoint Checkpoint
}

type sequenced struct {
	seq  uint64
	addr uint32
	row  resultlog.Row
}

// New creates a scanner, applying defaults to unset options
func New(opts Options, deps Deps) (*Scanner, error) {
	if deps.Resolver == nil {
		return nil, errors.New("scanner requires a resolver")
	}
	if opts.Range.Start > opts.Range.End {
		return nil, fmt.Errorf("%w: %s", addrspace.ErrInvalidRange, opts.Range)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 10 * time.Second
	}
	if deps.Tracker == nil {
		deps.Tracker = metrics.NewTracker()
	}

	s := &Scanner{opts: opts, deps: deps}
	if opts.Delay > 0 {
		// shared by all workers: the delay bounds the aggregate lookup rate
		s.limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}
	s.state.Store(int32(StateInit))
	return s, nil
}

// State returns the current lifecycle state
func (s *Scanner) State() State {
	return State(s.state.Load())
}

// Checkpoint returns a copy of the current checkpoint
func (s *Scanner) Checkpoint() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint
}

func (s *Scanner) setState(st State) {
	logrus.Debugf("Scanner state: %s -> %s", s.State(), st)
	s.state.Store(int32(st))
}

// Run scans until the range is exhausted, the cap is reached or ctx is
// cancelled. Cancellation is observed between batches; lookups already
// started run to their own timeout. Only configuration errors are returned.
func (s *Scanner) Run(ctx context.Context) (*Report, error) {
	resumeFrom, err := s.resumePoint()
	if err != nil {
		return nil, err
	}

	it := addrspace.NewIterator(s.opts.Range, s.opts.BatchSize, s.opts.Mode, resumeFrom, s.opts.RandSource)
	if resumeFrom != nil {
		switch {
		case it.Resumed():
			logrus.Infof("Resuming after %s", addrspace.FormatAddr(*resumeFrom))
			s.mu.Lock()
			s.checkpoint.LastAddress = *resumeFrom
			s.mu.Unlock()
		case s.opts.Mode == addrspace.Random:
			logrus.Warn("Resume point ignored in random mode")
		default:
			logrus.Warnf("Resume point %s is outside %s, scanning the full range", addrspace.FormatAddr(*resumeFrom), s.opts.Range)
		}
	}

	s.setState(StateScanning)
	start := time.Now()
	logrus.Infof("Scanning %s (%s mode, batch %d, %d workers)", s.opts.Range, s.opts.Mode, s.opts.BatchSize, s.opts.Workers)

	var bar ProgressBar
	if s.deps.NewProgress != nil {
		bar = s.deps.NewProgress(s.planned(it))
	}

	rows := make(chan sequenced, s.opts.BatchSize)
	writerDone := make(chan struct{})
	go s.writeRows(rows, writerDone)

	stopProgress := make(chan struct{})
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		s.reportProgress(start, stopProgress)
	}()

	var dispatched uint64
	reason := ReasonExhausted
	for {
		if ctx.Err() != nil {
			reason = ReasonCancelled
			break
		}

		if it.Exhausted() {
			break
		}

		limit := 0
		if s.opts.MaxItems > 0 {
			remaining := s.opts.MaxItems - dispatched
			if remaining == 0 {
				reason = ReasonMaxReached
				break
			}
			if remaining < uint64(s.opts.BatchSize) {
				limit = int(remaining)
			}
		}

		batch := it.Next(limit)
		if batch == nil {
			break
		}

		batchStart := time.Now()
		s.processBatch(ctx, batch, dispatched, rows)
		dispatched += uint64(len(batch))
		if bar != nil {
			bar.Add(len(batch), time.Since(batchStart))
		}
	}

	close(rows)
	<-writerDone
	close(stopProgress)
	progressWG.Wait()
	if bar != nil {
		bar.Done()
	}

	s.setState(StateCompleted)
	end := time.Now()
	cp := s.Checkpoint()

	summary := storage.ScanSummary{
		RangeStart:      addrspace.FormatAddr(s.opts.Range.Start),
		RangeEnd:        addrspace.FormatAddr(s.opts.Range.End),
		Mode:            s.opts.Mode.String(),
		Processed:       cp.Processed,
		Found:           cp.Found,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: end.Sub(start).Seconds(),
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.RecordScan(context.WithoutCancel(ctx), summary); err != nil {
			logrus.Errorf("Failed to record scan history: %v", err)
			s.deps.Tracker.IncrementPersistFailures()
		}
	}

	logrus.WithFields(logrus.Fields{
		"processed": cp.Processed,
		"found":     cp.Found,
		"rate":      fmt.Sprintf("%.1f%%", metrics.ResolutionRate(cp.Processed, cp.Found)),
		"duration":  end.Sub(start).Round(time.Millisecond),
		"reason":    reason,
	}).Info("Scan finished")

	return &Report{
		Checkpoint: cp,
		Summary:    summary,
		Reason:     reason,
		Resumed:    it.Resumed(),
	}, nil
}

// resumePoint reads the last logged address. A missing or empty log means
// there is nothing to resume.
func (s *Scanner) resumePoint() (*uint32, error) {
	if s.opts.ResumeLog == "" {
		return nil, nil
	}
	s.setState(StateResuming)

	last, err := resultlog.LastAddress(s.opts.ResumeLog)
	switch {
	case err == nil:
		return &last, nil
	case errors.Is(err, resultlog.ErrEmptyLog), errors.Is(err, fs.ErrNotExist):
		logrus.Infof("Nothing to resume from %s, starting at the beginning", s.opts.ResumeLog)
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to read resume point: %w", err)
	}
}

// planned is the number of addresses the scan expects to process, zero when
// unbounded.
func (s *Scanner) planned(it *addrspace.Iterator) int64 {
	var total uint64
	if s.opts.Mode == addrspace.Sequential {
		total = uint64(s.opts.Range.End) - uint64(it.Position()) + 1
	}
	if s.opts.MaxItems > 0 && (total == 0 || s.opts.MaxItems < total) {
		total = s.opts.MaxItems
	}
	return int64(total)
}

// processBatch resolves every address of batch on the worker pool. seq is the
// draw number of the first address; rows are tagged so the writer can
// restore draw order.
func (s *Scanner) processBatch(ctx context.Context, batch []string, seq uint64, rows chan<- sequenced) {
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, ip := range batch {
		g.Go(func() error {
			if s.limiter != nil {
				s.limiter.Wait(work)
			}
			addr, _ := addrspace.ParseAddr(ip)
			rows <- sequenced{
				seq:  seq + uint64(i),
				addr: addr,
				row:  s.processAddress(work, ip),
			}
			return nil
		})
	}
	g.Wait()
}

func (s *Scanner) processAddress(ctx context.Context, ip string) resultlog.Row {
	res := s.deps.Resolver.Resolve(ctx, ip, s.opts.Timeout)
	now := time.Now()
	s.deps.Tracker.RecordLookup(ip, res.Found, res.Latency)

	row := resultlog.Row{
		IP:        ip,
		Hostname:  res.Hostname,
		Found:     res.Found,
		Latency:   res.Latency,
		Timestamp: now,
	}

	if s.deps.Store != nil && (res.Found || s.opts.RecordMisses) {
		rec := storage.HostnameRecord{
			IP:              ip,
			FoundAt:         now,
			LookupLatencyMs: uint32(res.Latency.Milliseconds()),
		}
		if res.Found {
			hostname := res.Hostname
			rec.Hostname = &hostname
		}
		if err := s.deps.Store.UpsertHostname(ctx, rec); err != nil {
			logrus.WithField("ip", ip).Warnf("Failed to persist hostname: %v", err)
			s.deps.Tracker.IncrementPersistFailures()
		}
	}

	if !res.Found || !s.opts.FetchMetadata || s.deps.Fetcher == nil {
		return row
	}

	meta := s.deps.Fetcher.Fetch(ctx, res.Hostname, s.opts.Timeout)
	row.Metadata = &meta
	s.deps.Tracker.IncrementMetadataFetched()
	logrus.WithFields(logrus.Fields{
		"ip":       ip,
		"hostname": res.Hostname,
		"status":   meta.HTTPStatus,
	}).Debug("Fetched metadata")

	if s.deps.Store != nil {
		if err := s.deps.Store.UpsertSiteMetadata(ctx, ip, meta); err != nil {
			logrus.WithField("ip", ip).Warnf("Failed to persist metadata: %v", err)
			s.deps.Tracker.IncrementPersistFailures()
		}
	}
	return row
}

// writeRows is the only writer of the result log and the checkpoint. Rows
// arrive in completion order and are committed in draw order.
func (s *Scanner) writeRows(in <-chan sequenced, done chan<- struct{}) {
	defer close(done)

	pending := make(map[uint64]sequenced)
	var next uint64
	for item := range in {
		pending[item.seq] = item
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			s.commit(ready)
			next++
		}
	}
	if len(pending) > 0 {
		logrus.Errorf("Result log writer stopped with %d rows out of order", len(pending))
	}
}

func (s *Scanner) commit(item sequenced) {
	if s.deps.Log != nil {
		if err := s.deps.Log.Write(item.row); err != nil {
			logrus.WithField("ip", item.row.IP).Warnf("Failed to append result row: %v", err)
			s.deps.Tracker.IncrementPersistFailures()
		}
	}

	s.mu.Lock()
	s.checkpoint.LastAddress = item.addr
	s.checkpoint.Processed++
	if item.row.Found {
		s.checkpoint.Found++
	}
	s.mu.Unlock()
}

func (s *Scanner) reportProgress(start time.Time, stop <-chan struct{}) {
	ticker := time.NewTicker(s.opts.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cp := s.Checkpoint()
			elapsed := time.Since(start).Seconds()
			var perSecond float64
			if elapsed > 0 {
				perSecond = float64(cp.Processed) / elapsed
			}
			logrus.WithFields(logrus.Fields{
				"processed": cp.Processed,
				"found":     cp.Found,
				"rate":      fmt.Sprintf("%.1f/s", perSecond),
				"position":  addrspace.FormatAddr(cp.LastAddress),
			}).Info("Scan progress")
			logrus.Debug(s.deps.Tracker.LogProgress())
		case <-stop:
			return
		}
	}
}
