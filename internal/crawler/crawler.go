package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/web-weaver/internal/metrics"
	"github.com/alvmarrod/web-weaver/internal/storage"
	"github.com/alvmarrod/web-weaver/internal/wordindex"
)

// ErrInvalidSeed is returned when the seed is not an absolute http(s) URL
var ErrInvalidSeed = errors.New("invalid seed URL")

// ErrForeignRedirect is returned for a same-domain crawl when a page
// redirects to another host
var ErrForeignRedirect = errors.New("redirect leaves the crawled host")

const maxRedirects = 10

// Options configures a crawl
type Options struct {
	MaxPages           int
	SameDomainOnly     bool
	MaxHostsPerDomain  int
	ExcludedExtensions []string
	StopWords          wordindex.StopWords
	Workers            int
	Timeout            time.Duration
	UserAgent          string
	MaxBodySize        int
}

// DefaultOptions returns the crawler defaults
func DefaultOptions() Options {
	return Options{
		MaxPages:           50,
		SameDomainOnly:     true,
		MaxHostsPerDomain:  3,
		ExcludedExtensions: DefaultExcludedExtensions,
		StopWords:          wordindex.DefaultStopWords(),
		Workers:            4,
		Timeout:            10 * time.Second,
		UserAgent:          "web-weaver/1.0",
		MaxBodySize:        5 << 20,
	}
}

// Result is the outcome of one crawl
type Result struct {
	Seed  string
	Title string
	// Words are sorted by descending frequency, ties in first-seen order.
	Words      []storage.WordCount
	Pages      []storage.PageRecord
	TotalWords uint64
	Visited    int
	Failed     int
	Duration   time.Duration
}

// Crawler fetches same-site pages from a seed and indexes their words
type Crawler struct {
	opts      Options
	tracker   *metrics.Tracker
	collector *colly.Collector
	excluded  map[string]struct{}
}

// NewCrawler creates a new crawler instance. A nil tracker disables metrics.
func NewCrawler(opts Options, tracker *metrics.Tracker) *Crawler {
	defaults := DefaultOptions()
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaults.MaxPages
	}
	if opts.MaxHostsPerDomain <= 0 {
		opts.MaxHostsPerDomain = defaults.MaxHostsPerDomain
	}
	if opts.ExcludedExtensions == nil {
		opts.ExcludedExtensions = defaults.ExcludedExtensions
	}
	if opts.StopWords == nil {
		opts.StopWords = defaults.StopWords
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaults.MaxBodySize
	}
	if tracker == nil {
		tracker = metrics.NewTracker()
	}

	c := &Crawler{
		opts:     opts,
		tracker:  tracker,
		excluded: extensionSet(opts.ExcludedExtensions),
	}
	c.setupColly()
	return c
}

// setupColly configures the base collector every worker clones. Visits are
// synchronous per worker and deduplicated by the frontier, not by colly.
func (c *Crawler) setupColly() {
	c.collector = colly.NewCollector(
		colly.UserAgent(c.opts.UserAgent),
		colly.MaxBodySize(c.opts.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.collector.SetRequestTimeout(c.opts.Timeout)
	c.collector.SetRedirectHandler(c.checkRedirect)
}

// checkRedirect caps redirect chains and, for same-domain crawls, refuses a
// hop to a host other than the one the request started on.
func (c *Crawler) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if c.opts.SameDomainOnly && req.URL.Hostname() != via[0].URL.Hostname() {
		return fmt.Errorf("%w: %s -> %s", ErrForeignRedirect, via[0].URL.Hostname(), req.URL.Hostname())
	}
	return nil
}

// crawlRun is the state of one Crawl call
type crawlRun struct {
	seed     *url.URL
	frontier *Frontier
	index    *wordindex.Index
	limiter  *HostLimiter

	mu     sync.Mutex
	pages  []storage.PageRecord
	titles map[string]string
	failed int
}

// page collects what the colly callbacks extract from one response
type page struct {
	url      string
	title    string
	text     string
	links    []string
	isHTML   bool
	finalURL *url.URL
	err      error
}

// Crawl walks same-site links from seed until MaxPages pages have been
// visited or no unvisited links remain. Cancelling ctx stops handing out new
// pages; fetches already started run to the request timeout.
func (c *Crawler) Crawl(ctx context.Context, seed string) (*Result, error) {
	seedURL, err := parseSeed(seed)
	if err != nil {
		return nil, err
	}

	run := &crawlRun{
		seed:     seedURL,
		frontier: NewFrontier(c.opts.MaxPages),
		index:    wordindex.NewIndex(c.opts.StopWords),
		limiter:  NewHostLimiter(c.opts.MaxHostsPerDomain),
		titles:   make(map[string]string),
	}
	run.limiter.Allow(seedURL.Hostname())
	run.frontier.Push(seedURL.String())

	stop := context.AfterFunc(ctx, run.frontier.Stop)
	defer stop()
	if ctx.Err() != nil {
		run.frontier.Stop()
	}

	start := time.Now()
	logrus.Infof("Crawling %s (max %d pages, %d workers)", seedURL, c.opts.MaxPages, c.opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(id, run)
		}(i + 1)
	}
	wg.Wait()

	result := &Result{
		Seed:       seedURL.String(),
		Title:      run.titles[seedURL.String()],
		Words:      run.index.Sorted(),
		Pages:      run.pages,
		TotalWords: run.index.Total(),
		Visited:    run.frontier.Visited(),
		Failed:     run.failed,
		Duration:   time.Since(start),
	}

	logrus.Infof("Crawl of %s finished: %d visited, %d indexed, %d failed, %d distinct words in %s",
		result.Seed, result.Visited, len(result.Pages), result.Failed, run.index.Len(), result.Duration.Round(time.Millisecond))
	return result, nil
}

// worker processes frontier entries with its own collector
func (c *Crawler) worker(id int, run *crawlRun) {
	col := c.collector.Clone()

	var current *page
	col.OnResponse(func(r *colly.Response) {
		current.isHTML = strings.Contains(strings.ToLower(r.Headers.Get("Content-Type")), "html")
		current.finalURL = r.Request.URL
	})
	col.OnHTML("title", func(e *colly.HTMLElement) {
		if current.title == "" {
			current.title = strings.TrimSpace(e.Text)
		}
	})
	col.OnHTML("body", func(e *colly.HTMLElement) {
		e.DOM.Find("script, style, noscript, template").Remove()
		markup, err := e.DOM.Html()
		if err != nil {
			current.err = fmt.Errorf("failed to read body: %w", err)
			return
		}
		current.text = wordindex.StripTags(markup)
	})
	col.OnHTML("a[href]", func(e *colly.HTMLElement) {
		current.links = append(current.links, e.Attr("href"))
	})
	col.OnError(func(r *colly.Response, err error) {
		current.err = err
	})

	for {
		target, ok := run.frontier.Next()
		if !ok {
			logrus.Debugf("Worker %d: frontier closed, exiting", id)
			return
		}

		current = &page{url: target}
		if err := col.Visit(target); err != nil && current.err == nil {
			current.err = err
		}
		c.handlePage(run, current)
		run.frontier.Done()
	}
}

// handlePage indexes a fetched page and feeds its links back to the frontier.
// Failed and non-HTML pages stay visited and contribute nothing.
func (c *Crawler) handlePage(run *crawlRun, p *page) {
	if p.err != nil || !p.isHTML {
		reason := "not HTML"
		if p.err != nil {
			reason = p.err.Error()
		}
		logrus.Warnf("Skipping %s: %s", p.url, reason)
		c.tracker.IncrementPagesFailed()
		run.mu.Lock()
		run.failed++
		run.mu.Unlock()
		return
	}

	// p.text is already decoded text, it is not parsed as markup again
	counted := run.index.Add(p.text)
	c.tracker.IncrementPagesFetched()
	c.tracker.AddWordsIndexed(counted)

	run.mu.Lock()
	run.pages = append(run.pages, storage.PageRecord{
		URL:           p.url,
		Title:         p.title,
		RawTextLength: utf8.RuneCountInString(strings.TrimSpace(p.text)),
	})
	run.titles[p.url] = p.title
	run.mu.Unlock()

	base := p.finalURL
	if base == nil {
		base, _ = url.Parse(p.url)
	}

	added := 0
	for _, href := range p.links {
		link, ok := ResolveLink(base, href)
		if !ok || !c.allowed(run, link) {
			continue
		}
		if run.frontier.Push(link.String()) {
			added++
		}
	}
	logrus.Debugf("Indexed %s: %d words, %d new links, %d queued", p.url, counted, added, run.frontier.Size())
}

// allowed applies the host and extension rules to a resolved link
func (c *Crawler) allowed(run *crawlRun, link *url.URL) bool {
	if HasExcludedExtension(link, c.excluded) {
		return false
	}

	host := link.Hostname()
	if c.opts.SameDomainOnly {
		return host == run.seed.Hostname()
	}
	if IsExcludedHost(host) {
		return false
	}
	if !run.limiter.Allow(host) {
		root := ExtractRootDomain(host)
		logrus.Debugf("Skipping %s: %s already has %d hosts", link, root, run.limiter.Count(root))
		return false
	}
	return true
}

func parseSeed(seed string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q must be an http or https URL", ErrInvalidSeed, seed)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidSeed, seed)
	}
	return Normalize(u), nil
}
