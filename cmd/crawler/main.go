package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/web-weaver/internal/config"
	"github.com/alvmarrod/web-weaver/internal/crawler"
	"github.com/alvmarrod/web-weaver/internal/memory"
	"github.com/alvmarrod/web-weaver/internal/metrics"
	"github.com/alvmarrod/web-weaver/internal/storage"
	"github.com/alvmarrod/web-weaver/internal/version"
	"github.com/alvmarrod/web-weaver/internal/wordindex"
)

const usage = `Usage: crawler <command> [OPTIONS]

Commands:
  crawl   crawl a site from a seed URL and index its words
  search  rank crawled sites by query terms

Run "crawler <command> --help" for the options of a command.
`

// crawlStore is what the crawl command persists through
type crawlStore interface {
	SaveCrawl(ctx context.Context, site storage.Site, pages []storage.PageRecord, words []storage.WordCount) error
	GetSite(ctx context.Context, url string) (*storage.Site, error)
	TopWords(ctx context.Context, siteID int64, limit int) ([]storage.WordCount, error)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "crawl":
		err = runCrawl(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "version", "-v", "--version":
		fmt.Println(version.String())
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCrawl(args []string) error {
	cfg, err := config.ParseCrawlArgs(args)
	if err != nil {
		return err
	}
	if cfg.Version {
		fmt.Println(version.String())
		return nil
	}

	config.SetupLogging(cfg.LogLevel)
	logrus.Infof("Web Weaver v%s starting...", version.Version)
	logrus.Infof("Configuration loaded: seed=%s, max_pages=%d, workers=%d",
		cfg.SeedURL, cfg.MaxPages, cfg.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopWords := wordindex.DefaultStopWords()
	if cfg.StopWordsFile != "" {
		if stopWords, err = wordindex.LoadStopWords(cfg.StopWordsFile); err != nil {
			return err
		}
		logrus.Infof("Loaded %d stop words from %s", len(stopWords), cfg.StopWordsFile)
	}

	// Initialize storage
	var store crawlStore
	if cfg.DBPath != "" {
		db, err := storage.NewStorage(cfg.Driver, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer db.Close()
		store = db
		logrus.Infof("Database initialized: %s (%s)", cfg.DBPath, cfg.Driver)
	} else {
		store = memory.NewStore()
	}

	// Initialize metrics tracker
	registry := prometheus.NewRegistry()
	tracker := metrics.NewTracker().WithCollectors(metrics.NewCollectors(registry))
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, registry); err != nil {
				logrus.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	// Start progress logger
	stopProgress := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				logrus.Info(tracker.LogProgress())
			case <-stopProgress:
				return
			}
		}
	}()

	opts := crawler.DefaultOptions()
	opts.MaxPages = cfg.MaxPages
	opts.SameDomainOnly = !cfg.AllowOtherHosts
	opts.MaxHostsPerDomain = cfg.MaxHostsPerDomain
	if len(cfg.ExcludeExtensions) > 0 {
		opts.ExcludedExtensions = cfg.ExcludeExtensions
	}
	opts.StopWords = stopWords
	opts.Workers = cfg.Workers
	opts.Timeout = cfg.Timeout.D()
	opts.UserAgent = cfg.UserAgent
	opts.MaxBodySize = cfg.MaxBodySize

	result, err := crawler.NewCrawler(opts, tracker).Crawl(ctx, cfg.SeedURL)
	close(stopProgress)
	if err != nil {
		return err
	}

	reason := "frontier_exhausted"
	switch {
	case ctx.Err() != nil:
		reason = "signal"
	case result.Visited >= cfg.MaxPages:
		reason = "max_pages"
	}

	site := storage.Site{
		URL:        result.Seed,
		Title:      result.Title,
		Pages:      len(result.Pages),
		TotalWords: result.TotalWords,
		CrawledAt:  time.Now().UTC(),
	}
	// a fresh context so an interrupted crawl is still saved
	saveCtx := context.WithoutCancel(ctx)
	if err := store.SaveCrawl(saveCtx, site, result.Pages, result.Words); err != nil {
		logrus.Errorf("Failed to save crawl: %v", err)
		tracker.IncrementPersistFailures()
		printWords(result.Words, cfg.Top)
	} else {
		saved, err := store.GetSite(saveCtx, result.Seed)
		if err != nil || saved == nil {
			logrus.Errorf("Failed to read back crawl of %s: %v", result.Seed, err)
			printWords(result.Words, cfg.Top)
		} else {
			top, err := store.TopWords(saveCtx, saved.SiteID, cfg.Top)
			if err != nil {
				logrus.Errorf("Failed to read top words: %v", err)
				top = result.Words
			}
			printWords(top, cfg.Top)
		}
	}

	logrus.Info("Final stats: " + tracker.LogProgress())
	fmt.Printf("Indexed %d pages (%d failed) from %s: %d words, %d distinct\n",
		len(result.Pages), result.Failed, result.Seed, result.TotalWords, len(result.Words))

	if cfg.MetricsPath != "" {
		if err := tracker.WriteToFile(cfg.MetricsPath, reason); err != nil {
			logrus.Errorf("Failed to write metrics: %v", err)
		} else {
			logrus.Infof("Metrics written to %s", cfg.MetricsPath)
		}
	}
	return nil
}

func runSearch(args []string) error {
	cfg, err := config.ParseSearchArgs(args)
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.LogLevel)

	db, err := storage.NewStorage(cfg.Driver, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer db.Close()

	// query terms go through the same tokenizer as indexed pages
	terms := wordindex.Tokenize(strings.Join(cfg.Terms, " "))
	if len(terms) == 0 {
		return fmt.Errorf("no searchable terms in %q", strings.Join(cfg.Terms, " "))
	}

	hits, err := db.Search(context.Background(), terms, cfg.Limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Printf("No sites match %q\n", strings.Join(cfg.Terms, " "))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tURL\tTITLE")
	for _, hit := range hits {
		fmt.Fprintf(w, "%d\t%s\t%s\n", hit.Score, hit.URL, hit.Title)
	}
	return w.Flush()
}

func printWords(words []storage.WordCount, limit int) {
	if limit <= 0 || len(words) == 0 {
		return
	}
	if len(words) > limit {
		words = words[:limit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORD\tCOUNT")
	for _, wc := range words {
		fmt.Fprintf(w, "%s\t%d\n", wc.Word, wc.Frequency)
	}
	w.Flush()
}
