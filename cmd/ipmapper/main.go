package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/web-weaver/internal/addrspace"
	"github.com/alvmarrod/web-weaver/internal/config"
	"github.com/alvmarrod/web-weaver/internal/memory"
	"github.com/alvmarrod/web-weaver/internal/metadata"
	"github.com/alvmarrod/web-weaver/internal/metrics"
	"github.com/alvmarrod/web-weaver/internal/resolver"
	"github.com/alvmarrod/web-weaver/internal/resultlog"
	"github.com/alvmarrod/web-weaver/internal/scanner"
	"github.com/alvmarrod/web-weaver/internal/storage"
	"github.com/alvmarrod/web-weaver/internal/version"
)

func main() {
	cfg, err := config.ParseScanArgs(os.Args[1:])
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Version {
		fmt.Println(version.String())
		return
	}

	config.SetupLogging(cfg.LogLevel)
	logrus.Infof("IP Mapper v%s starting...", version.Version)
	logrus.Infof("Configuration loaded: range=%s, mode=%s, batch=%d, workers=%d, delay=%s, metadata=%t",
		cfg.AddrRange, cfg.ScanMode, cfg.BatchSize, cfg.Workers, cfg.Delay, cfg.Metadata)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// restore default handling so a second signal exits immediately
		stop()
		logrus.Warn("Stopping after the current batch, interrupt again to force exit")
	}()

	// Initialize storage
	var store scanner.Store
	if cfg.DBPath != "" {
		db, err := storage.NewStorage(cfg.Driver, cfg.DBPath)
		if err != nil {
			logrus.Fatalf("Failed to initialize storage: %v", err)
		}
		defer db.Close()
		store = db
		logrus.Infof("Database initialized: %s (%s)", cfg.DBPath, cfg.Driver)
	} else {
		mem := memory.NewStore()
		defer func() {
			hostnames, _ := mem.Stats()
			logrus.Infof("In-memory store held %d hostnames", hostnames)
		}()
		store = mem
		logrus.Info("No database configured, keeping records in memory")
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	tracker := metrics.NewTracker().WithCollectors(metrics.NewCollectors(registry))
	if cfg.ScanMode == addrspace.Random {
		tracker.WithUniqueEstimate(cfg.BloomSize, cfg.BloomFP)
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, registry); err != nil {
				logrus.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	// Result log
	log, err := resultlog.Create(cfg.Output, cfg.Metadata)
	if err != nil {
		logrus.Fatalf("Failed to open result log: %v", err)
	}
	defer func() {
		rows := log.Rows()
		if err := log.Close(); err != nil {
			logrus.Errorf("Failed to close result log: %v", err)
			return
		}
		logrus.Infof("Appended %d rows to %s", rows, cfg.Output)
	}()

	deps := scanner.Deps{
		Resolver: resolver.NewResolver(resolver.Config{Servers: cfg.DNSServers}),
		Store:    store,
		Log:      log,
		Tracker:  tracker,
	}
	if cfg.Metadata {
		deps.Fetcher = metadata.NewFetcher(metadata.Options{
			InsecureSkipVerify: !cfg.VerifyTLS,
			MaxBodySize:        cfg.MaxBodySize,
		})
	}
	if cfg.Progress {
		deps.NewProgress = func(total int64) scanner.ProgressBar {
			return metrics.NewProgress(ctx, os.Stderr, "scan", total)
		}
	}

	s, err := scanner.New(scanner.Options{
		Range:            cfg.AddrRange,
		Mode:             cfg.ScanMode,
		BatchSize:        cfg.BatchSize,
		Workers:          cfg.Workers,
		Delay:            cfg.Delay.D(),
		Timeout:          cfg.Timeout.D(),
		FetchMetadata:    cfg.Metadata,
		RecordMisses:     cfg.RecordMisses,
		MaxItems:         cfg.Max,
		ResumeLog:        cfg.Resume,
		ProgressInterval: cfg.ProgressInterval.D(),
	}, deps)
	if err != nil {
		logrus.Fatalf("Failed to create scanner: %v", err)
	}

	report, err := s.Run(ctx)
	if err != nil {
		logrus.Fatalf("Scan aborted: %v", err)
	}

	logrus.Info("Final stats: " + tracker.LogProgress())
	fmt.Printf("Processed %d addresses, found %d hostnames (%.2f%%) in %s, last address %s\n",
		report.Processed,
		report.Found,
		metrics.ResolutionRate(report.Processed, report.Found),
		time.Duration(report.Summary.DurationSeconds*float64(time.Second)).Round(time.Millisecond),
		addrspace.FormatAddr(report.LastAddress),
	)

	if cfg.MetricsPath != "" {
		if err := tracker.WriteToFile(cfg.MetricsPath, report.Reason); err != nil {
			logrus.Errorf("Failed to write metrics: %v", err)
		} else {
			logrus.Infof("Metrics written to %s", cfg.MetricsPath)
		}
	}
}
