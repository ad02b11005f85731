package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "webweaver"

// Collectors are the Prometheus series fed by a Tracker
type Collectors struct {
	Processed       prometheus.Counter
	Found           prometheus.Counter
	UniqueAddresses prometheus.Gauge
	MetadataFetched prometheus.Counter
	PersistFailures prometheus.Counter
	LookupLatency   prometheus.Histogram
	PagesFetched    prometheus.Counter
	PagesFailed     prometheus.Counter
	WordsIndexed    prometheus.Counter
}

// NewCollectors creates the collectors and registers them with reg
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		Processed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "addresses_processed_total",
			Help: "Addresses looked up.",
		}),
		Found: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "hostnames_found_total",
			Help: "Addresses with a reverse DNS name.",
		}),
		UniqueAddresses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scan", Name: "unique_addresses",
			Help: "Estimated distinct addresses processed.",
		}),
		MetadataFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "metadata_fetched_total",
			Help: "Landing page fetches for resolved hosts.",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "persist_failures_total",
			Help: "Records that could not be written to the store or result log.",
		}),
		LookupLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scan", Name: "lookup_duration_seconds",
			Help:    "Reverse lookup latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		PagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "crawl", Name: "pages_fetched_total",
			Help: "Pages fetched and indexed.",
		}),
		PagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "crawl", Name: "pages_failed_total",
			Help: "Pages that could not be fetched or parsed.",
		}),
		WordsIndexed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "crawl", Name: "words_indexed_total",
			Help: "Indexable tokens accumulated.",
		}),
	}
}

// Serve exposes g on addr under /metrics until ctx is cancelled
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logrus.Infof("Serving metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
