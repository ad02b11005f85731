package metadata

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/web-weaver/internal/storage"
)

// Options configures the fetcher
type Options struct {
	// InsecureSkipVerify disables certificate verification. Scan targets are
	// arbitrary hosts found by reverse lookup, so it defaults to true.
	InsecureSkipVerify bool
	MaxRedirects       int
	MaxBodySize        int64
	UserAgent          string
}

// DefaultOptions returns the scanner defaults
func DefaultOptions() Options {
	return Options{
		InsecureSkipVerify: true,
		MaxRedirects:       10,
		MaxBodySize:        2 << 20,
		UserAgent:          "web-weaver-ipmapper/1.0",
	}
}

// Fetcher retrieves the landing page of a resolved host
type Fetcher struct {
	client *http.Client
	opts   Options
}

// NewFetcher creates a fetcher with its own connection pool
func NewFetcher(opts Options) *Fetcher {
	defaults := DefaultOptions()
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaults.MaxRedirects
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaults.MaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	maxRedirects := opts.MaxRedirects
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				// keep the last 3xx instead of failing the fetch
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &Fetcher{client: client, opts: opts}
}

// Fetch issues GET http://hostname and extracts page metadata. It never fails:
// on error the text fields stay nil and whatever response metadata was
// received is recorded.
func (f *Fetcher) Fetch(ctx context.Context, hostname string, timeout time.Duration) storage.SiteMetadata {
	target := "http://" + hostname
	meta := storage.SiteMetadata{FinalURL: target}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		logrus.Debugf("Metadata request for %s rejected: %v", hostname, err)
		return meta
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		logrus.Debugf("Metadata fetch for %s failed: %v", hostname, err)
		return meta
	}
	defer resp.Body.Close()

	meta.HTTPStatus = uint16(resp.StatusCode)
	meta.FinalURL = resp.Request.URL.String()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		meta.ContentType = &ct
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodySize))
	meta.SizeBytes = uint64(len(body))
	if err != nil {
		logrus.Debugf("Metadata body read for %s failed after %d bytes: %v", hostname, len(body), err)
		return meta
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return meta
	}

	if err := parseInto(&meta, body); err != nil {
		logrus.Debugf("Metadata parse for %s failed: %v", hostname, err)
	}
	return meta
}
