package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Storage handles all database operations for both the scanner and the crawler.
// The underlying pool is shared by every worker; upserts rely on the database
// for atomicity.
type Storage struct {
	db     *sqlx.DB
	driver string
}

// NewStorage opens the database, verifies the connection and creates the schema.
// driver is DriverSQLite or DriverPostgres; for sqlite dsn is a file path.
func NewStorage(driver, dsn string) (*Storage, error) {
	schema, err := schemaFor(driver)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY under concurrent upserts
		db.SetMaxOpenConns(1)
	}

	s := &Storage{db: db, driver: driver}
	if _, err := s.db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// UpsertHostname inserts a scan sighting or, on a repeat sighting, overwrites
// hostname, latency and timestamp and increments visit_count.
func (s *Storage) UpsertHostname(ctx context.Context, rec HostnameRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO hostnames (ip, hostname, found_at, lookup_latency_ms, visit_count)
		VALUES (:ip, :hostname, :found_at, :lookup_latency_ms, 1)
		ON CONFLICT(ip) DO UPDATE SET
			hostname = excluded.hostname,
			found_at = excluded.found_at,
			lookup_latency_ms = excluded.lookup_latency_ms,
			visit_count = hostnames.visit_count + 1
	`, rec)
	if err != nil {
		return fmt.Errorf("failed to upsert hostname %s: %w", rec.IP, err)
	}
	return nil
}

// GetHostname retrieves a hostname record by IP, returns nil if not found
func (s *Storage) GetHostname(ctx context.Context, ip string) (*HostnameRecord, error) {
	var rec HostnameRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`
		SELECT ip, hostname, found_at, lookup_latency_ms, visit_count
		FROM hostnames
		WHERE ip = ?
	`), ip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname %s: %w", ip, err)
	}
	return &rec, nil
}

type metadataRow struct {
	IP string `db:"ip"`
	SiteMetadata
	FetchedAt time.Time `db:"fetched_at"`
}

// UpsertSiteMetadata replaces the metadata row for ip with the latest fetch.
func (s *Storage) UpsertSiteMetadata(ctx context.Context, ip string, meta SiteMetadata) error {
	row := metadataRow{IP: ip, SiteMetadata: meta, FetchedAt: time.Now().UTC()}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO site_metadata (ip, title, description, keywords, snippet, http_status, content_type, size_bytes, final_url, fetched_at)
		VALUES (:ip, :title, :description, :keywords, :snippet, :http_status, :content_type, :size_bytes, :final_url, :fetched_at)
		ON CONFLICT(ip) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			keywords = excluded.keywords,
			snippet = excluded.snippet,
			http_status = excluded.http_status,
			content_type = excluded.content_type,
			size_bytes = excluded.size_bytes,
			final_url = excluded.final_url,
			fetched_at = excluded.fetched_at
	`, row)
	if err != nil {
		return fmt.Errorf("failed to upsert site metadata for %s: %w", ip, err)
	}
	return nil
}

// GetSiteMetadata retrieves the latest metadata for ip, returns nil if not found
func (s *Storage) GetSiteMetadata(ctx context.Context, ip string) (*SiteMetadata, error) {
	var row metadataRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT ip, title, description, keywords, snippet, http_status, content_type, size_bytes, final_url, fetched_at
		FROM site_metadata
		WHERE ip = ?
	`), ip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site metadata for %s: %w", ip, err)
	}
	return &row.SiteMetadata, nil
}

// RecordScan appends one scan-history row.
func (s *Storage) RecordScan(ctx context.Context, summary ScanSummary) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO scan_history (range_start, range_end, mode, processed, found, start_time, end_time, duration_seconds)
		VALUES (:range_start, :range_end, :mode, :processed, :found, :start_time, :end_time, :duration_seconds)
	`, summary)
	if err != nil {
		return fmt.Errorf("failed to record scan history: %w", err)
	}
	return nil
}

// ScanHistory returns the most recent scan summaries, newest first.
func (s *Storage) ScanHistory(ctx context.Context, limit int) ([]ScanSummary, error) {
	var rows []ScanSummary
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT range_start, range_end, mode, processed, found, start_time, end_time, duration_seconds
		FROM scan_history
		ORDER BY id DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan history: %w", err)
	}
	return rows, nil
}

// SaveCrawl persists the outcome of one crawl. A re-crawl of the same seed
// replaces its pages and word frequencies.
func (s *Storage) SaveCrawl(ctx context.Context, site Site, pages []PageRecord, words []WordCount) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin crawl transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO sites (url, title, pages, total_words, crawled_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			pages = excluded.pages,
			total_words = excluded.total_words,
			crawled_at = excluded.crawled_at
	`), site.URL, site.Title, site.Pages, site.TotalWords, site.CrawledAt)
	if err != nil {
		return fmt.Errorf("failed to upsert site %s: %w", site.URL, err)
	}

	var siteID int64
	if err = tx.GetContext(ctx, &siteID, tx.Rebind("SELECT id FROM sites WHERE url = ?"), site.URL); err != nil {
		return fmt.Errorf("failed to retrieve site id: %w", err)
	}

	for _, stmt := range []string{"DELETE FROM pages WHERE site_id = ?", "DELETE FROM words WHERE site_id = ?"} {
		if _, err = tx.ExecContext(ctx, tx.Rebind(stmt), siteID); err != nil {
			return fmt.Errorf("failed to clear previous crawl of %s: %w", site.URL, err)
		}
	}

	pageStmt, err := tx.PreparexContext(ctx, tx.Rebind("INSERT INTO pages (site_id, url, title, raw_text_length) VALUES (?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()
	for _, p := range pages {
		if _, err = pageStmt.ExecContext(ctx, siteID, p.URL, p.Title, p.RawTextLength); err != nil {
			return fmt.Errorf("failed to insert page %s: %w", p.URL, err)
		}
	}

	wordStmt, err := tx.PreparexContext(ctx, tx.Rebind("INSERT INTO words (site_id, word, frequency, word_rank) VALUES (?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("failed to prepare word insert: %w", err)
	}
	defer wordStmt.Close()
	// word_rank keeps the caller's order so equal frequencies read back as given
	for rank, w := range words {
		if _, err = wordStmt.ExecContext(ctx, siteID, w.Word, w.Frequency, rank); err != nil {
			return fmt.Errorf("failed to insert word %q: %w", w.Word, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit crawl of %s: %w", site.URL, err)
	}
	return nil
}

// GetSite retrieves a crawled site by seed URL, returns nil if not found
func (s *Storage) GetSite(ctx context.Context, url string) (*Site, error) {
	var site Site
	err := s.db.GetContext(ctx, &site, s.db.Rebind(`
		SELECT id, url, title, pages, total_words, crawled_at
		FROM sites
		WHERE url = ?
	`), url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site %s: %w", url, err)
	}
	return &site, nil
}

// TopWords returns the most frequent words of a site. Ties keep the order
// the words were saved in.
func (s *Storage) TopWords(ctx context.Context, siteID int64, limit int) ([]WordCount, error) {
	var words []WordCount
	err := s.db.SelectContext(ctx, &words, s.db.Rebind(`
		SELECT word, frequency
		FROM words
		WHERE site_id = ?
		ORDER BY frequency DESC, word_rank ASC
		LIMIT ?
	`), siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load words for site %d: %w", siteID, err)
	}
	return words, nil
}

// Search ranks sites by the summed frequency of the given terms.
func (s *Storage) Search(ctx context.Context, terms []string, limit int) ([]SearchHit, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT s.url, s.title, CAST(SUM(w.frequency) AS BIGINT) AS score
		FROM words w
		JOIN sites s ON s.id = w.site_id
		WHERE w.word IN (?)
		GROUP BY s.id, s.url, s.title
		ORDER BY score DESC, s.url ASC
		LIMIT ?
	`, terms, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}

	var hits []SearchHit
	if err := s.db.SelectContext(ctx, &hits, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return hits, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
