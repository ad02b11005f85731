package storage

import "fmt"

const (
	// DriverSQLite selects github.com/mattn/go-sqlite3.
	DriverSQLite = "sqlite3"
	// DriverPostgres selects the pgx stdlib driver.
	DriverPostgres = "pgx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS hostnames (
	ip TEXT PRIMARY KEY,
	hostname TEXT,
	found_at TIMESTAMP NOT NULL,
	lookup_latency_ms INTEGER NOT NULL DEFAULT 0,
	visit_count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS site_metadata (
	ip TEXT PRIMARY KEY,
	title TEXT,
	description TEXT,
	keywords TEXT,
	snippet TEXT,
	http_status INTEGER NOT NULL DEFAULT 0,
	content_type TEXT,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	final_url TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMP NOT NULL,
	FOREIGN KEY (ip) REFERENCES hostnames(ip)
);

CREATE TABLE IF NOT EXISTS scan_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	range_start TEXT NOT NULL,
	range_end TEXT NOT NULL,
	mode TEXT NOT NULL,
	processed INTEGER NOT NULL,
	found INTEGER NOT NULL,
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP NOT NULL,
	duration_seconds REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS sites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT UNIQUE NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	pages INTEGER NOT NULL DEFAULT 0,
	total_words INTEGER NOT NULL DEFAULT 0,
	crawled_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	site_id INTEGER NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	raw_text_length INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (site_id) REFERENCES sites(id),
	UNIQUE(site_id, url)
);

CREATE TABLE IF NOT EXISTS words (
	site_id INTEGER NOT NULL,
	word TEXT NOT NULL,
	frequency INTEGER NOT NULL,
	word_rank INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (site_id) REFERENCES sites(id),
	PRIMARY KEY (site_id, word)
);

CREATE INDEX IF NOT EXISTS idx_words_word ON words(word);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS hostnames (
	ip TEXT PRIMARY KEY,
	hostname TEXT,
	found_at TIMESTAMPTZ NOT NULL,
	lookup_latency_ms INTEGER NOT NULL DEFAULT 0,
	visit_count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS site_metadata (
	ip TEXT PRIMARY KEY REFERENCES hostnames(ip),
	title TEXT,
	description TEXT,
	keywords TEXT,
	snippet TEXT,
	http_status INTEGER NOT NULL DEFAULT 0,
	content_type TEXT,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	final_url TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_history (
	id BIGSERIAL PRIMARY KEY,
	range_start TEXT NOT NULL,
	range_end TEXT NOT NULL,
	mode TEXT NOT NULL,
	processed BIGINT NOT NULL,
	found BIGINT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	duration_seconds DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS sites (
	id BIGSERIAL PRIMARY KEY,
	url TEXT UNIQUE NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	pages INTEGER NOT NULL DEFAULT 0,
	total_words BIGINT NOT NULL DEFAULT 0,
	crawled_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	site_id BIGINT NOT NULL REFERENCES sites(id),
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	raw_text_length INTEGER NOT NULL DEFAULT 0,
	UNIQUE(site_id, url)
);

CREATE TABLE IF NOT EXISTS words (
	site_id BIGINT NOT NULL REFERENCES sites(id),
	word TEXT NOT NULL,
	frequency BIGINT NOT NULL,
	word_rank INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (site_id, word)
);

CREATE INDEX IF NOT EXISTS idx_words_word ON words(word);
`

func schemaFor(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return sqliteSchema, nil
	case DriverPostgres:
		return postgresSchema, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
