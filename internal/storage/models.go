package storage

import "time"

// HostnameRecord is one address seen by the scanner. IP is the unique key.
type HostnameRecord struct {
	IP              string    `db:"ip" json:"ip"`
	Hostname        *string   `db:"hostname" json:"hostname,omitempty"`
	FoundAt         time.Time `db:"found_at" json:"found_at"`
	LookupLatencyMs uint32    `db:"lookup_latency_ms" json:"lookup_latency_ms"`
	VisitCount      uint32    `db:"visit_count" json:"visit_count"`
}

// SiteMetadata is the most recent page fetch for a resolved hostname.
type SiteMetadata struct {
	Title       *string `db:"title" json:"title,omitempty"`
	Description *string `db:"description" json:"description,omitempty"`
	Keywords    *string `db:"keywords" json:"keywords,omitempty"`
	Snippet     *string `db:"snippet" json:"snippet,omitempty"`
	HTTPStatus  uint16  `db:"http_status" json:"http_status"`
	ContentType *string `db:"content_type" json:"content_type,omitempty"`
	SizeBytes   uint64  `db:"size_bytes" json:"size_bytes"`
	FinalURL    string  `db:"final_url" json:"final_url"`
}

// ScanSummary is the history row written once per completed scan.
type ScanSummary struct {
	RangeStart      string    `db:"range_start" json:"range_start"`
	RangeEnd        string    `db:"range_end" json:"range_end"`
	Mode            string    `db:"mode" json:"mode"`
	Processed       uint64    `db:"processed" json:"processed"`
	Found           uint64    `db:"found" json:"found"`
	StartTime       time.Time `db:"start_time" json:"start_time"`
	EndTime         time.Time `db:"end_time" json:"end_time"`
	DurationSeconds float64   `db:"duration_seconds" json:"duration_seconds"`
}

// PageRecord describes one page indexed during a crawl.
type PageRecord struct {
	URL           string `db:"url" json:"url"`
	Title         string `db:"title" json:"title"`
	RawTextLength int    `db:"raw_text_length" json:"raw_text_length"`
}

// WordCount is a word and its frequency across a crawl.
type WordCount struct {
	Word      string `db:"word" json:"word"`
	Frequency uint64 `db:"frequency" json:"frequency"`
}

// Site is the persisted summary of the latest crawl of a seed URL.
type Site struct {
	SiteID     int64     `db:"id" json:"id"`
	URL        string    `db:"url" json:"url"`
	Title      string    `db:"title" json:"title"`
	Pages      int       `db:"pages" json:"pages"`
	TotalWords uint64    `db:"total_words" json:"total_words"`
	CrawledAt  time.Time `db:"crawled_at" json:"crawled_at"`
}

// SearchHit is a site ranked by the summed frequency of the query terms.
type SearchHit struct {
	URL   string `db:"url" json:"url"`
	Title string `db:"title" json:"title"`
	Score uint64 `db:"score" json:"score"`
}

// Metrics is the run summary exported on exit.
type Metrics struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	Processed         uint64    `json:"processed"`
	Found             uint64    `json:"found"`
	UniqueAddresses   uint64    `json:"unique_addresses,omitempty"`
	MetadataFetched   uint64    `json:"metadata_fetched"`
	PagesFetched      uint64    `json:"pages_fetched"`
	PagesFailed       uint64    `json:"pages_failed"`
	WordsIndexed      uint64    `json:"words_indexed"`
	PersistFailures   uint64    `json:"persist_failures"`
	TotalLookupTimeMs int64     `json:"total_lookup_time_ms"`
	AvgLookupTimeMs   int64     `json:"avg_lookup_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}
