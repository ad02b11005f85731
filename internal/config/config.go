package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/alvmarrod/web-weaver/internal/addrspace"
	"github.com/alvmarrod/web-weaver/internal/storage"
)

// Duration is a time.Duration that reads "5ms" style strings from flags and
// JSON, and bare JSON numbers as milliseconds.
type Duration time.Duration

// D returns the value as a time.Duration
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalFlag implements flags.Unmarshaler
func (d *Duration) UnmarshalFlag(value string) error {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON accepts "250ms" or 250
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.UnmarshalFlag(s)
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration must be a string like \"5ms\" or milliseconds: %w", err)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalJSON writes the string form
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// StoreConfig selects the persistence backend. An empty DBPath keeps
// everything in memory.
type StoreConfig struct {
	DBPath string `json:"db_path" long:"db" description:"Database path (sqlite3) or DSN (pgx); empty keeps results in memory"`
	Driver string `json:"driver" long:"driver" description:"Database driver" choice:"sqlite3" choice:"pgx" default-mask:"sqlite3"`
}

func (s *StoreConfig) validate() error {
	switch s.Driver {
	case storage.DriverSQLite, storage.DriverPostgres:
		return nil
	default:
		return fmt.Errorf("driver must be %s or %s, got %q", storage.DriverSQLite, storage.DriverPostgres, s.Driver)
	}
}

// CommonConfig holds the options every command shares
type CommonConfig struct {
	ConfigFile  string `json:"-" long:"config" description:"JSON configuration file; flags override its values"`
	LogLevel    string `json:"log_level" long:"log-level" description:"Log level" choice:"debug" choice:"info" choice:"warn" choice:"error" default-mask:"info"`
	MetricsPath string `json:"metrics_path" long:"metrics-file" description:"Write a JSON metrics summary here on exit"`
	MetricsAddr string `json:"metrics_addr" long:"metrics-addr" description:"Serve Prometheus metrics on this address, e.g. :2112"`
	Version     bool   `json:"-" short:"v" long:"version" description:"Print version and exit"`
}

// loadFile decodes a JSON configuration file over cfg. Fields absent from
// the file keep their current values.
func loadFile(path string, cfg any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

// parseArgs overlays the file named by --config and then the flags in args
// onto cfg, which already holds the defaults. It returns the positional
// arguments.
func parseArgs(cfg any, name string, args []string) ([]string, error) {
	var pre struct {
		ConfigFile string `long:"config"`
	}
	if _, err := flags.NewParser(&pre, flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return nil, err
	}
	if pre.ConfigFile != "" {
		if err := loadFile(pre.ConfigFile, cfg); err != nil {
			return nil, err
		}
	}

	parser := flags.NewNamedParser(name, flags.Default)
	if _, err := parser.AddGroup("Options", "", cfg); err != nil {
		return nil, err
	}
	return parser.ParseArgs(args)
}

// ScanConfig holds the ipmapper configuration
type ScanConfig struct {
	CommonConfig
	StoreConfig

	Start            string   `json:"start" long:"start" description:"First address of the range"`
	End              string   `json:"end" long:"end" description:"Last address of the range"`
	Range            string   `json:"range" short:"r" long:"range" description:"Range as a.b.c.d-e.f.g.h, CIDR or a single address; overrides --start/--end"`
	BatchSize        uint32   `json:"batch_size" long:"batch-size" description:"Addresses per batch" default-mask:"100"`
	Delay            Duration `json:"delay" long:"delay" description:"Minimum delay between lookups, shared by all workers" default-mask:"5ms"`
	Workers          int      `json:"workers" short:"w" long:"workers" description:"Concurrent lookups" default-mask:"10"`
	Timeout          Duration `json:"timeout" long:"timeout" description:"Lookup and fetch timeout" default-mask:"3s"`
	Metadata         bool     `json:"metadata" short:"m" long:"metadata" description:"Fetch landing page metadata for resolved hosts"`
	Mode             string   `json:"mode" long:"mode" description:"Address order" choice:"sequential" choice:"random" default-mask:"sequential"`
	Resume           string   `json:"resume" long:"resume" description:"Continue after the last row of this result log"`
	Max              uint64   `json:"max" long:"max" description:"Stop after this many addresses (0 = no cap)"`
	Output           string   `json:"output" short:"o" long:"output" description:"Result log (CSV)" default-mask:"scan_results.csv"`
	DNSServers       []string `json:"dns_servers" long:"dns-server" description:"DNS server host[:port], repeatable; defaults to resolv.conf"`
	VerifyTLS        bool     `json:"verify_tls" long:"verify-tls" description:"Verify certificates when fetching metadata"`
	RecordMisses     bool     `json:"record_misses" long:"record-misses" description:"Also store addresses without a hostname"`
	Progress         bool     `json:"progress" long:"progress" description:"Show a progress bar"`
	ProgressInterval Duration `json:"progress_interval" long:"progress-interval" description:"Progress log cadence" default-mask:"10s"`
	MaxBodySize      int64    `json:"max_body_size" long:"max-body-size" description:"Metadata fetch body limit in bytes" default-mask:"2097152"`
	BloomSize        uint     `json:"bloom_size" long:"bloom-size" description:"Expected distinct addresses for the unique counter" default-mask:"1000000"`
	BloomFP          float64  `json:"bloom_fp" long:"bloom-fp" description:"Unique counter false positive rate" default-mask:"0.01"`

	// Resolved by validate
	AddrRange addrspace.Range `json:"-" no-flag:"true"`
	ScanMode  addrspace.Mode  `json:"-" no-flag:"true"`
}

// ParseScanArgs builds a scan configuration from defaults, the optional
// --config file and the command line, in increasing precedence
func ParseScanArgs(args []string) (*ScanConfig, error) {
	cfg := &ScanConfig{}
	applyScanDefaults(cfg)

	if _, err := parseArgs(cfg, "ipmapper", args); err != nil {
		return nil, err
	}
	if cfg.Version {
		return cfg, nil
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyScanDefaults sets default values on a fresh configuration
func applyScanDefaults(cfg *ScanConfig) {
	cfg.LogLevel = "info"
	cfg.Driver = storage.DriverSQLite
	cfg.BatchSize = 100
	cfg.Delay = Duration(5 * time.Millisecond)
	cfg.Workers = 10
	cfg.Timeout = Duration(3 * time.Second)
	cfg.Mode = addrspace.Sequential.String()
	cfg.Output = "scan_results.csv"
	cfg.ProgressInterval = Duration(10 * time.Second)
	cfg.MaxBodySize = 2 << 20
	cfg.BloomSize = 1_000_000
	cfg.BloomFP = 0.01
}

// validate checks values and resolves the address range and mode
func (cfg *ScanConfig) validate() error {
	var err error
	switch {
	case cfg.Range != "":
		cfg.AddrRange, err = addrspace.ParseExpression(cfg.Range)
	case cfg.Start != "" || cfg.End != "":
		start, end := cfg.Start, cfg.End
		if start == "" {
			start = "0.0.0.0"
		}
		if end == "" {
			end = "255.255.255.255"
		}
		cfg.AddrRange, err = addrspace.ParseRange(start, end)
	default:
		cfg.AddrRange = addrspace.FullRange()
	}
	if err != nil {
		return err
	}

	if cfg.ScanMode, err = addrspace.ParseMode(cfg.Mode); err != nil {
		return err
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if cfg.Delay < 0 {
		return fmt.Errorf("delay must be >= 0")
	}
	if cfg.Timeout.D() < time.Millisecond {
		return fmt.Errorf("timeout must be >= 1ms")
	}
	if cfg.Output == "" {
		return fmt.Errorf("output is required")
	}
	if cfg.BloomFP <= 0 || cfg.BloomFP >= 1 {
		return fmt.Errorf("bloom_fp must be between 0 and 1, got %f", cfg.BloomFP)
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return cfg.StoreConfig.validate()
}

// CrawlConfig holds the configuration of the crawl command
type CrawlConfig struct {
	CommonConfig
	StoreConfig

	SeedURL           string   `json:"seed_url" short:"s" long:"seed" description:"Seed URL"`
	MaxPages          int      `json:"max_pages" short:"n" long:"max-pages" description:"Maximum pages to visit" default-mask:"50"`
	ExcludeExtensions []string `json:"exclude_extensions" long:"exclude-ext" description:"File extension to skip, repeatable; replaces the built-in list"`
	StopWordsFile     string   `json:"stop_words_file" long:"stop-words" description:"Stop word file, one word per line"`
	Workers           int      `json:"workers" short:"w" long:"workers" description:"Concurrent page fetches" default-mask:"4"`
	Timeout           Duration `json:"timeout" long:"timeout" description:"Page fetch timeout" default-mask:"10s"`
	AllowOtherHosts   bool     `json:"allow_other_hosts" long:"allow-other-hosts" description:"Follow links to hosts other than the seed's"`
	MaxHostsPerDomain int      `json:"max_hosts_per_domain" long:"max-hosts-per-domain" description:"Hosts per root domain when other hosts are allowed" default-mask:"3"`
	UserAgent         string   `json:"user_agent" long:"user-agent" description:"HTTP User-Agent header" default-mask:"web-weaver/1.0"`
	MaxBodySize       int      `json:"max_body_size" long:"max-body-size" description:"Page body limit in bytes" default-mask:"5242880"`
	Top               int      `json:"top" long:"top" description:"Words to print after the crawl" default-mask:"20"`
}

// ParseCrawlArgs builds a crawl configuration from defaults, the optional
// --config file and the command line
func ParseCrawlArgs(args []string) (*CrawlConfig, error) {
	cfg := &CrawlConfig{}
	applyCrawlDefaults(cfg)

	rest, err := parseArgs(cfg, "crawler crawl", args)
	if err != nil {
		return nil, err
	}
	if cfg.SeedURL == "" && len(rest) > 0 {
		cfg.SeedURL = rest[0]
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyCrawlDefaults(cfg *CrawlConfig) {
	cfg.LogLevel = "info"
	cfg.Driver = storage.DriverSQLite
	cfg.MaxPages = 50
	cfg.Workers = 4
	cfg.Timeout = Duration(10 * time.Second)
	cfg.MaxHostsPerDomain = 3
	cfg.UserAgent = "web-weaver/1.0"
	cfg.MaxBodySize = 5 << 20
	cfg.Top = 20
}

func (cfg *CrawlConfig) validate() error {
	if cfg.SeedURL == "" {
		return fmt.Errorf("seed_url is required")
	}
	if !strings.HasPrefix(cfg.SeedURL, "http://") && !strings.HasPrefix(cfg.SeedURL, "https://") {
		return fmt.Errorf("seed_url must start with http:// or https://")
	}
	if cfg.MaxPages < 1 {
		return fmt.Errorf("max_pages must be >= 1")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if cfg.Timeout.D() < 100*time.Millisecond {
		return fmt.Errorf("timeout must be >= 100ms")
	}
	if cfg.MaxHostsPerDomain < 1 {
		return fmt.Errorf("max_hosts_per_domain must be >= 1")
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return cfg.StoreConfig.validate()
}

// SearchConfig holds the configuration of the search command
type SearchConfig struct {
	CommonConfig
	StoreConfig

	Limit int `json:"limit" short:"l" long:"limit" description:"Maximum results" default-mask:"10"`

	Terms []string `json:"-" no-flag:"true"`
}

// ParseSearchArgs parses the search command line; positional arguments are
// the query terms
func ParseSearchArgs(args []string) (*SearchConfig, error) {
	cfg := &SearchConfig{}
	cfg.LogLevel = "info"
	cfg.Driver = storage.DriverSQLite
	cfg.DBPath = "crawler.db"
	cfg.Limit = 10

	rest, err := parseArgs(cfg, "crawler search", args)
	if err != nil {
		return nil, err
	}
	cfg.Terms = rest

	if len(cfg.Terms) == 0 {
		return nil, fmt.Errorf("invalid configuration: at least one search term is required")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("invalid configuration: search needs a database (--db)")
	}
	if cfg.Limit < 1 {
		return nil, fmt.Errorf("invalid configuration: limit must be >= 1")
	}
	if err := cfg.StoreConfig.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
