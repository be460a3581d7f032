package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/feed.db" description:"Path to the SQLite database file"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing feed source YAML files"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	CORSOrigins  string `long:"cors-origins" env:"CORS_ALLOW_ORIGINS" default:"http://localhost:5173" description:"Comma-separated list of origins allowed to read the API"`
	RateLimit    int    `long:"rate-limit" env:"API_RATE_LIMIT" default:"10" description:"Requests per second allowed per client (0 disables)"`

	// Ingestion
	UserAgent       string `long:"user-agent" env:"USER_AGENT" default:"provenance-feed/0.1 (+https://github.com/lysyi3m/provenance-feed)" description:"User agent string for HTTP requests"`
	FeedTimeout     int    `long:"feed-timeout" env:"FEED_TIMEOUT" default:"10" description:"Feed fetch timeout in seconds"`
	PageTimeout     int    `long:"page-timeout" env:"PAGE_TIMEOUT" default:"10" description:"Article page fetch timeout in seconds"`
	SkipPageFetch   bool   `long:"skip-page-fetch" env:"SKIP_PAGE_FETCH" description:"Do not fetch article pages for og:image/twitter:image"`
	WorkerCount     int    `long:"worker-count" env:"WORKER_COUNT" default:"4" description:"Number of sources fetched concurrently"`
	IngestInterval  int    `long:"ingest-interval" env:"INGEST_INTERVAL" default:"900" description:"Ingestion interval in seconds (0 disables periodic runs)"`
	IngestOnStartup bool   `long:"ingest-on-startup" env:"INGEST_ON_STARTUP" description:"Run an ingestion as soon as the server starts"`
	RunTimeout      int    `long:"run-timeout" env:"RUN_TIMEOUT" default:"300" description:"Upper bound for a single ingestion run in seconds"`

	// Observation sidecar
	ObserveEnabled   bool   `long:"observe-enabled" env:"OBSERVE_ENABLED" description:"Mirror stored items to the observation endpoint"`
	ObserveURL       string `long:"observe-url" env:"OBSERVE_URL" default:"http://127.0.0.1:8010/api/v1/observe/content" description:"Observation endpoint URL"`
	ObserveAPIKey    string `long:"observe-api-key" env:"OBSERVE_API_KEY" description:"API key sent to the observation endpoint"`
	ObserveTimeoutMs int    `long:"observe-timeout-ms" env:"OBSERVE_TIMEOUT_MS" default:"750" description:"Observation request timeout in milliseconds"`
	ObserveQueueSize int    `long:"observe-queue-size" env:"OBSERVE_QUEUE_SIZE" default:"200" description:"Maximum number of pending observations"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments instead of os.Args. A nil slice means os.Args.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		SourcesDir:       raw.SourcesDir,
		Port:             raw.Port,
		APIAccessKey:     raw.APIAccessKey,
		CORSOrigins:      splitList(raw.CORSOrigins),
		RateLimit:        raw.RateLimit,
		UserAgent:        raw.UserAgent,
		FeedTimeout:      time.Duration(raw.FeedTimeout) * time.Second,
		PageTimeout:      time.Duration(raw.PageTimeout) * time.Second,
		PageFetch:        !raw.SkipPageFetch,
		WorkerCount:      raw.WorkerCount,
		IngestInterval:   time.Duration(raw.IngestInterval) * time.Second,
		IngestOnStartup:  raw.IngestOnStartup,
		RunTimeout:       time.Duration(raw.RunTimeout) * time.Second,
		ObserveEnabled:   raw.ObserveEnabled,
		ObserveURL:       strings.TrimSpace(raw.ObserveURL),
		ObserveAPIKey:    strings.TrimSpace(raw.ObserveAPIKey),
		ObserveTimeout:   time.Duration(raw.ObserveTimeoutMs) * time.Millisecond,
		ObserveQueueSize: raw.ObserveQueueSize,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func (c *Cfg) validate() error {
	nonNegative := map[string]int{
		"feed timeout":       int(c.FeedTimeout),
		"page timeout":       int(c.PageTimeout),
		"ingest interval":    int(c.IngestInterval),
		"observe timeout":    int(c.ObserveTimeout),
		"observe queue size": c.ObserveQueueSize,
		"rate limit":         c.RateLimit,
	}

	for fieldName, fieldValue := range nonNegative {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
