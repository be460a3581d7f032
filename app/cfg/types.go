package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath     string
	SourcesDir string

	// HTTP server
	Port         string
	APIAccessKey string
	CORSOrigins  []string
	RateLimit    int

	// Ingestion
	UserAgent       string
	FeedTimeout     time.Duration
	PageTimeout     time.Duration
	PageFetch       bool
	WorkerCount     int
	IngestInterval  time.Duration
	IngestOnStartup bool
	RunTimeout      time.Duration

	// Observation sidecar
	ObserveEnabled   bool
	ObserveURL       string
	ObserveAPIKey    string
	ObserveTimeout   time.Duration
	ObserveQueueSize int

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
