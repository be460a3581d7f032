package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultSources is the curated list used when no source files are configured.
var DefaultSources = []Source{
	{ID: "bbc", Name: "BBC News (World)", URL: "https://feeds.bbci.co.uk/news/world/rss.xml"},
	{ID: "npr", Name: "NPR (News)", URL: "https://feeds.npr.org/1001/rss.xml"},
	{ID: "guardian", Name: "The Guardian (World)", URL: "https://www.theguardian.com/world/rss"},
	{ID: "nasa", Name: "NASA (Breaking News)", URL: "https://www.nasa.gov/rss/dyn/breaking_news.rss"},
	{ID: "brookings", Name: "Brookings (Research/Commentary)", URL: "https://www.brookings.edu/feed/"},
	{ID: "eff", Name: "EFF (Updates)", URL: "https://www.eff.org/rss/updates.xml"},
	{ID: "reliefweb", Name: "ReliefWeb (Updates)", URL: "https://reliefweb.int/updates/rss.xml"},
}

type SourceCache struct {
	sourcesDir string
	cache      map[string]Source
	mu         sync.RWMutex
}

func NewSourceCache(sourcesDir string) *SourceCache {
	return &SourceCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]Source),
	}
}

// Run loads every *.yml file from the sources directory. When the directory
// is missing or holds no files the built-in defaults are used.
func (sc *SourceCache) Run() error {
	files, err := sc.sourceFiles()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		slog.Debug("No source files found, using defaults", "dir", sc.sourcesDir, "count", len(DefaultSources))
		sc.mu.Lock()
		defer sc.mu.Unlock()
		for _, source := range DefaultSources {
			sc.cache[source.ID] = source
		}
		return nil
	}

	for _, file := range files {
		source, err := sc.LoadSource(file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source loaded", "source", source.ID, "enabled", source.IsEnabled(), "url", source.URL)
	}

	return nil
}

func (sc *SourceCache) sourceFiles() ([]string, error) {
	if sc.sourcesDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(sc.sourcesDir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(sc.sourcesDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	return files, nil
}

func (sc *SourceCache) LoadSource(file string) (Source, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Source{}, fmt.Errorf("failed to read file: %w", err)
	}

	var source Source
	if err := yaml.Unmarshal(data, &source); err != nil {
		return Source{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if source.ID == "" {
		source.ID = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	source.ID = strings.ToLower(strings.TrimSpace(source.ID))
	source.Name = strings.TrimSpace(source.Name)
	source.URL = strings.TrimSpace(source.URL)
	if source.Name == "" {
		source.Name = source.ID
	}

	if err := validateSource(source); err != nil {
		return Source{}, fmt.Errorf("invalid source %s: %w", file, err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache[source.ID] = source

	return source, nil
}

func (sc *SourceCache) GetSource(id string) (Source, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	source, ok := sc.cache[id]
	if !ok {
		return Source{}, fmt.Errorf("source with id '%s' not found", id)
	}
	return source, nil
}

// GetEnabledSources returns enabled sources sorted by id.
func (sc *SourceCache) GetEnabledSources() []Source {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	sources := make([]Source, 0, len(sc.cache))
	for _, source := range sc.cache {
		if source.IsEnabled() {
			sources = append(sources, source)
		}
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources
}

func (sc *SourceCache) GetSourceCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.cache)
}

func validateSource(source Source) error {
	if source.ID == "" {
		return fmt.Errorf("source id is required")
	}
	if strings.Contains(source.ID, ":") {
		return fmt.Errorf("source id must not contain ':'")
	}
	if !isHTTPURL(source.URL) {
		return fmt.Errorf("source URL must be an absolute http(s) URL")
	}
	return nil
}
