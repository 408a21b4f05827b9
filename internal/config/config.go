package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/DeafMist/region-news-map/internal/catalog"
	"github.com/DeafMist/region-news-map/internal/geo"
)

// Common contains Elasticsearch parameters shared by every backend service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Worker holds configuration for the Kafka -> Elasticsearch worker.
type Worker struct {
	Common
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DescriptionLimit int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
	CentroidFallback bool
}

// API describes the search endpoint configuration.
type API struct {
	Common
	BindAddr    string
	DefaultSize int
	MaxSize     int
}

// Web configures the map page server.
type Web struct {
	BindAddr        string
	SearchBaseURL   string
	SearchTimeout   time.Duration
	SessionCapacity int
	SessionTTL      time.Duration
	MapClientID     string
	MapContainerID  string
	MapCenter       geo.LatLng
	MapZoom         int
	MapFocusZoom    int
}

// Feed is one RSS source pinned to a region and category.
type Feed struct {
	Region   string
	Category string
	URL      string
}

// Collector configures the RSS -> Kafka collector.
type Collector struct {
	KafkaBrokers []string
	KafkaTopic   string
	Feeds        []Feed
	Interval     time.Duration
	FetchTimeout time.Duration
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

var dotenvOnce sync.Once

// loadDotEnv reads DOTENV_PATH (default .env) once. Variables already set in the
// process environment win; a missing file is fine.
func loadDotEnv() error {
	var err error
	dotenvOnce.Do(func() {
		path := getEnv("DOTENV_PATH", ".env")
		if loadErr := godotenv.Load(path); loadErr != nil && !errors.Is(loadErr, fs.ErrNotExist) {
			err = fmt.Errorf("load %s: %w", path, loadErr)
		}
	})
	return err
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "region_news"),
	}
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Worker{
		Common:           loadCommon(),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092"), ","),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "region_news_raw"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "region-news-worker"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 2),
		DescriptionLimit: getInt("WORKER_DESCRIPTION_LIMIT", 200),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
		CentroidFallback: getBool("WORKER_CENTROID_FALLBACK", false),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}
	if c.DescriptionLimit < 0 {
		return nil, fmt.Errorf("WORKER_DESCRIPTION_LIMIT cannot be negative")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:5000"),
		DefaultSize: getInt("API_RESULT_SIZE", 50),
		MaxSize:     getInt("API_MAX_RESULT_SIZE", 200),
	}

	if c.DefaultSize <= 0 {
		return nil, fmt.Errorf("API_RESULT_SIZE must be positive")
	}
	if c.MaxSize <= 0 {
		return nil, fmt.Errorf("API_MAX_RESULT_SIZE must be positive")
	}
	if c.DefaultSize > c.MaxSize {
		return nil, fmt.Errorf("API_RESULT_SIZE cannot exceed API_MAX_RESULT_SIZE")
	}

	return c, nil
}

// LoadWeb builds a Web config from environment variables.
func LoadWeb() (*Web, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Web{
		BindAddr:        getEnv("WEB_BIND_ADDR", "0.0.0.0:3000"),
		SearchBaseURL:   strings.TrimRight(getEnv("SEARCH_BASE_URL", "http://127.0.0.1:5000"), "/"),
		SearchTimeout:   getDuration("SEARCH_TIMEOUT", "10s"),
		SessionCapacity: getInt("WEB_SESSION_CAPACITY", 1000),
		SessionTTL:      getDuration("WEB_SESSION_TTL", "30m"),
		MapClientID:     getEnv("NAVER_MAP_CLIENT_ID", ""),
		MapContainerID:  getEnv("MAP_CONTAINER_ID", "map"),
		MapZoom:         getInt("MAP_ZOOM", 7),
		MapFocusZoom:    getInt("MAP_FOCUS_ZOOM", 10),
	}

	center, err := geo.Parse(getEnv("MAP_CENTER_LAT", "37.4488"), getEnv("MAP_CENTER_LNG", "127.1267"))
	if err != nil {
		return nil, fmt.Errorf("MAP_CENTER_LAT/MAP_CENTER_LNG: %w", err)
	}
	c.MapCenter = center

	if !strings.HasPrefix(c.SearchBaseURL, "http://") && !strings.HasPrefix(c.SearchBaseURL, "https://") {
		return nil, fmt.Errorf("SEARCH_BASE_URL must be an http(s) URL")
	}
	if c.SessionCapacity <= 0 {
		return nil, fmt.Errorf("WEB_SESSION_CAPACITY must be positive")
	}
	if c.SearchTimeout <= 0 {
		return nil, fmt.Errorf("SEARCH_TIMEOUT must be positive")
	}
	if c.MapZoom <= 0 {
		return nil, fmt.Errorf("MAP_ZOOM must be positive")
	}
	if c.MapFocusZoom <= 0 {
		return nil, fmt.Errorf("MAP_FOCUS_ZOOM must be positive")
	}

	return c, nil
}

// LoadCollector builds a Collector config from environment variables.
// COLLECTOR_FEEDS is a ';'-separated list of region|category|url triples.
func LoadCollector() (*Collector, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Collector{
		KafkaBrokers: splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092"), ","),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "region_news_raw"),
		Interval:     getDuration("COLLECTOR_INTERVAL", "15m"),
		FetchTimeout: getDuration("COLLECTOR_FETCH_TIMEOUT", "30s"),
	}

	feeds, err := parseFeeds(getEnv("COLLECTOR_FEEDS", ""))
	if err != nil {
		return nil, err
	}
	c.Feeds = feeds

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if len(c.Feeds) == 0 {
		return nil, fmt.Errorf("COLLECTOR_FEEDS must contain at least one feed")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("COLLECTOR_INTERVAL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return nil, fmt.Errorf("COLLECTOR_FETCH_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func parseFeeds(raw string) ([]Feed, error) {
	entries := splitAndTrim(raw, ";")
	feeds := make([]Feed, 0, len(entries))
	for _, entry := range entries {
		parts := strings.SplitN(entry, "|", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("COLLECTOR_FEEDS entry %q must be region|category|url", entry)
		}
		f := Feed{
			Region:   strings.TrimSpace(parts[0]),
			Category: strings.TrimSpace(parts[1]),
			URL:      strings.TrimSpace(parts[2]),
		}
		if _, ok := catalog.LookupRegion(f.Region); !ok {
			return nil, fmt.Errorf("COLLECTOR_FEEDS entry %q: unknown region", entry)
		}
		if _, ok := catalog.LookupCategory(f.Category); !ok {
			return nil, fmt.Errorf("COLLECTOR_FEEDS entry %q: unknown category", entry)
		}
		if f.URL == "" {
			return nil, fmt.Errorf("COLLECTOR_FEEDS entry %q: empty url", entry)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
