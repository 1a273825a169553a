package config

import (
	_ "embed"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed kinds.yaml
var kindsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Extractor ExtractorConfig
	Index     IndexConfig
	Backfill  BackfillConfig
	Redis     RedisConfig
	Log       LogConfig
	Web       WebConfig
	Kinds     map[string]KindConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, empty selects the in-memory index
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type ExtractorConfig struct {
	URL        string        // defaults to http://localhost:8000
	Timeout    time.Duration // per request, defaults to 30s
	RatePerSec float64       // 0 disables pacing
}

type IndexConfig struct {
	Dim         int    // pinned vector length, 0 means set by the first insert
	SnapshotDir string // directory for in-memory index snapshots (optional)
	HNSWMinSize int    // in-memory HNSW candidate search from this many vectors, 0 disables it
}

type BackfillConfig struct {
	BatchSize   int           // pending subjects per run (default 50)
	Concurrency int           // parallel registrations per run (default 1)
	Interval    time.Duration // 0 disables the scheduler
}

type RedisConfig struct {
	Addr     string // enables the distributed backfill lock when set
	Password string
}

type LogConfig struct {
	Env   string // prod, local, dev or docker
	Level string
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS origins besides localhost
}

// KindConfig holds the query defaults of one subject kind.
type KindConfig struct {
	Name      string  `yaml:"-"`
	Threshold float64 `yaml:"threshold"`
	Limit     int     `yaml:"limit"`
}

type kindsFile struct {
	Kinds map[string]KindConfig `yaml:"kinds"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for positive floats.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var kinds kindsFile
	if err := yaml.Unmarshal(kindsYAML, &kinds); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded kinds.yaml: " + err.Error())
	}
	for name, k := range kinds.Kinds {
		k.Name = name
		kinds.Kinds[name] = k
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Extractor: ExtractorConfig{
			URL:        envString("EXTRACTOR_URL", "http://localhost:8000"),
			Timeout:    time.Duration(envInt("EXTRACTOR_TIMEOUT_SEC", 30)) * time.Second,
			RatePerSec: envFloat("EXTRACTOR_RATE_PER_SEC", 0),
		},
		Index: IndexConfig{
			Dim:         envInt("INDEX_DIM", 0),
			SnapshotDir: os.Getenv("INDEX_SNAPSHOT_PATH"),
			HNSWMinSize: envInt("INDEX_HNSW_MIN_SIZE", 0),
		},
		Backfill: BackfillConfig{
			BatchSize:   envInt("BACKFILL_BATCH_SIZE", 50),
			Concurrency: envInt("BACKFILL_CONCURRENCY", 1),
			Interval:    time.Duration(envInt("BACKFILL_INTERVAL_SEC", 0)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Log: LogConfig{
			Env:   envString("LOG_ENV", "local"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Kinds: kinds.Kinds,
	}
}

// Kind returns the settings of a subject kind.
func (c *Config) Kind(name string) (KindConfig, bool) {
	k, ok := c.Kinds[name]
	return k, ok
}

// KindNames returns the configured kinds in sorted order.
func (c *Config) KindNames() []string {
	names := make([]string, 0, len(c.Kinds))
	for name := range c.Kinds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
