package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string

	// FromOldest replays retained events when the group has no offsets.
	FromOldest bool
}

type BuildInfo struct {
	Version  string
	Revision string
	Branch   string
	Date     string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN uint32

	ConfigDir     string
	DefaultTenant string
	TenantHeader  string
	// HMAC secret for bearer tokens; empty accepts anonymous callers only
	JWTSecret string
	JWTIssuer string

	DefaultWMSURL   string
	DefaultDBURL    string
	DBMaxConns      int32
	LayerTimeout    time.Duration
	RequestTimeout  time.Duration
	MaxLayerWorkers int

	WMSMaxResponseBytes int64

	TemplateDir        string
	TemplateCacheSize  int
	EmbedImages        bool
	EmbedImageMaxBytes int64

	CacheEnabled    bool
	RedisAddr       string
	CacheTTLDefault time.Duration
	CacheTTLOvr     map[string]time.Duration
	CacheOpTimeout  time.Duration

	Invalidation    InvalidationCfg
	TracingExporter string
	Build           BuildInfo
}

func FromEnv() Config {
	workers := getint("MAX_LAYER_WORKERS", 8)
	if workers < 1 {
		workers = 1
	}
	conns := getint("DB_MAX_CONNS", 4)
	if conns < 1 {
		conns = 1
	}
	sample := getint("LOG_SAMPLE_N", 0)
	if sample < 0 {
		sample = 0
	}

	return Config{
		Addr:       getenv("ADDR", ":5015"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: uint32(sample),

		ConfigDir:     getenv("CONFIG_DIR", "./config"),
		DefaultTenant: getenv("DEFAULT_TENANT", "default"),
		TenantHeader:  getenv("TENANT_HEADER", "Tenant"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTIssuer:     os.Getenv("JWT_ISSUER"),

		DefaultWMSURL:   getenv("DEFAULT_WMS_URL", "http://localhost:8001/ows/"),
		DefaultDBURL:    os.Getenv("DEFAULT_DB_URL"),
		DBMaxConns:      int32(conns),
		LayerTimeout:    getduration("LAYER_TIMEOUT", 20*time.Second),
		RequestTimeout:  getduration("REQUEST_TIMEOUT", 60*time.Second),
		MaxLayerWorkers: workers,

		WMSMaxResponseBytes: getint64("WMS_MAX_RESPONSE_BYTES", 16<<20),

		TemplateDir:        os.Getenv("TEMPLATE_DIR"),
		TemplateCacheSize:  getint("TEMPLATE_CACHE_SIZE", 256),
		EmbedImages:        getbool("EMBED_IMAGES", false),
		EmbedImageMaxBytes: getint64("EMBED_IMAGE_MAX_BYTES", 256<<10),

		CacheEnabled:    getbool("CACHE_ENABLED", false),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheTTLDefault: getduration("CACHE_TTL", 60*time.Second),
		CacheTTLOvr:     parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		Invalidation: InvalidationCfg{
			Enabled:    getbool("INVALIDATION_ENABLED", false),
			Topic:      getenv("KAFKA_TOPIC", "featureinfo-invalidation"),
			Brokers:    getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID:    getenv("KAFKA_GROUP_ID", "featureinfo-invalidator"),
			FromOldest: getbool("KAFKA_FROM_OLDEST", false),
		},
		TracingExporter: getenv("TRACING_EXPORTER", "none"),
		Build: BuildInfo{
			Version:  getenv("BUILD_VERSION", "dev"),
			Revision: os.Getenv("BUILD_REVISION"),
			Branch:   os.Getenv("BUILD_BRANCH"),
			Date:     os.Getenv("BUILD_DATE"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "layer=5m,other=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			out[k] = d
		}
	}
	return out
}
