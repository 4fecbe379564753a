package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/mcat-providers/services/resolver/internal/flixhq"
	"github.com/example/mcat-providers/services/resolver/internal/metadata"
	"github.com/example/mcat-providers/services/resolver/internal/provider/rabbitstream"
)

type Config struct {
	ServiceName string
	LogLevel    string
	HTTPAddr    string
	GRPCAddr    string

	TMDBToken   string
	TMDBBaseURL string
	FlixHqURL   string

	RabbitstreamURL string
	ScriptPath      string
	ScriptURL       string
	ScriptMD5       string
	NodeBin         string

	// Outbound HTTP client settings.
	HTTPTimeout        time.Duration
	UpstreamRPS        float64
	UpstreamBurst      int
	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32

	MetadataCacheSize int
	SearchCacheSize   int
	KeyCacheSize      int

	DatabaseURL string
	NATSURL     string
	JWTSecret   string

	// Signed stream proxy; disabled unless both secret and base url are set.
	HLSSigningSecret string
	HLSProxyBaseURL  string
	HLSProxyTTL      time.Duration
}

// Load reads the resolver settings. Nothing is required: a missing TMDB
// token surfaces as a configuration error on the first lookup.
func Load() (Config, error) {
	return Config{
		ServiceName: envString("SERVICE_NAME", "resolver"),
		LogLevel:    envString("LOG_LEVEL", "info"),
		HTTPAddr:    envString("HTTP_ADDR", ":8080"),
		GRPCAddr:    envString("GRPC_ADDR", ":9096"),

		TMDBToken:   strings.TrimSpace(os.Getenv("TMDB_API_TOKEN")),
		TMDBBaseURL: envString("TMDB_BASE_URL", metadata.DefaultBaseURL),
		FlixHqURL:   envString("FLIXHQ_BASE_URL", flixhq.DefaultBaseURL),

		RabbitstreamURL: envString("RABBITSTREAM_BASE_URL", rabbitstream.DefaultBaseURL),
		ScriptPath:      envString("RABBITSTREAM_SCRIPT_PATH", rabbitstream.ScriptName),
		ScriptURL:       envString("RABBITSTREAM_SCRIPT_URL", rabbitstream.ScriptURL),
		ScriptMD5:       envString("RABBITSTREAM_SCRIPT_MD5", rabbitstream.ScriptMD5),
		NodeBin:         envString("NODE_BIN", "node"),

		HTTPTimeout:        envDuration("HTTP_TIMEOUT", 15*time.Second),
		UpstreamRPS:        envFloat("UPSTREAM_RPS", 0),
		UpstreamBurst:      envInt("UPSTREAM_BURST", 10),
		CBMaxRequests:      uint32(envInt("CB_MAX_REQUESTS", 5)),
		CBInterval:         envDuration("CB_INTERVAL", 60*time.Second),
		CBTimeout:          envDuration("CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold: uint32(envInt("CB_FAILURE_THRESHOLD", 5)),

		MetadataCacheSize: envInt("METADATA_CACHE_SIZE", 128),
		SearchCacheSize:   envInt("SEARCH_CACHE_SIZE", flixhq.DefaultSearchSize),
		KeyCacheSize:      envInt("KEY_CACHE_SIZE", rabbitstream.DefaultKeyCache),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		NATSURL:     strings.TrimSpace(os.Getenv("NATS_URL")),
		JWTSecret:   strings.TrimSpace(os.Getenv("JWT_SECRET")),

		HLSSigningSecret: strings.TrimSpace(os.Getenv("HLS_SIGNING_SECRET")),
		HLSProxyBaseURL:  strings.TrimSpace(os.Getenv("HLS_PROXY_BASE_URL")),
		HLSProxyTTL:      envDuration("HLS_PROXY_TTL", 6*time.Hour),
	}, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
