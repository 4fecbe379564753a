package config

import (
	"errors"
	"os"
	"strings"
	"time"

	platformconfig "github.com/example/mcat-providers/internal/platform/config"
)

type Config struct {
	platformconfig.AppConfig
	SigningSecret   string
	PublicBaseURL   string
	UpstreamTimeout time.Duration
	NATSURL         string
}

func Load() (Config, error) {
	app, err := platformconfig.Load(":8084")
	if err != nil {
		return Config{}, err
	}
	secret := strings.TrimSpace(os.Getenv("HLS_SIGNING_SECRET"))
	if secret == "" {
		return Config{}, errors.New("HLS_SIGNING_SECRET is required")
	}
	timeout := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("UPSTREAM_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}
	return Config{
		AppConfig:       app,
		SigningSecret:   secret,
		PublicBaseURL:   strings.TrimSpace(os.Getenv("HLS_PROXY_BASE_URL")),
		UpstreamTimeout: timeout,
		NATSURL:         strings.TrimSpace(os.Getenv("NATS_URL")),
	}, nil
}
