// Package config reads the environment shared by the resolver binaries:
// the service name used in logs and NATS connection names, the zap level,
// and the listen address.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

const fallbackAddr = ":8080"

type HTTPConfig struct {
	Addr string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig
}

// Load reads SERVICE_NAME (required), LOG_LEVEL and HTTP_ADDR. An unset
// HTTP_ADDR takes defaultAddr, then :8080. LOG_LEVEL is lowercased and must
// name a zap level; it defaults to info.
func Load(defaultAddr string) (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: env("SERVICE_NAME"),
		LogLevel:    strings.ToLower(env("LOG_LEVEL")),
		HTTP:        HTTPConfig{Addr: env("HTTP_ADDR")},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = zapcore.InfoLevel.String()
	} else if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return AppConfig{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	for _, addr := range []string{defaultAddr, fallbackAddr} {
		if cfg.HTTP.Addr != "" {
			break
		}
		cfg.HTTP.Addr = strings.TrimSpace(addr)
	}
	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
