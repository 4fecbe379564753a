package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/mcat-providers/internal/platform/analytics"
	"github.com/example/mcat-providers/internal/platform/logging"
	"github.com/example/mcat-providers/internal/platform/natsconn"
	"github.com/example/mcat-providers/internal/platform/run"
	"github.com/example/mcat-providers/internal/platform/signing"
	"github.com/example/mcat-providers/services/hls-proxy/internal/config"
	"github.com/example/mcat-providers/services/hls-proxy/internal/proxy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	h := &proxy.Handler{
		Signer:     signing.New(cfg.SigningSecret),
		Client:     &http.Client{Timeout: cfg.UpstreamTimeout},
		PublicBase: cfg.PublicBaseURL,
		Log:        log,
	}

	// analytics are optional: the proxy keeps serving without NATS
	if cfg.NATSURL != "" {
		nc, js, err := natsconn.ConnectJetStream(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName})
		if err != nil {
			log.Error("nats connect", zap.Error(err))
		} else {
			events := analytics.New(js, log)
			defer func() {
				events.Flush(2 * time.Second)
				nc.Close()
			}()
			h.Events = events
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/hls", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		if err := run.Shutdown(10*time.Second, srv.Shutdown); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	log.Info("http server starting", zap.String("addr", cfg.HTTP.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("http serve", zap.Error(err))
		run.Exit(1)
	}
}
