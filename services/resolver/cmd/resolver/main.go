package main

import (
	"context"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/mcat-providers/internal/platform/auth"
	"github.com/example/mcat-providers/internal/platform/httpserver"
	"github.com/example/mcat-providers/internal/platform/logging"
	"github.com/example/mcat-providers/internal/platform/run"
	"github.com/example/mcat-providers/services/resolver/internal/app"
	"github.com/example/mcat-providers/services/resolver/internal/config"
	"github.com/example/mcat-providers/services/resolver/internal/grpcapi"
	"github.com/example/mcat-providers/services/resolver/internal/handlers"
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

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("init", zap.Error(err))
		run.Exit(1)
	}

	proxy := handlers.NewStreamProxy(cfg.HLSSigningSecret, cfg.HLSProxyBaseURL, cfg.HLSProxyTTL)
	if proxy == nil {
		log.Info("stream proxy disabled: HLS_SIGNING_SECRET or HLS_PROXY_BASE_URL not set")
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: a.Ready})
	r.Route("/v1", func(r chi.Router) {
		verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
		if cfg.JWTSecret == "" {
			log.Warn("JWT_SECRET not set: override routes are not mounted")
		} else {
			// Override routes (admin only)
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireUser(verifier), auth.RequireAdmin)
				r.Get("/overrides/{source}", handlers.ListOverrides(a.Overrides, log))
				r.Get("/overrides/{source}/{kind}/{catalog_id}", handlers.GetOverride(a.Overrides, log))
				r.Put("/overrides/{source}/{kind}/{catalog_id}", handlers.PutOverride(a.Overrides, log))
				r.Delete("/overrides/{source}/{kind}/{catalog_id}", handlers.DeleteOverride(a.Overrides, log))
			})
		}
		r.Group(func(r chi.Router) {
			if cfg.JWTSecret != "" {
				r.Use(auth.OptionalUser(verifier))
			}
			r.Get("/sources", handlers.ListSources(a.Sources))
			r.Get("/sources/{source}", handlers.Sources(a.Sources, proxy, log))
		})
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTPAddr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		a.Close()
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	grpcapi.Register(grpcSrv, &grpcapi.ResolverService{Sources: a.Sources, Log: log})
	hs := health.NewServer()
	hs.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcSrv, hs)
	reflection.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			hs.Shutdown()
			_ = run.Shutdown(10*time.Second, func(ctx context.Context) error {
				stopped := make(chan struct{})
				go func() {
					grpcSrv.GracefulStop()
					close(stopped)
				}()
				select {
				case <-stopped:
				case <-ctx.Done():
					grpcSrv.Stop()
				}
				return nil
			}, srv.Shutdown)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	a.Close()
	run.Exit(code)
}
