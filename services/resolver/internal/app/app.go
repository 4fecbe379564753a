// Package app assembles the resolver object graph from configuration. The
// server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/mcat-providers/internal/platform/analytics"
	"github.com/example/mcat-providers/internal/platform/db"
	"github.com/example/mcat-providers/internal/platform/natsconn"
	"github.com/example/mcat-providers/services/resolver/internal/config"
	"github.com/example/mcat-providers/services/resolver/internal/flixhq"
	"github.com/example/mcat-providers/services/resolver/internal/httpx"
	"github.com/example/mcat-providers/services/resolver/internal/metadata"
	"github.com/example/mcat-providers/services/resolver/internal/overrides"
	"github.com/example/mcat-providers/services/resolver/internal/provider"
	"github.com/example/mcat-providers/services/resolver/internal/provider/rabbitstream"
	"github.com/example/mcat-providers/services/resolver/internal/source"
)

// disabledServers are listed by flixhq but have no provider yet.
var disabledServers = []string{"doodstream", "vidcloud", "voe", "upstream", "mixdrop"}

// rabbitstreamServer is the flixhq server name backed by rabbitstream embeds.
const rabbitstreamServer = "upcloud"

type App struct {
	Sources   source.Registry
	Providers *provider.Registry
	Overrides overrides.Store
	Events    *analytics.Publisher

	pool *pgxpool.Pool
	nc   *nats.Conn
	log  *zap.Logger
}

type Option func(*options)

type options struct {
	doer httpx.Doer
}

// WithDoer replaces the outbound HTTP client.
func WithDoer(d httpx.Doer) Option { return func(o *options) { o.doer = d } }

// New wires every component. Optional infrastructure (Postgres, NATS) is
// only dialed when configured; a payload script that fails verification
// disables its provider instead of failing startup.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.doer == nil {
		cb := httpx.NewCircuitBreaker("upstream", httpx.BreakerConfig{
			MaxRequests:      cfg.CBMaxRequests,
			Interval:         cfg.CBInterval,
			Timeout:          cfg.CBTimeout,
			FailureThreshold: cfg.CBFailureThreshold,
		}, log)
		o.doer = httpx.New(httpx.ClientConfig{
			Timeout:           cfg.HTTPTimeout,
			RequestsPerSecond: cfg.UpstreamRPS,
			Burst:             cfg.UpstreamBurst,
		}, httpx.WithCircuitBreaker(cb), httpx.WithLogger(log))
	}

	a := &App{log: log}

	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		st := overrides.NewPostgresStore(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("override schema: %w", err)
		}
		a.pool = pool
		a.Overrides = st
	} else {
		a.Overrides = overrides.NewStore(nil)
	}

	if cfg.NATSURL != "" {
		nc, js, err := natsconn.ConnectJetStream(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.nc = nc
		a.Events = analytics.New(js, log)
	}

	providers, err := newProviders(ctx, cfg, o.doer, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Providers = providers

	meta := metadata.NewResolver(metadata.NewTMDBClient(cfg.TMDBBaseURL, cfg.TMDBToken, o.doer, metadata.WithLogger(log)), cfg.MetadataCacheSize)
	fopts := []flixhq.Option{flixhq.WithLogger(log), flixhq.WithOverrides(a.Overrides)}
	if a.Events != nil {
		fopts = append(fopts, flixhq.WithEvents(a.Events))
	}
	fx := flixhq.New(flixhq.NewClient(cfg.FlixHqURL, o.doer, log, cfg.SearchCacheSize), meta, providers, fopts...)

	reg, err := source.NewRegistry(fx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sources = reg
	return a, nil
}

func newProviders(ctx context.Context, cfg config.Config, doer httpx.Doer, log *zap.Logger) (*provider.Registry, error) {
	reg := provider.NewRegistry()

	script, err := rabbitstream.LoadScript(ctx, doer, cfg.ScriptPath, cfg.ScriptURL, cfg.ScriptMD5)
	if err != nil {
		log.Error("rabbitstream disabled: payload script unavailable", zap.String("path", cfg.ScriptPath), zap.Error(err))
		if err := reg.Disable(rabbitstreamServer); err != nil {
			return nil, err
		}
	} else {
		p := rabbitstream.New(doer, rabbitstream.NewScriptDeriver(cfg.NodeBin, script),
			rabbitstream.WithBaseURL(cfg.RabbitstreamURL),
			rabbitstream.WithKeyCacheSize(cfg.KeyCacheSize),
			rabbitstream.WithLogger(log),
		)
		if err := reg.Register(rabbitstreamServer, p); err != nil {
			return nil, err
		}
	}

	for _, name := range disabledServers {
		if err := reg.Disable(name); err != nil {
			return nil, err
		}
	}
	log.Info("providers ready", zap.Strings("enabled", reg.Enabled()))
	return reg, nil
}

// Ready reports whether optional infrastructure is reachable.
func (a *App) Ready() error {
	if a.pool != nil {
		if err := a.pool.Ping(context.Background()); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.nc != nil && !a.nc.IsConnected() {
		return fmt.Errorf("nats: %s", a.nc.Status())
	}
	return nil
}

// Close releases infrastructure connections.
func (a *App) Close() {
	a.Events.Flush(2 * time.Second)
	if a.nc != nil {
		_ = a.nc.Drain()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
