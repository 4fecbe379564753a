package flixhq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/mcat-providers/internal/platform/analytics"
	"github.com/example/mcat-providers/services/resolver/internal/media"
	"github.com/example/mcat-providers/services/resolver/internal/overrides"
	"github.com/example/mcat-providers/services/resolver/internal/provider"
	"github.com/example/mcat-providers/services/resolver/internal/source"
)

// Name is the display name of the source. Its lowercase form is the
// registry and override key.
const (
	Name = "FlixHq"
	Key  = "flixhq"
)

// MetadataResolver resolves catalog metadata for a reference.
type MetadataResolver interface {
	Resolve(ctx context.Context, ref media.Ref) (media.Metadata, error)
}

// OverrideLookup reads operator-curated internal ids.
type OverrideLookup interface {
	Get(ctx context.Context, k overrides.Key) (overrides.Override, error)
}

// EventPublisher receives a fire-and-forget event per scrape.
type EventPublisher interface {
	Publish(subject, eventName, userID string, props map[string]any)
}

// Source scrapes FlixHq for every enabled provider.
type Source struct {
	client    *Client
	matcher   *Matcher
	metadata  MetadataResolver
	providers *provider.Registry
	overrides OverrideLookup
	events    EventPublisher
	log       *zap.Logger
}

var _ source.Source = (*Source)(nil)

// Option configures a Source.
type Option func(*Source)

func WithOverrides(o OverrideLookup) Option { return func(s *Source) { s.overrides = o } }

func WithEvents(e EventPublisher) Option { return func(s *Source) { s.events = e } }

func WithLogger(log *zap.Logger) Option { return func(s *Source) { s.log = log } }

func WithMatcher(m *Matcher) Option { return func(s *Source) { s.matcher = m } }

func New(client *Client, metadata MetadataResolver, providers *provider.Registry, opts ...Option) *Source {
	s := &Source{
		client:    client,
		metadata:  metadata,
		providers: providers,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.matcher == nil {
		s.matcher = NewMatcher(client, s.log)
	}
	return s
}

func (s *Source) Name() string { return Name }

type task struct {
	server   Server
	provider provider.Provider
	link     string
}

// ScrapeAll resolves ref to an internal id, walks season and episode for
// series, and resolves every enabled server. Providers that fail are
// absent from the result rather than failing the call.
func (s *Source) ScrapeAll(ctx context.Context, ref media.Ref) (*media.AggregatedResult, error) {
	start := time.Now()
	if ref.Kind != media.KindMovie && ref.Kind != media.KindSeries {
		return nil, fmt.Errorf("%w: unsupported media kind %q", media.ErrValidation, ref.Kind)
	}
	log := s.log.With(zap.String("catalog_id", ref.CatalogID), zap.String("kind", string(ref.Kind)))

	titleID, err := s.resolveTitle(ctx, ref, log)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("internal_id", titleID))

	targetID := titleID
	if ref.Kind == media.KindSeries {
		if targetID, err = s.resolveEpisode(ctx, titleID, ref, log); err != nil {
			return nil, err
		}
	}

	servers, err := s.client.ListServers(ctx, targetID, ref.Kind)
	if err != nil {
		return nil, err
	}
	tasks := s.selectServers(servers, log)
	if len(tasks) == 0 {
		log.Error("flixhq: no enabled servers", zap.Int("listed", len(servers)))
		return nil, fmt.Errorf("%w: no enabled servers for %s", media.ErrNotFound, targetID)
	}

	tasks = s.lookupLinks(ctx, tasks, log)
	if len(tasks) == 0 {
		log.Error("flixhq: no embed links")
		return nil, fmt.Errorf("%w: no embed links for %s", media.ErrNotFound, targetID)
	}

	result := &media.AggregatedResult{Source: Name, Providers: s.resolveAll(ctx, tasks)}
	ok := len(result.Resolved())
	log.Info("flixhq: scrape finished",
		zap.Int("providers_ok", ok),
		zap.Int("providers_total", len(tasks)),
		zap.Duration("took", time.Since(start)),
	)
	if s.events != nil {
		s.events.Publish(analytics.SubjectResolverSourcesResolved, "sources_resolved", "", map[string]any{
			"source":          Key,
			"catalog_id":      ref.CatalogID,
			"internal_id":     titleID,
			"kind":            string(ref.Kind),
			"providers_ok":    ok,
			"providers_total": len(tasks),
		})
	}
	return result, nil
}

func (s *Source) resolveTitle(ctx context.Context, ref media.Ref, log *zap.Logger) (string, error) {
	if ref.InternalID != "" {
		return ref.InternalID, nil
	}
	if s.overrides != nil && ref.CatalogID != "" {
		o, err := s.overrides.Get(ctx, overrides.Key{Source: Key, Kind: ref.Kind, CatalogID: ref.CatalogID})
		switch {
		case err == nil:
			log.Debug("flixhq: using override", zap.String("internal_id", o.InternalID))
			return o.InternalID, nil
		case !errors.Is(err, overrides.ErrNotFound):
			log.Warn("flixhq: override lookup failed", zap.Error(err))
		}
	}

	meta, err := s.metadata.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	cands := s.client.Search(ctx, meta.Title)
	id, ok := s.matcher.MatchBest(ctx, cands, meta)
	if !ok {
		log.Error("flixhq: no matching title", zap.String("title", meta.Title), zap.Int("candidates", len(cands)))
		return "", fmt.Errorf("%w: no listing matches %q", media.ErrNotFound, meta.Title)
	}
	return id, nil
}

func (s *Source) resolveEpisode(ctx context.Context, titleID string, ref media.Ref, log *zap.Logger) (string, error) {
	seasons, err := s.client.ListSeasons(ctx, titleID)
	if err != nil {
		return "", err
	}
	seasonID, ok := seasons[ref.Season]
	if !ok {
		log.Error("flixhq: season does not exist", zap.String("season", ref.Season), zap.Strings("available", keysOf(seasons)))
		return "", fmt.Errorf("%w: season %s does not exist", media.ErrNotFound, ref.Season)
	}
	episodes, err := s.client.ListEpisodes(ctx, seasonID)
	if err != nil {
		return "", err
	}
	episodeID, ok := episodes[ref.Episode]
	if !ok {
		log.Error("flixhq: episode does not exist", zap.String("episode", ref.Episode), zap.Strings("available", keysOf(episodes)))
		return "", fmt.Errorf("%w: episode %s does not exist", media.ErrNotFound, ref.Episode)
	}
	return episodeID, nil
}

// selectServers keeps servers with an enabled provider. Disabled servers are
// dropped quietly and unknown ones with a warning.
func (s *Source) selectServers(servers []Server, log *zap.Logger) []task {
	out := make([]task, 0, len(servers))
	for _, srv := range servers {
		p, state := s.providers.Lookup(srv.Name)
		switch state {
		case provider.Enabled:
			out = append(out, task{server: srv, provider: p})
		case provider.Unknown:
			log.Warn("flixhq: unknown server", zap.String("server", srv.Name))
		}
	}
	return out
}

// lookupLinks fetches embed links concurrently and drops servers without one.
func (s *Source) lookupLinks(ctx context.Context, tasks []task, log *zap.Logger) []task {
	var g errgroup.Group
	for i := range tasks {
		g.Go(func() error {
			link, err := s.client.Link(ctx, tasks[i].server.ID)
			if err != nil {
				log.Warn("flixhq: link lookup failed", zap.String("server", tasks[i].server.Name), zap.Error(err))
				return nil
			}
			tasks[i].link = link
			return nil
		})
	}
	_ = g.Wait()

	out := tasks[:0]
	for _, t := range tasks {
		if t.link != "" {
			out = append(out, t)
		}
	}
	return out
}

// resolveAll runs every provider and waits for all of them.
func (s *Source) resolveAll(ctx context.Context, tasks []task) []*media.ProviderResult {
	results := make([]*media.ProviderResult, len(tasks))
	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			results[i] = t.provider.Resolve(ctx, t.link)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
