// Package metadata resolves catalog ids into normalized media attributes.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/example/mcat-providers/services/resolver/internal/httpx"
	"github.com/example/mcat-providers/services/resolver/internal/media"
)

const DefaultBaseURL = "https://api.themoviedb.org/3"

// Fetcher loads metadata for a reference from the catalog service.
type Fetcher interface {
	Fetch(ctx context.Context, ref media.Ref) (media.Metadata, error)
}

// TMDBClient is a bearer-token client for the TMDB v3 API.
type TMDBClient struct {
	baseURL string
	token   string
	doer    httpx.Doer
	log     *zap.Logger
}

var _ Fetcher = (*TMDBClient)(nil)

// Option configures a TMDBClient.
type Option func(*TMDBClient)

func WithLogger(log *zap.Logger) Option {
	return func(c *TMDBClient) { c.log = log }
}

// NewTMDBClient never fails; a missing token is reported per call.
func NewTMDBClient(baseURL, token string, doer httpx.Doer, opts ...Option) *TMDBClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &TMDBClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		doer:    doer,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tmdbDetails struct {
	Title          string `json:"title"`
	Name           string `json:"name"`
	Runtime        int    `json:"runtime"`
	EpisodeRunTime []int  `json:"episode_run_time"`
	ReleaseDate    string `json:"release_date"`
	FirstAirDate   string `json:"first_air_date"`
	LastAirDate    string `json:"last_air_date"`
	Genres         []struct {
		Name string `json:"name"`
	} `json:"genres"`
	NumberOfEpisodes int `json:"number_of_episodes"`
	NumberOfSeasons  int `json:"number_of_seasons"`
	Seasons          []struct {
		SeasonNumber int `json:"season_number"`
		EpisodeCount int `json:"episode_count"`
	} `json:"seasons"`
	SpokenLanguages []struct {
		ISO6391 string `json:"iso_639_1"`
	} `json:"spoken_languages"`
}

func (c *TMDBClient) Fetch(ctx context.Context, ref media.Ref) (media.Metadata, error) {
	if c.token == "" {
		return media.Metadata{}, fmt.Errorf("%w: TMDB_API_TOKEN is not set", media.ErrConfiguration)
	}
	var path string
	switch ref.Kind {
	case media.KindMovie:
		path = "/movie/"
	case media.KindSeries:
		path = "/tv/"
	default:
		return media.Metadata{}, fmt.Errorf("%w: unsupported media kind %q", media.ErrValidation, ref.Kind)
	}
	if ref.CatalogID == "" {
		return media.Metadata{}, fmt.Errorf("%w: catalog id is required", media.ErrValidation)
	}

	endpoint := c.baseURL + path + url.PathEscape(ref.CatalogID)
	resp, err := httpx.Get(ctx, c.doer, endpoint, map[string]string{
		"Authorization": "Bearer " + c.token,
		"Accept":        "application/json",
	}, nil)
	if err != nil {
		return media.Metadata{}, fmt.Errorf("tmdb %s: %w", ref.CatalogID, err)
	}
	var d tmdbDetails
	if err := json.Unmarshal(resp.Body, &d); err != nil {
		return media.Metadata{}, fmt.Errorf("%w: tmdb decode: %w", media.ErrUpstream, err)
	}
	m := d.normalize(ref.Kind)
	c.log.Debug("tmdb metadata", zap.String("catalog_id", ref.CatalogID), zap.String("title", m.Title))
	return m, nil
}

func (d tmdbDetails) normalize(kind media.Kind) media.Metadata {
	m := media.Metadata{
		Title:           firstNonEmpty(d.Title, d.Name),
		Kind:            kind,
		DurationMinutes: d.Runtime,
		ReleaseDate:     firstNonEmpty(d.ReleaseDate, d.FirstAirDate),
		EpisodeCount:    d.NumberOfEpisodes,
		SeasonCount:     d.NumberOfSeasons,
		LastAirDate:     d.LastAirDate,
		Genres:          make([]string, 0, len(d.Genres)),
		Languages:       make([]string, 0, len(d.SpokenLanguages)),
	}
	if m.DurationMinutes == 0 && len(d.EpisodeRunTime) > 0 {
		m.DurationMinutes = d.EpisodeRunTime[0]
	}
	if m.LastAirDate == "" {
		m.LastAirDate = m.ReleaseDate
	}
	if n := len(d.Seasons); n > 0 {
		m.LastSeasonEpisodeCount = d.Seasons[n-1].EpisodeCount
	}
	for _, g := range d.Genres {
		m.Genres = append(m.Genres, g.Name)
	}
	for _, l := range d.SpokenLanguages {
		m.Languages = append(m.Languages, l.ISO6391)
	}
	return m
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
