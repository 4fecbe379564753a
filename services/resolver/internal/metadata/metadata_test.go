package metadata

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/example/mcat-providers/services/resolver/internal/httpx"
	"github.com/example/mcat-providers/services/resolver/internal/media"
)

const movieJSON = `{
  "title": "The Avengers",
  "runtime": 143,
  "release_date": "2012-04-25",
  "genres": [{"id": 28, "name": "Action"}, {"id": 878, "name": "Science Fiction"}],
  "spoken_languages": [{"iso_639_1": "en"}, {"iso_639_1": "ru"}]
}`

const tvJSON = `{
  "name": "Breaking Bad",
  "episode_run_time": [47],
  "first_air_date": "2008-01-20",
  "last_air_date": "2013-09-29",
  "number_of_episodes": 62,
  "number_of_seasons": 5,
  "genres": [{"name": "Drama"}],
  "seasons": [{"season_number": 1, "episode_count": 7}, {"season_number": 5, "episode_count": 16}],
  "spoken_languages": [{"iso_639_1": "en"}]
}`

type fakeDoer struct {
	calls   atomic.Int32
	status  int
	body    string
	lastReq httpx.Request
}

func (f *fakeDoer) Do(_ context.Context, req httpx.Request) (*httpx.Response, error) {
	f.calls.Add(1)
	f.lastReq = req
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &httpx.Response{Status: status, Body: []byte(f.body)}, nil
}

func movieRef() media.Ref {
	return media.Ref{CatalogID: "24428", Kind: media.KindMovie, Season: "0", Episode: "0"}
}

// ─── TMDBClient ──────────────────────────────────────────────────────────────

func TestTMDBClient_FetchMovie(t *testing.T) {
	d := &fakeDoer{body: movieJSON}
	c := NewTMDBClient("https://tmdb.test/3/", "tok", d)

	m, err := c.Fetch(context.Background(), movieRef())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.lastReq.URL != "https://tmdb.test/3/movie/24428" {
		t.Fatalf("unexpected url: %q", d.lastReq.URL)
	}
	if d.lastReq.Header["Authorization"] != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", d.lastReq.Header["Authorization"])
	}
	if m.Title != "The Avengers" || m.DurationMinutes != 143 || m.ReleaseDate != "2012-04-25" {
		t.Fatalf("unexpected metadata: %+v", m)
	}
	if strings.Join(m.Genres, ",") != "Action,Science Fiction" {
		t.Fatalf("unexpected genres: %v", m.Genres)
	}
	if strings.Join(m.Languages, ",") != "en,ru" {
		t.Fatalf("unexpected languages: %v", m.Languages)
	}
	if m.LastAirDate != "2012-04-25" {
		t.Fatalf("expected last air date to default to release date, got %q", m.LastAirDate)
	}
}

func TestTMDBClient_FetchSeries(t *testing.T) {
	d := &fakeDoer{body: tvJSON}
	c := NewTMDBClient("https://tmdb.test/3", "tok", d)

	m, err := c.Fetch(context.Background(), media.Ref{CatalogID: "1396", Kind: media.KindSeries, Season: "1", Episode: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.lastReq.URL != "https://tmdb.test/3/tv/1396" {
		t.Fatalf("unexpected url: %q", d.lastReq.URL)
	}
	if m.Title != "Breaking Bad" || m.ReleaseDate != "2008-01-20" || m.LastAirDate != "2013-09-29" {
		t.Fatalf("unexpected metadata: %+v", m)
	}
	if m.SeasonCount != 5 || m.EpisodeCount != 62 || m.LastSeasonEpisodeCount != 16 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if m.DurationMinutes != 47 {
		t.Fatalf("expected episode runtime 47, got %d", m.DurationMinutes)
	}
}

func TestTMDBClient_MissingTokenIsConfigurationError(t *testing.T) {
	d := &fakeDoer{body: movieJSON}
	_, err := NewTMDBClient("", "  ", d).Fetch(context.Background(), movieRef())
	if !errors.Is(err, media.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if d.calls.Load() != 0 {
		t.Fatal("expected no upstream call without a token")
	}
}

func TestTMDBClient_UnsupportedKind(t *testing.T) {
	_, err := NewTMDBClient("", "tok", &fakeDoer{}).Fetch(context.Background(), media.Ref{CatalogID: "1", Kind: media.KindAnime})
	if !errors.Is(err, media.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTMDBClient_Non2xxIsUpstreamError(t *testing.T) {
	d := &fakeDoer{status: http.StatusUnauthorized, body: `{"status_message":"Invalid API key"}`}
	_, err := NewTMDBClient("", "tok", d).Fetch(context.Background(), movieRef())
	if !errors.Is(err, media.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestTMDBClient_BadJSONIsUpstreamError(t *testing.T) {
	_, err := NewTMDBClient("", "tok", &fakeDoer{body: "<html>"}).Fetch(context.Background(), movieRef())
	if !errors.Is(err, media.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

// ─── Resolver ────────────────────────────────────────────────────────────────

func TestResolver_MemoizesByCompositeKey(t *testing.T) {
	d := &fakeDoer{body: movieJSON}
	r := NewResolver(NewTMDBClient("", "tok", d), 0)

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), movieRef()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if d.calls.Load() != 1 {
		t.Fatalf("expected 1 upstream call, got %d", d.calls.Load())
	}
}

func TestResolver_SeriesEpisodesAreSeparateKeys(t *testing.T) {
	d := &fakeDoer{body: tvJSON}
	r := NewResolver(NewTMDBClient("", "tok", d), 0)

	ep1 := media.Ref{CatalogID: "1396", Kind: media.KindSeries, Season: "1", Episode: "1"}
	ep2 := ep1
	ep2.Episode = "2"
	_, _ = r.Resolve(context.Background(), ep1)
	_, _ = r.Resolve(context.Background(), ep1)
	_, _ = r.Resolve(context.Background(), ep2)
	if d.calls.Load() != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", d.calls.Load())
	}
}

func TestResolver_ErrorsAreNotCached(t *testing.T) {
	d := &fakeDoer{status: http.StatusBadGateway}
	r := NewResolver(NewTMDBClient("", "tok", d), 0)

	_, _ = r.Resolve(context.Background(), movieRef())
	_, _ = r.Resolve(context.Background(), movieRef())
	if d.calls.Load() != 2 {
		t.Fatalf("expected failed lookups to be retried, got %d calls", d.calls.Load())
	}
}

func TestResolver_UnsupportedKindSkipsUpstream(t *testing.T) {
	d := &fakeDoer{body: movieJSON}
	_, err := NewResolver(NewTMDBClient("", "tok", d), 0).Resolve(context.Background(), media.Ref{CatalogID: "1", Kind: media.KindLive})
	if !errors.Is(err, media.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if d.calls.Load() != 0 {
		t.Fatalf("expected no upstream call, got %d", d.calls.Load())
	}
}
