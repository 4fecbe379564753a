package flixhq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type fakeDetails struct {
	mu    sync.Mutex
	pages map[string]Detail
	errs  map[string]error
	calls int
}

func (f *fakeDetails) Detail(_ context.Context, u string) (Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[u]; err != nil {
		return Detail{}, err
	}
	return f.pages[u], nil
}

func newTestMatcher(d DetailFetcher) *Matcher {
	m := NewMatcher(d, nil)
	m.now = func() time.Time { return fixedNow }
	return m
}

func movieMeta() media.Metadata {
	return media.Metadata{
		Title:           "X",
		Kind:            media.KindMovie,
		DurationMinutes: 139,
		ReleaseDate:     "2012-05-04",
		Genres:          []string{"Action", "Adventure"},
	}
}

func movieCand(url string, year, duration int) media.Candidate {
	return media.Candidate{Title: "X", DetailURL: url, Kind: media.KindMovie, Year: year, DurationMinutes: duration}
}

// ─── Filter ──────────────────────────────────────────────────────────────────

func TestFilter_Movie(t *testing.T) {
	tests := []struct {
		name string
		cand media.Candidate
		keep bool
	}{
		{"exact", movieCand("/movie/x-1", 2012, 139), true},
		{"unknown duration", movieCand("/movie/x-2", 2012, media.UnknownCount), true},
		{"wrong duration", movieCand("/movie/x-3", 2012, 120), false},
		{"wrong year", movieCand("/movie/x-4", 2011, 139), false},
		{"wrong kind", media.Candidate{Title: "X", Kind: media.KindSeries, DurationMinutes: media.UnknownCount}, false},
		{"title is case sensitive", media.Candidate{Title: "x", Kind: media.KindMovie, Year: 2012, DurationMinutes: 139}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter([]media.Candidate{tt.cand}, movieMeta(), fixedNow)
			if (len(got) == 1) != tt.keep {
				t.Fatalf("expected keep=%v, got %v", tt.keep, got)
			}
		})
	}
}

func TestFilter_MovieWithoutReleaseYearSkipsYearCheck(t *testing.T) {
	meta := movieMeta()
	meta.ReleaseDate = ""
	if got := Filter([]media.Candidate{movieCand("/movie/x-1", 1999, 139)}, meta, fixedNow); len(got) != 1 {
		t.Fatalf("expected candidate to survive, got %v", got)
	}
}

func TestFilter_Series(t *testing.T) {
	ended := media.Metadata{
		Title: "Show", Kind: media.KindSeries, DurationMinutes: 47,
		SeasonCount: 5, LastSeasonEpisodeCount: 16, LastAirDate: "2013-09-29",
	}
	airing := ended
	airing.LastAirDate = "2026-03-01"

	cand := func(seasons, episodes int) media.Candidate {
		return media.Candidate{Title: "Show", Kind: media.KindSeries, DurationMinutes: media.UnknownCount,
			SeasonCount: seasons, LastSeasonEpisodeCount: episodes}
	}
	tests := []struct {
		name string
		meta media.Metadata
		cand media.Candidate
		keep bool
	}{
		{"ended exact", ended, cand(5, 16), true},
		{"ended unknown counts", ended, cand(media.UnknownCount, media.UnknownCount), true},
		{"ended wrong seasons", ended, cand(4, 16), false},
		{"ended wrong episodes", ended, cand(5, 10), false},
		{"airing ignores counts", airing, cand(4, 10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter([]media.Candidate{tt.cand}, tt.meta, fixedNow)
			if (len(got) == 1) != tt.keep {
				t.Fatalf("expected keep=%v, got %v", tt.keep, got)
			}
		})
	}
}

// ─── MatchBest ───────────────────────────────────────────────────────────────

func TestMatchBest_SingleCandidateSkipsDetails(t *testing.T) {
	d := &fakeDetails{}
	id, ok := newTestMatcher(d).MatchBest(context.Background(), []media.Candidate{
		movieCand("https://flixhq.test/movie/watch-x-19722", 2012, 139),
		movieCand("https://flixhq.test/movie/watch-x-1", 1999, 139),
	}, movieMeta())
	if !ok || id != "19722" {
		t.Fatalf("expected 19722, got %q %v", id, ok)
	}
	if d.calls != 0 {
		t.Fatalf("expected no detail fetches, got %d", d.calls)
	}
}

func TestMatchBest_NoCandidates(t *testing.T) {
	if _, ok := newTestMatcher(&fakeDetails{}).MatchBest(context.Background(), []media.Candidate{
		movieCand("/movie/x-1", 2000, 139),
	}, movieMeta()); ok {
		t.Fatal("expected no match")
	}
}

func TestMatchBest_Disambiguates(t *testing.T) {
	cands := []media.Candidate{
		movieCand("/movie/watch-x-100", 2012, 139),
		movieCand("/movie/watch-x-200", 2012, 139),
		movieCand("/movie/watch-x-300", 2012, 139),
		movieCand("/movie/watch-x-400", 2012, media.UnknownCount),
	}
	d := &fakeDetails{
		pages: map[string]Detail{
			"/movie/watch-x-100": {ReleaseDate: "2012-06-01", Genres: []string{"Action"}},
			"/movie/watch-x-300": {ReleaseDate: "2012-05-04", Genres: []string{"Drama"}},
			"/movie/watch-x-400": {ReleaseDate: "2012-05-04", Genres: []string{"Drama", "Adventure"}},
		},
		errs: map[string]error{"/movie/watch-x-200": errors.New("boom")},
	}
	m := newTestMatcher(d)

	for i := 0; i < 3; i++ {
		id, ok := m.MatchBest(context.Background(), cands, movieMeta())
		if !ok || id != "400" {
			t.Fatalf("run %d: expected 400, got %q %v", i, id, ok)
		}
	}
	if d.calls != 12 {
		t.Fatalf("expected 4 detail fetches per run, got %d", d.calls)
	}
}

func TestDetailMatches_Genres(t *testing.T) {
	meta := movieMeta()
	if detailMatches(Detail{ReleaseDate: meta.ReleaseDate}, meta) {
		t.Fatal("expected page without genres to be rejected when metadata has genres")
	}
	meta.Genres = nil
	if !detailMatches(Detail{ReleaseDate: meta.ReleaseDate}, meta) {
		t.Fatal("expected page without genres to match metadata without genres")
	}
	if detailMatches(Detail{Genres: []string{"Action"}}, movieMeta()) {
		t.Fatal("expected missing release date to be rejected")
	}
}
