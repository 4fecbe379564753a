package flixhq

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

// DetailFetcher loads title pages for disambiguation.
type DetailFetcher interface {
	Detail(ctx context.Context, detailURL string) (Detail, error)
}

// Matcher picks the listing candidate that corresponds to catalog metadata.
type Matcher struct {
	details DetailFetcher
	now     func() time.Time
	log     *zap.Logger
}

func NewMatcher(details DetailFetcher, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{details: details, now: time.Now, log: log}
}

func withinCount(got, want int) bool {
	return got == media.UnknownCount || got == want
}

// Filter applies the listing-level predicates in order: kind, duration,
// title, then release year for movies or season shape for series that
// stopped airing at least a calendar year ago.
func Filter(cands []media.Candidate, meta media.Metadata, now time.Time) []media.Candidate {
	releaseYear, hasRelease := meta.ReleaseYear()
	lastAir, hasLastAir := meta.LastAirYear()
	ended := hasLastAir && now.Year()-lastAir >= 1

	out := make([]media.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Kind != meta.Kind {
			continue
		}
		if !withinCount(c.DurationMinutes, meta.DurationMinutes) {
			continue
		}
		if c.Title != meta.Title {
			continue
		}
		switch meta.Kind {
		case media.KindMovie:
			if hasRelease && c.Year != releaseYear {
				continue
			}
		case media.KindSeries:
			if ended && (!withinCount(c.LastSeasonEpisodeCount, meta.LastSeasonEpisodeCount) ||
				!withinCount(c.SeasonCount, meta.SeasonCount)) {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// MatchBest returns the internal id of the first candidate that survives
// Filter and, when several do, detail-page disambiguation.
func (m *Matcher) MatchBest(ctx context.Context, cands []media.Candidate, meta media.Metadata) (string, bool) {
	kept := Filter(cands, meta, m.now())
	if len(kept) > 1 {
		kept = m.disambiguate(ctx, kept, meta)
	}
	if len(kept) == 0 {
		return "", false
	}
	return InternalIDOf(kept[0].DetailURL), true
}

func (m *Matcher) disambiguate(ctx context.Context, cands []media.Candidate, meta media.Metadata) []media.Candidate {
	keep := make([]bool, len(cands))
	var g errgroup.Group
	for i, c := range cands {
		g.Go(func() error {
			d, err := m.details.Detail(ctx, c.DetailURL)
			if err != nil {
				m.log.Warn("flixhq: detail page failed", zap.String("url", c.DetailURL), zap.Error(err))
				return nil
			}
			keep[i] = detailMatches(d, meta)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]media.Candidate, 0, len(cands))
	for i, c := range cands {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

// detailMatches requires the exact release date and at least one shared
// genre. A page without genres only matches metadata without genres.
func detailMatches(d Detail, meta media.Metadata) bool {
	if d.ReleaseDate == "" || d.ReleaseDate != meta.ReleaseDate {
		return false
	}
	if len(d.Genres) == 0 {
		return len(meta.Genres) == 0
	}
	for _, g := range d.Genres {
		if meta.HasGenre(g) {
			return true
		}
	}
	return false
}
