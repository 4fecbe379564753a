package media

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the broad class of a piece of media.
type Kind string

const (
	KindMovie   Kind = "Movie"
	KindSeries  Kind = "Series"
	KindAnime   Kind = "Anime"
	KindLive    Kind = "Live"
	KindUnknown Kind = "Unknown"
)

// ParseKind maps free-form type strings ("movie", "TV", "series", ...) to a Kind.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return KindUnknown
	case strings.Contains(s, "movie"):
		return KindMovie
	case strings.Contains(s, "tv"), strings.Contains(s, "series"):
		return KindSeries
	case strings.Contains(s, "anime"):
		return KindAnime
	case strings.Contains(s, "live"):
		return KindLive
	}
	return KindUnknown
}

func (k Kind) keyPrefix() (string, bool) {
	switch k {
	case KindMovie:
		return "M", true
	case KindSeries:
		return "S", true
	}
	return "", false
}

// Ref identifies the media a caller wants streams for.
type Ref struct {
	CatalogID  string
	InternalID string
	Kind       Kind
	Season     string
	Episode    string
}

// NewRef validates and normalizes a Ref. Season and episode default to "0".
func NewRef(catalogID, internalID string, kind Kind, season, episode string) (Ref, error) {
	ref := Ref{
		CatalogID:  strings.TrimSpace(catalogID),
		InternalID: strings.TrimSpace(internalID),
		Kind:       kind,
		Season:     normalizeNumber(season),
		Episode:    normalizeNumber(episode),
	}
	if ref.CatalogID == "" && ref.InternalID == "" {
		return Ref{}, fmt.Errorf("%w: catalog id or internal id is required", ErrValidation)
	}
	if ref.Kind == "" {
		ref.Kind = KindUnknown
	}
	return ref, nil
}

// normalizeNumber strips whitespace and leading zeros so "01" and "1" address the same season.
func normalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0"
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return strconv.Itoa(n)
	}
	return s
}

// CompositeKey is the catalog cache key: "M.<id>" for movies and
// "S.<id>.<season>.<episode>" for series.
func (r Ref) CompositeKey() (string, error) {
	prefix, ok := r.Kind.keyPrefix()
	if !ok {
		return "", fmt.Errorf("%w: unsupported media kind %q", ErrValidation, r.Kind)
	}
	if r.CatalogID == "" {
		return "", fmt.Errorf("%w: catalog id is required", ErrValidation)
	}
	key := prefix + "." + r.CatalogID
	if r.Kind == KindSeries {
		key += "." + r.Season + "." + r.Episode
	}
	return key, nil
}

// Metadata is the normalized catalog description of a title.
type Metadata struct {
	Title                  string   `json:"title"`
	Kind                   Kind     `json:"kind"`
	DurationMinutes        int      `json:"duration_minutes"`
	ReleaseDate            string   `json:"release_date"`
	Genres                 []string `json:"genres"`
	EpisodeCount           int      `json:"episode_count"`
	SeasonCount            int      `json:"season_count"`
	LastAirDate            string   `json:"last_air_date"`
	LastSeasonEpisodeCount int      `json:"last_season_episode_count"`
	Languages              []string `json:"languages"`
}

// ReleaseYear parses the year prefix of ReleaseDate.
func (m Metadata) ReleaseYear() (int, bool) {
	return yearOf(m.ReleaseDate)
}

// LastAirYear parses the year prefix of LastAirDate.
func (m Metadata) LastAirYear() (int, bool) {
	return yearOf(m.LastAirDate)
}

// HasGenre reports whether g is one of the metadata genres.
func (m Metadata) HasGenre(g string) bool {
	for _, have := range m.Genres {
		if have == g {
			return true
		}
	}
	return false
}

func yearOf(date string) (int, bool) {
	head, _, _ := strings.Cut(strings.TrimSpace(date), "-")
	y, err := strconv.Atoi(head)
	if err != nil || y <= 0 {
		return 0, false
	}
	return y, true
}

// UnknownCount marks a listing field the site did not report.
const UnknownCount = -1

// Candidate is one search hit on a listing site.
type Candidate struct {
	Title                  string
	DetailURL              string
	Kind                   Kind
	Year                   int
	DurationMinutes        int
	SeasonCount            int
	LastSeasonEpisodeCount int
}
