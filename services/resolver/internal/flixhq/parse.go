package flixhq

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

var (
	releasedDate = regexp.MustCompile(`(\d+-\d+-\d+)`)
	seasonLabel  = regexp.MustCompile(`Season\s+(\d+)`)
)

// Server is one entry of an episode or movie server list.
type Server struct {
	Name string
	ID   string
}

// Detail holds the fields of a title page used for disambiguation.
type Detail struct {
	ReleaseDate string
	Genres      []string
}

// EntryError describes a listing entry that could not be parsed.
type EntryError struct {
	Index  int
	Reason string
}

func (e EntryError) Error() string { return fmt.Sprintf("entry %d: %s", e.Index, e.Reason) }

func newDoc(html []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: html: %w", media.ErrValidation, err)
	}
	return doc, nil
}

// ParseListing extracts candidates from a search page. Malformed entries
// are skipped and reported in skipped.
func ParseListing(base string, html []byte) (out []media.Candidate, skipped []EntryError, err error) {
	doc, err := newDoc(html)
	if err != nil {
		return nil, nil, err
	}
	doc.Find("div.film-detail").Each(func(i int, s *goquery.Selection) {
		c, reason := parseEntry(base, s)
		if reason != "" {
			skipped = append(skipped, EntryError{Index: i, Reason: reason})
			return
		}
		out = append(out, c)
	})
	return out, skipped, nil
}

func parseEntry(base string, s *goquery.Selection) (media.Candidate, string) {
	a := s.Find("a[title]").First()
	title, _ := a.Attr("title")
	href, _ := a.Attr("href")
	typ := strings.TrimSpace(s.Find(".fdi-type").First().Text())
	if title == "" || href == "" || typ == "" {
		return media.Candidate{}, "missing title, link or type"
	}

	var items []string
	s.Find(".fdi-item").Each(func(_ int, it *goquery.Selection) {
		items = append(items, strings.TrimSpace(it.Text()))
	})
	if len(items) < 2 {
		return media.Candidate{}, fmt.Sprintf("expected 2 info fields, got %d", len(items))
	}

	c := media.Candidate{
		Title:     title,
		DetailURL: joinURL(base, href),
	}
	switch strings.ToLower(typ) {
	case "movie":
		year, err := strconv.Atoi(items[0])
		if err != nil {
			return media.Candidate{}, fmt.Sprintf("bad year %q", items[0])
		}
		duration, ok := parseDuration(items[1])
		if !ok {
			return media.Candidate{}, fmt.Sprintf("bad duration %q", items[1])
		}
		c.Kind = media.KindMovie
		c.Year = year
		c.DurationMinutes = duration
	case "tv":
		c.Kind = media.KindSeries
		c.DurationMinutes = media.UnknownCount
		c.SeasonCount = lastNumber(items[0])
		c.LastSeasonEpisodeCount = lastNumber(items[1])
	default:
		return media.Candidate{}, fmt.Sprintf("unknown type %q", typ)
	}
	return c, ""
}

func parseDuration(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "N/A" {
		return media.UnknownCount, true
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "m"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// lastNumber reads "SS 5" or "EPS 16" style fields; anything else is unknown.
func lastNumber(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return media.UnknownCount
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return media.UnknownCount
	}
	return n
}

// ParseDetail reads the release date and genre links of a title page.
func ParseDetail(html []byte) (Detail, error) {
	doc, err := newDoc(html)
	if err != nil {
		return Detail{}, err
	}
	var d Detail
	doc.Find("div.row-line").Each(func(_ int, s *goquery.Selection) {
		label := strings.TrimSpace(s.Find("span.type").First().Text())
		switch label {
		case "Released:":
			if m := releasedDate.FindString(s.Text()); m != "" {
				d.ReleaseDate = m
			}
		case "Genre:":
			s.Find(`a[href^="/genre/"]`).Each(func(_ int, a *goquery.Selection) {
				if g, ok := a.Attr("title"); ok && strings.TrimSpace(g) != "" {
					d.Genres = append(d.Genres, strings.TrimSpace(g))
				}
			})
		}
	})
	return d, nil
}

// ParseSeasons maps season numbers to season ids.
func ParseSeasons(html []byte) (map[string]string, error) {
	doc, err := newDoc(html)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	doc.Find("a[data-id]").Each(func(_ int, a *goquery.Selection) {
		id, _ := a.Attr("data-id")
		m := seasonLabel.FindStringSubmatch(a.Text())
		if id == "" || m == nil {
			return
		}
		n, _ := strconv.Atoi(m[1])
		out[strconv.Itoa(n)] = id
	})
	return out, nil
}

// ParseEpisodes numbers episode ids from 1 in document order.
func ParseEpisodes(html []byte) (map[string]string, error) {
	doc, err := newDoc(html)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	n := 0
	doc.Find("[data-id]").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr("data-id")
		if id == "" {
			return
		}
		n++
		out[strconv.Itoa(n)] = id
	})
	return out, nil
}

// ParseServers returns lowercase server names with their link ids, in
// page order.
func ParseServers(html []byte) ([]Server, error) {
	doc, err := newDoc(html)
	if err != nil {
		return nil, err
	}
	var out []Server
	doc.Find("a[title]").Each(func(_ int, a *goquery.Selection) {
		id, ok := a.Attr("data-linkid")
		if !ok {
			id, ok = a.Attr("data-id")
		}
		title, _ := a.Attr("title")
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(title), "Server ")))
		if !ok || id == "" || name == "" {
			return
		}
		out = append(out, Server{Name: name, ID: id})
	})
	return out, nil
}

// InternalIDOf returns the id suffix of a detail URL such as
// "/movie/watch-the-avengers-19722".
func InternalIDOf(detailURL string) string {
	detailURL = strings.TrimRight(detailURL, "/")
	if i := strings.LastIndex(detailURL, "-"); i >= 0 {
		return detailURL[i+1:]
	}
	if i := strings.LastIndex(detailURL, "/"); i >= 0 {
		return detailURL[i+1:]
	}
	return detailURL
}

func joinURL(base, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return strings.TrimRight(base, "/") + href
}
