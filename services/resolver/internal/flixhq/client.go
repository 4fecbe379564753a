// Package flixhq implements the FlixHq listing site: search, title
// matching, season/episode/server lookup and provider fan-out.
package flixhq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/mcat-providers/services/resolver/internal/httpx"
	"github.com/example/mcat-providers/services/resolver/internal/media"
	"github.com/example/mcat-providers/services/resolver/internal/memo"
)

const (
	DefaultBaseURL    = "https://flixhq.to"
	DefaultSearchSize = 128
	searchPages       = 3
)

// Client talks to the listing site.
type Client struct {
	base   string
	doer   httpx.Doer
	log    *zap.Logger
	search *memo.Cache[string, []media.Candidate]
}

func NewClient(base string, doer httpx.Doer, log *zap.Logger, searchCacheSize int) *Client {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	if searchCacheSize <= 0 {
		searchCacheSize = DefaultSearchSize
	}
	return &Client{base: base, doer: doer, log: log, search: memo.New[string, []media.Candidate](searchCacheSize)}
}

func (c *Client) BaseURL() string { return c.base }

func (c *Client) headers(ajax bool) map[string]string {
	h := map[string]string{
		media.HeaderUserAgent: httpx.DefaultUserAgent,
		media.HeaderReferer:   c.base + "/",
	}
	if ajax {
		h["X-Requested-With"] = "XMLHttpRequest"
	}
	return h
}

func (c *Client) get(ctx context.Context, path string, ajax bool, q url.Values) (*httpx.Response, error) {
	return httpx.Get(ctx, c.doer, c.base+path, c.headers(ajax), q)
}

// Slug turns a title into the search path segment.
func Slug(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "-")
}

// Search fetches the first three result pages concurrently and returns
// their candidates in page order. A failing page contributes nothing.
// Results are cached per slug when at least one page succeeded.
func (c *Client) Search(ctx context.Context, title string) []media.Candidate {
	slug := Slug(title)
	if slug == "" {
		return nil
	}
	if cached, ok := c.search.Get(slug); ok {
		return cached
	}

	pages := make([][]media.Candidate, searchPages)
	okPages := make([]bool, searchPages)
	var g errgroup.Group
	for i := range pages {
		g.Go(func() error {
			page := i + 1
			resp, err := c.get(ctx, "/search/"+url.PathEscape(slug), false, url.Values{"page": {strconv.Itoa(page)}})
			if err != nil {
				c.log.Warn("flixhq: search page failed", zap.String("slug", slug), zap.Int("page", page), zap.Error(err))
				return nil
			}
			cands, skipped, err := ParseListing(c.base, resp.Body)
			if err != nil {
				c.log.Warn("flixhq: search page unparsable", zap.Int("page", page), zap.Error(err))
				return nil
			}
			for _, s := range skipped {
				c.log.Warn("flixhq: skipping listing entry", zap.Int("page", page), zap.String("reason", s.Error()))
			}
			pages[i], okPages[i] = cands, true
			return nil
		})
	}
	_ = g.Wait()

	var out []media.Candidate
	anyOK := false
	for i, p := range pages {
		anyOK = anyOK || okPages[i]
		out = append(out, p...)
	}
	if anyOK {
		c.search.Add(slug, out)
	}
	return out
}

// Detail fetches and parses a title page.
func (c *Client) Detail(ctx context.Context, detailURL string) (Detail, error) {
	resp, err := httpx.Get(ctx, c.doer, detailURL, c.headers(false), nil)
	if err != nil {
		return Detail{}, err
	}
	return ParseDetail(resp.Body)
}

// ListSeasons maps season numbers to season ids for a title.
func (c *Client) ListSeasons(ctx context.Context, titleID string) (map[string]string, error) {
	resp, err := c.get(ctx, "/ajax/season/list/"+url.PathEscape(titleID), true, nil)
	if err != nil {
		return nil, err
	}
	return ParseSeasons(resp.Body)
}

// ListEpisodes maps 1-based episode numbers to episode ids for a season.
func (c *Client) ListEpisodes(ctx context.Context, seasonID string) (map[string]string, error) {
	resp, err := c.get(ctx, "/ajax/season/episodes/"+url.PathEscape(seasonID), true, nil)
	if err != nil {
		return nil, err
	}
	return ParseEpisodes(resp.Body)
}

// ListServers returns the servers of a movie title or a series episode.
func (c *Client) ListServers(ctx context.Context, id string, kind media.Kind) ([]Server, error) {
	path := "/ajax/episode/servers/"
	if kind == media.KindMovie {
		path = "/ajax/episode/list/"
	}
	resp, err := c.get(ctx, path+url.PathEscape(id), true, nil)
	if err != nil {
		return nil, err
	}
	return ParseServers(resp.Body)
}

// Link returns the embed link for a server id, or "" when the site has none.
func (c *Client) Link(ctx context.Context, serverID string) (string, error) {
	resp, err := c.get(ctx, "/ajax/episode/sources/"+url.PathEscape(serverID), true, nil)
	if err != nil {
		return "", err
	}
	var body struct {
		Type string `json:"type"`
		Link string `json:"link"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return "", fmt.Errorf("%w: sources body: %w", media.ErrValidation, err)
	}
	return strings.TrimSpace(body.Link), nil
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, errA := strconv.Atoi(out[i])
		b, errB := strconv.Atoi(out[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}
