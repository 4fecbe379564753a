// Package rabbitstream resolves rabbitstream embed links into HLS variants
// and subtitle tracks.
package rabbitstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/mcat-providers/services/resolver/internal/crypt"
	"github.com/example/mcat-providers/services/resolver/internal/httpx"
	"github.com/example/mcat-providers/services/resolver/internal/manifest"
	"github.com/example/mcat-providers/services/resolver/internal/media"
	"github.com/example/mcat-providers/services/resolver/internal/memo"
	"github.com/example/mcat-providers/services/resolver/internal/provider"
)

const (
	Name            = "Rabbitstream"
	DefaultBaseURL  = "https://rabbitstream.net"
	ListingReferer  = "https://flixhq.to/"
	DefaultKeyCache = 512
	maxAttempts     = 3

	embedPath   = "/v2/embed-4/"
	sourcesPath = "/ajax/v2/embed-4/getSources"
	assetPath   = "/images/loading.png?v=0.6"
)

var metaTag = regexp.MustCompile(`name="fyq"\s?content="(\w+)"`)

// Keys is the output of the key derivation step.
type Keys struct {
	Material  []int
	Version   string
	KID       string
	BrowserID string
}

// KeyDeriver produces source keys for a token from its session tag and the
// static asset.
type KeyDeriver interface {
	DeriveKeys(ctx context.Context, token, tag string, asset []byte) (Keys, error)
}

// Provider is the rabbitstream implementation of provider.Provider.
type Provider struct {
	baseURL string
	doer    httpx.Doer
	deriver KeyDeriver
	log     *zap.Logger

	asset memo.Once[[]byte]
	keys  *memo.Cache[string, Keys]
}

var _ provider.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			p.baseURL = u
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Provider) { p.log = log }
}

func WithKeyCacheSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.keys = memo.New[string, Keys](n)
		}
	}
}

func New(doer httpx.Doer, deriver KeyDeriver, opts ...Option) *Provider {
	p := &Provider{
		baseURL: DefaultBaseURL,
		doer:    doer,
		deriver: deriver,
		log:     zap.NewNop(),
		keys:    memo.New[string, Keys](DefaultKeyCache),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) Name() string { return Name }

// StreamHeaders are the headers a player must send to fetch the manifest
// and its segments.
func (p *Provider) StreamHeaders() media.HeaderSet {
	return media.NewHeaderSet(p.baseURL, p.baseURL, httpx.DefaultUserAgent)
}

func (p *Provider) clientHeaders() map[string]string {
	return map[string]string{
		media.HeaderUserAgent: httpx.DefaultUserAgent,
		media.HeaderReferer:   ListingReferer,
	}
}

// Resolve never fails; problems are logged and reported as nil.
func (p *Provider) Resolve(ctx context.Context, link string) *media.ProviderResult {
	token, err := TokenOf(link)
	if err != nil {
		p.log.Warn("rabbitstream: bad embed link", zap.String("link", link), zap.Error(err))
		return nil
	}
	log := p.log.With(zap.String("token", token))

	keys, err := p.getData(ctx, token)
	if err != nil {
		log.Warn("rabbitstream: key derivation failed", zap.Error(err))
		return nil
	}
	payload, err := p.getSources(ctx, token, keys)
	if err != nil {
		log.Warn("rabbitstream: sources lookup failed", zap.Error(err))
		return nil
	}
	playlist, err := payload.playlist(keys)
	if err != nil {
		log.Warn("rabbitstream: sources decode failed", zap.Error(err))
		return nil
	}
	streams, err := p.variants(ctx, playlist)
	if err != nil {
		log.Warn("rabbitstream: manifest failed", zap.String("playlist", playlist), zap.Error(err))
		return nil
	}
	log.Debug("rabbitstream: resolved", zap.Int("streams", len(streams)), zap.Int("tracks", len(payload.Tracks)))
	return media.NewProviderResult(Name, streams, payload.subtitles())
}

// TokenOf returns the trailing path segment of an embed link.
func TokenOf(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("%w: %w", media.ErrValidation, err)
	}
	token := path.Base(strings.TrimRight(u.Path, "/"))
	if token == "" || token == "." || token == "/" {
		return "", fmt.Errorf("%w: no token in %q", media.ErrValidation, link)
	}
	return token, nil
}

// getData derives keys for token, retrying validation failures up to three
// times without delay. Successful results are cached per token.
func (p *Provider) getData(ctx context.Context, token string) (Keys, error) {
	return p.keys.Do(ctx, token, func(ctx context.Context) (Keys, error) {
		var err error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			var k Keys
			k, err = p.deriveOnce(ctx, token)
			if err == nil {
				return k, nil
			}
			if !errors.Is(err, media.ErrValidation) || ctx.Err() != nil {
				return Keys{}, err
			}
			p.log.Debug("rabbitstream: retrying key derivation", zap.Int("attempt", attempt), zap.Error(err))
		}
		return Keys{}, fmt.Errorf("exhausted %d attempts: %w", maxAttempts, err)
	})
}

func (p *Provider) deriveOnce(ctx context.Context, token string) (Keys, error) {
	asset, err := p.asset.Do(ctx, p.fetchAsset)
	if err != nil {
		return Keys{}, err
	}
	tag, err := p.sessionTag(ctx, token)
	if err != nil {
		return Keys{}, err
	}
	k, err := p.deriver.DeriveKeys(ctx, token, tag, asset)
	if err != nil {
		return Keys{}, err
	}
	if len(k.Material) == 0 {
		return Keys{}, fmt.Errorf("%w: deriver returned no keys", media.ErrValidation)
	}
	if _, err := parseVersion(k.Version); err != nil {
		return Keys{}, err
	}
	return k, nil
}

func (p *Provider) fetchAsset(ctx context.Context) ([]byte, error) {
	resp, err := httpx.Get(ctx, p.doer, p.baseURL+assetPath, p.clientHeaders(), nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: empty asset", media.ErrValidation)
	}
	return resp.Body, nil
}

func (p *Provider) sessionTag(ctx context.Context, token string) (string, error) {
	resp, err := httpx.Get(ctx, p.doer, p.baseURL+embedPath+url.PathEscape(token)+"?z=", p.clientHeaders(), nil)
	if err != nil {
		return "", err
	}
	m := metaTag.FindSubmatch(resp.Body)
	if m == nil {
		return "", fmt.Errorf("%w: session tag not found in embed page", media.ErrValidation)
	}
	return string(m[1]), nil
}

func parseVersion(v string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: key version %q: %w", media.ErrValidation, v, err)
	}
	return uint32(n), nil
}

type track struct {
	File  string `json:"file"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

type sourcesPayload struct {
	Sources json.RawMessage `json:"sources"`
	Tracks  []track         `json:"tracks"`
}

type playlistEntry struct {
	File string `json:"file"`
	Type string `json:"type"`
}

func (p *Provider) getSources(ctx context.Context, token string, k Keys) (*sourcesPayload, error) {
	h := p.clientHeaders()
	h["X-Requested-With"] = "XMLHttpRequest"
	q := url.Values{"id": {token}, "v": {k.Version}, "h": {k.KID}, "b": {k.BrowserID}}

	resp, err := httpx.Get(ctx, p.doer, p.baseURL+sourcesPath, h, q)
	if err != nil {
		return nil, err
	}
	var out sourcesPayload
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("%w: sources body: %w", media.ErrValidation, err)
	}
	if len(out.Sources) == 0 || string(out.Sources) == "null" {
		return nil, fmt.Errorf("%w: response has no sources", media.ErrValidation)
	}
	return &out, nil
}

// playlist returns the first playlist URL, decrypting the sources blob when
// it is served as a string.
func (s *sourcesPayload) playlist(k Keys) (string, error) {
	raw := []byte(s.Sources)
	var blob string
	if err := json.Unmarshal(raw, &blob); err == nil {
		version, err := parseVersion(k.Version)
		if err != nil {
			return "", err
		}
		secret := crypt.FormatKey(k.Material, version)
		plain, err := crypt.Decrypt(blob, []byte(secret))
		if err != nil {
			return "", err
		}
		if !strings.Contains(plain, "https://") {
			return "", fmt.Errorf("%w: decrypted sources carry no url", media.ErrValidation)
		}
		raw = []byte(plain)
	}

	var entries []playlistEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return "", fmt.Errorf("%w: sources list: %w", media.ErrValidation, err)
	}
	if len(entries) == 0 || entries[0].File == "" {
		return "", fmt.Errorf("%w: first source has no file", media.ErrValidation)
	}
	return entries[0].File, nil
}

func (s *sourcesPayload) subtitles() []media.Subtitle {
	out := make([]media.Subtitle, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		if t.File == "" || strings.EqualFold(t.Kind, "thumbnails") {
			continue
		}
		out = append(out, media.Subtitle{Language: t.Label, URL: t.File, Ext: extOf(t.File)})
	}
	return out
}

func extOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return path.Ext(u.Path)
	}
	return path.Ext(rawURL)
}

func (p *Provider) variants(ctx context.Context, playlist string) ([]media.StreamVariant, error) {
	headers := p.StreamHeaders()
	h, err := headers.Headers()
	if err != nil {
		return nil, err
	}
	resp, err := httpx.Get(ctx, p.doer, playlist, h, nil)
	if err != nil {
		return nil, err
	}
	streams, err := manifest.Parse(Name, headers, manifest.BaseOf(playlist), resp.Text())
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: manifest has no variants", media.ErrValidation)
	}
	return streams, nil
}
