package handlers

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/mcat-providers/internal/platform/signing"
	"github.com/example/mcat-providers/services/resolver/internal/media"
)

// StreamProxy rewrites stream urls into signed hls-proxy urls that carry
// the headers the upstream expects.
type StreamProxy struct {
	Signer  *signing.Signer
	BaseURL string
	TTL     time.Duration

	now func() time.Time
}

// NewStreamProxy returns nil when secret or base url is missing, which
// disables proxying.
func NewStreamProxy(secret, baseURL string, ttl time.Duration) *StreamProxy {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(baseURL) == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &StreamProxy{Signer: signing.New(secret), BaseURL: baseURL, TTL: ttl, now: time.Now}
}

// Rewrite returns a copy of res whose stream urls point at the proxy.
// The input is left untouched.
func (p *StreamProxy) Rewrite(res *media.AggregatedResult, uid string) (*media.AggregatedResult, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	exp := now().Add(p.TTL)

	out := &media.AggregatedResult{Source: res.Source, Providers: make([]*media.ProviderResult, 0, len(res.Providers))}
	for _, pr := range res.Providers {
		if pr == nil {
			continue
		}
		streams := make([]media.StreamVariant, len(pr.Streams))
		for i, s := range pr.Streams {
			hdrs, err := s.Headers.Headers()
			if err != nil {
				return nil, fmt.Errorf("%s stream headers: %w", pr.Provider, err)
			}
			signed, err := signing.BuildSignedURL(p.BaseURL, p.Signer.SignWithHeaders(s.URL, uid, exp, hdrs))
			if err != nil {
				return nil, fmt.Errorf("%w: proxy base url: %w", media.ErrConfiguration, err)
			}
			s.URL = signed
			streams[i] = s
		}
		out.Providers = append(out.Providers, &media.ProviderResult{
			Provider:  pr.Provider,
			Streams:   streams,
			Subtitles: pr.Subtitles,
		})
	}
	return out, nil
}
