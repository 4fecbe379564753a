// Package rewriter points every URI of an HLS playlist back at the proxy,
// re-signed for the same user, expiry and upstream headers.
package rewriter

import (
	"net/url"
	"strings"
	"time"

	"github.com/example/mcat-providers/internal/platform/signing"
)

// Rewriter signs playlist URIs for one proxied request.
type Rewriter struct {
	Signer    *signing.Signer
	ProxyBase string
	UID       string
	Exp       time.Time
	Headers   map[string]string
}

// IsPlaylist reports whether contentType or the url path names an HLS playlist.
func IsPlaylist(contentType, rawURL string) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "mpegurl") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".m3u8")
}

// Rewrite returns body with segment lines and URI="..." attributes replaced
// by signed proxy urls. baseURL resolves relative references.
func (rw Rewriter) Rewrite(body, baseURL string) string {
	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			// EXT-X-KEY, EXT-X-MEDIA and EXT-X-I-FRAME-STREAM-INF carry URIs in tags
			if strings.Contains(trim, "URI=\"") {
				line = rw.rewriteURITag(line, baseURL)
			}
			out = append(out, line)
			continue
		}
		out = append(out, rw.proxyURL(resolveURL(baseURL, trim)))
	}
	return strings.Join(out, "\n")
}

func (rw Rewriter) proxyURL(target string) string {
	signed := rw.Signer.SignWithHeaders(target, rw.UID, rw.Exp, rw.Headers)
	u, err := signing.BuildSignedURL(rw.ProxyBase, signed)
	if err != nil {
		return target
	}
	return u
}

func (rw Rewriter) rewriteURITag(line, baseURL string) string {
	start := strings.Index(line, "URI=\"")
	if start == -1 {
		return line
	}
	start += len("URI=\"")
	end := strings.Index(line[start:], "\"")
	if end == -1 {
		return line
	}
	uri := line[start : start+end]
	return line[:start] + rw.proxyURL(resolveURL(baseURL, uri)) + line[start+end:]
}

func resolveURL(baseURL, ref string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
