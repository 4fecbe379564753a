// Package manifest parses HLS variant playlists into stream variants.
package manifest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

// Ext is the file extension reported for every parsed variant.
const Ext = ".m3u8"

var (
	bandwidthRe  = regexp.MustCompile(`(?:^|[:,])BANDWIDTH=(\d+)`)
	resolutionRe = regexp.MustCompile(`RESOLUTION=(\d+x\d+)`)
	codecsRe     = regexp.MustCompile(`CODECS=["']([^"']+)`)
	uriRe        = regexp.MustCompile(`URI=["']([^"']+)`)
)

type attrs struct {
	bandwidth  int64
	resolution string
	codecs     string
}

func (a *attrs) merge(line string) (uri string, found bool) {
	if m := bandwidthRe.FindStringSubmatch(line); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			a.bandwidth = n
			found = true
		}
	}
	if m := resolutionRe.FindStringSubmatch(line); m != nil {
		a.resolution = m[1]
		found = true
	}
	if m := codecsRe.FindStringSubmatch(line); m != nil {
		a.codecs = m[1]
		found = true
	}
	if m := uriRe.FindStringSubmatch(line); m != nil {
		uri = m[1]
		found = true
	}
	return uri, found
}

// Parse scans text line by line. A line carrying URI="..." is a complete
// variant on its own. A line carrying BANDWIDTH, RESOLUTION or CODECS without
// a URI is completed by the next URL line. URL lines with no pending
// attributes are skipped.
func Parse(provider string, headers media.HeaderSet, baseURL, text string) ([]media.StreamVariant, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty manifest", media.ErrValidation)
	}

	var (
		out       []media.StreamVariant
		pending   attrs
		expectURL bool
	)
	emit := func(a attrs, u string) {
		q := media.QualityUnknown
		if a.resolution != "" {
			q = media.ParseQuality(a.resolution)
		}
		out = append(out, media.StreamVariant{
			Provider:   provider,
			Headers:    headers,
			URL:        u,
			Ext:        Ext,
			Quality:    q,
			Resolution: a.resolution,
			Codec:      a.codecs,
			Bandwidth:  a.bandwidth,
		})
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if expectURL {
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			emit(pending, Resolve(baseURL, line))
			pending = attrs{}
			expectURL = false
			continue
		}
		uri, found := pending.merge(line)
		if uri != "" {
			emit(pending, Resolve(baseURL, uri))
			pending = attrs{}
			continue
		}
		if found {
			expectURL = true
		}
	}
	return out, nil
}

// Resolve joins ref onto base unless ref is already absolute.
func Resolve(base, ref string) string {
	if strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return strings.TrimRight(base, "/") + ref
}

// BaseOf returns playlistURL up to, not including, its last "/".
func BaseOf(playlistURL string) string {
	if i := strings.LastIndex(playlistURL, "/"); i >= 0 {
		return playlistURL[:i]
	}
	return ""
}
