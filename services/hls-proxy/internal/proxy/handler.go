// Package proxy serves signed upstream HLS resources, replaying the headers
// carried in the signature and rewriting playlists to stay on the proxy.
package proxy

import (
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/mcat-providers/internal/platform/analytics"
	"github.com/example/mcat-providers/internal/platform/signing"
	"github.com/example/mcat-providers/services/hls-proxy/internal/rewriter"
)

const maxPlaylistBytes = 4 << 20

// EventPublisher receives one event per served playlist.
type EventPublisher interface {
	Publish(subject, eventName, userID string, props map[string]any)
}

type Handler struct {
	Signer *signing.Signer
	Client *http.Client
	// PublicBase is the externally visible proxy endpoint. Derived from the
	// request when empty.
	PublicBase string
	Events     EventPublisher
	Log        *zap.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
	w.Header().Set("Access-Control-Max-Age", "3600")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	q := r.URL.Query()
	rawURL, uid, exp, sig, err := signing.ExtractSigned(q)
	if err != nil || !h.Signer.VerifyWithHeaders(rawURL, uid, exp, strings.TrimSpace(q.Get("hdr")), sig) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	hdrs := signing.ExtractHeaders(q)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Header.Set("Accept", "*/*")
	for k, v := range hdrs {
		req.Header.Set(k, v)
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		h.log().Warn("upstream request failed", zap.String("url", rawURL), zap.Error(err))
		http.Error(w, "upstream", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 300 && rewriter.IsPlaylist(contentType, rawURL) {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
		if err != nil {
			http.Error(w, "upstream", http.StatusBadGateway)
			return
		}
		rw := rewriter.Rewriter{
			Signer:    h.Signer,
			ProxyBase: h.proxyBase(r),
			UID:       uid,
			Exp:       time.Unix(exp, 0),
			Headers:   hdrs,
		}
		body := rw.Rewrite(string(data), rawURL)
		if contentType == "" {
			contentType = "application/vnd.apple.mpegurl"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(body))
		if h.Events != nil {
			h.Events.Publish(analytics.SubjectResolverProxyServed, "proxy_served", uid, map[string]any{
				"url":    rawURL,
				"status": resp.StatusCode,
			})
		}
		return
	}

	for _, k := range []string{"Content-Type", "Content-Length", "Content-Range", "Accept-Ranges", "Cache-Control"} {
		if v := resp.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (h *Handler) proxyBase(r *http.Request) string {
	if h.PublicBase != "" {
		return h.PublicBase
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func (h *Handler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
