package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/mcat-providers/internal/platform/signing"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEvents) Publish(subject, eventName, userID string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, subject+"|"+eventName+"|"+userID)
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://rabbitstream.net" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/v/index.m3u8":
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-KEY:METHOD=AES-128,URI=\"key.bin\"\nseg0.ts\n#EXT-X-ENDLIST"))
		case "/v/seg0.ts":
			w.Header().Set("Content-Type", "video/mp2t")
			_, _ = w.Write([]byte("segment-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signedPath(t *testing.T, s *signing.Signer, target string, hdrs map[string]string) string {
	t.Helper()
	u, err := signing.BuildSignedURL("/hls", s.SignWithHeaders(target, "user-1", time.Now().Add(time.Hour), hdrs))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return u
}

var streamHeaders = map[string]string{"Referer": "https://rabbitstream.net", "Origin": "https://rabbitstream.net"}

func TestHandler_RewritesPlaylist(t *testing.T) {
	up := newUpstream(t)
	events := &recordingEvents{}
	h := &Handler{Signer: signing.New("secret"), Client: up.Client(), PublicBase: "https://proxy.test/hls", Events: events}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, signedPath(t, h.Signer, up.URL+"/v/index.m3u8", streamHeaders), nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	lines := strings.Split(rr.Body.String(), "\n")
	if !strings.Contains(lines[1], `URI="https://proxy.test/hls?`) {
		t.Fatalf("expected key uri to be proxied: %q", lines[1])
	}
	seg, err := url.Parse(lines[2])
	if err != nil {
		t.Fatalf("parse segment: %v", err)
	}
	if seg.Query().Get("url") != up.URL+"/v/seg0.ts" {
		t.Fatalf("unexpected segment target: %q", seg.Query().Get("url"))
	}
	if len(events.events) != 1 || !strings.HasSuffix(events.events[0], "|proxy_served|user-1") {
		t.Fatalf("expected one proxy_served event, got %v", events.events)
	}

	// The rewritten segment url must itself be accepted by the proxy.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/hls?"+seg.RawQuery, nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "segment-bytes" {
		t.Fatalf("expected segment passthrough, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestHandler_RejectsTamperedHeaders(t *testing.T) {
	up := newUpstream(t)
	h := &Handler{Signer: signing.New("secret"), Client: up.Client()}

	p := signedPath(t, h.Signer, up.URL+"/v/seg0.ts", streamHeaders)
	u, _ := url.Parse(p)
	q := u.Query()
	q.Set("hdr", signing.EncodeHeaders(map[string]string{"Referer": "https://evil.test"}))
	u.RawQuery = q.Encode()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, u.String(), nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestHandler_MissingSignature(t *testing.T) {
	h := &Handler{Signer: signing.New("secret")}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/hls?url=https://cdn.test/x.ts", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestHandler_Preflight(t *testing.T) {
	h := &Handler{Signer: signing.New("secret")}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/hls", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS header")
	}
}

func TestProxyBase_FromRequest(t *testing.T) {
	h := &Handler{}
	r := httptest.NewRequest(http.MethodGet, "http://proxy.local/hls?x=1", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	if got := h.proxyBase(r); got != "https://proxy.local/hls" {
		t.Fatalf("expected https://proxy.local/hls, got %q", got)
	}
}
