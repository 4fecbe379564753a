package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/mcat-providers/internal/platform/api"
	"github.com/example/mcat-providers/internal/platform/auth"
	"github.com/example/mcat-providers/internal/platform/httpserver"
	"github.com/example/mcat-providers/services/resolver/internal/media"
	"github.com/example/mcat-providers/services/resolver/internal/source"
)

const anonymousUser = "anonymous"

// Sources handles GET /v1/sources/{source}?tmdb=&id=&kind=&season=&episode=&proxy=
func Sources(reg source.Registry, proxy *StreamProxy, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		name := strings.TrimSpace(chi.URLParam(r, "source"))
		src, ok := reg.Get(name)
		if !ok {
			api.NotFound(w, "UNKNOWN_SOURCE", "unknown source "+strconv.Quote(name), rid)
			return
		}

		q := r.URL.Query()
		ref, err := media.NewRef(q.Get("tmdb"), q.Get("id"), media.ParseKind(q.Get("kind")), q.Get("season"), q.Get("episode"))
		if err != nil {
			writeKindError(w, log, err, rid)
			return
		}

		wantProxy, _ := strconv.ParseBool(strings.TrimSpace(q.Get("proxy")))
		if wantProxy && proxy == nil {
			api.ServiceUnavailable(w, "PROXY_DISABLED", "stream proxy is not configured", rid)
			return
		}

		res, err := src.ScrapeAll(r.Context(), ref)
		if err != nil {
			writeKindError(w, log, err, rid)
			return
		}

		if wantProxy {
			uid, _ := auth.UserIDFromContext(r.Context())
			if uid == "" {
				uid = anonymousUser
			}
			if res, err = proxy.Rewrite(res, uid); err != nil {
				writeKindError(w, log, err, rid)
				return
			}
		}
		api.WriteJSON(w, http.StatusOK, res)
	}
}

// ListSources handles GET /v1/sources
func ListSources(reg source.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]any{"sources": reg.Names()})
	}
}
