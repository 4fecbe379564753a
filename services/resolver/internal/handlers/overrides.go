package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/mcat-providers/internal/platform/api"
	"github.com/example/mcat-providers/internal/platform/httpserver"
	"github.com/example/mcat-providers/services/resolver/internal/media"
	"github.com/example/mcat-providers/services/resolver/internal/overrides"
)

type putOverrideRequest struct {
	InternalID string `json:"internal_id"`
	Note       string `json:"note,omitempty"`
}

type listOverridesResponse struct {
	Overrides []overrides.Override `json:"overrides"`
}

func overrideKey(r *http.Request) overrides.Key {
	return overrides.Key{
		Source:    chi.URLParam(r, "source"),
		Kind:      media.ParseKind(chi.URLParam(r, "kind")),
		CatalogID: chi.URLParam(r, "catalog_id"),
	}.Normalize()
}

// ListOverrides handles GET /v1/overrides/{source}
func ListOverrides(st overrides.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		src := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "source")))
		if src == "" {
			api.BadRequest(w, "MISSING_SOURCE", "source is required", rid, nil)
			return
		}
		rows, err := st.List(r.Context(), src)
		if err != nil {
			writeKindError(w, log, err, rid)
			return
		}
		if rows == nil {
			rows = []overrides.Override{}
		}
		api.WriteJSON(w, http.StatusOK, listOverridesResponse{Overrides: rows})
	}
}

// GetOverride handles GET /v1/overrides/{source}/{kind}/{catalog_id}
func GetOverride(st overrides.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		k := overrideKey(r)
		if err := k.Validate(); err != nil {
			writeKindError(w, log, err, rid)
			return
		}
		o, err := st.Get(r.Context(), k)
		if err != nil {
			writeKindError(w, log, err, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, o)
	}
}

// PutOverride handles PUT /v1/overrides/{source}/{kind}/{catalog_id}
func PutOverride(st overrides.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req putOverrideRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}
		o, err := st.Put(r.Context(), overrides.Override{
			Key:        overrideKey(r),
			InternalID: req.InternalID,
			Note:       strings.TrimSpace(req.Note),
		})
		if err != nil {
			writeKindError(w, log, err, rid)
			return
		}
		log.Info("override stored",
			zap.String("source", o.Source),
			zap.String("kind", string(o.Kind)),
			zap.String("catalog_id", o.CatalogID),
			zap.String("internal_id", o.InternalID),
		)
		api.WriteJSON(w, http.StatusOK, o)
	}
}

// DeleteOverride handles DELETE /v1/overrides/{source}/{kind}/{catalog_id}
func DeleteOverride(st overrides.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		k := overrideKey(r)
		if err := k.Validate(); err != nil {
			writeKindError(w, log, err, rid)
			return
		}
		if err := st.Delete(r.Context(), k); err != nil {
			writeKindError(w, log, err, rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
