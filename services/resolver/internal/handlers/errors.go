package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/example/mcat-providers/internal/platform/api"
	"github.com/example/mcat-providers/services/resolver/internal/media"
)

// StatusOf maps an error kind to its HTTP status.
func StatusOf(err error) int {
	switch media.KindOf(err) {
	case media.KindCodeValidation:
		return http.StatusBadRequest
	case media.KindCodeNotFound:
		return http.StatusNotFound
	case media.KindCodeConfiguration, media.KindCodeIntegrity:
		return http.StatusServiceUnavailable
	case media.KindCodeUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeKindError(w http.ResponseWriter, log *zap.Logger, err error, requestID string) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("request_id", requestID), zap.Error(err))
		api.Internal(w, requestID)
		return
	}
	log.Warn("request failed", zap.String("request_id", requestID), zap.Int("status", status), zap.Error(err))
	api.WriteError(w, status, media.KindOf(err), clientMessage(err), requestID, nil)
}

// clientMessage hides upstream and asset details (URLs, response bodies,
// file paths); they stay in the log.
func clientMessage(err error) string {
	switch media.KindOf(err) {
	case media.KindCodeUpstream:
		return "upstream request failed"
	case media.KindCodeIntegrity:
		return "provider asset failed verification"
	}
	return err.Error()
}
