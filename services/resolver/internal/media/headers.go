package media

import (
	"encoding/json"
	"fmt"
	"maps"
)

const (
	HeaderOrigin    = "Origin"
	HeaderReferer   = "Referer"
	HeaderUserAgent = "User-Agent"
)

// HeaderSet is the set of outbound headers a stream must be requested with.
// Origin, referer and user agent are mandatory before Headers may be read.
// Copies share nothing observable: mutators clone the extra map first.
type HeaderSet struct {
	origin    string
	referer   string
	userAgent string
	extra     map[string]string
}

// NewHeaderSet returns a HeaderSet with the three mandatory fields.
func NewHeaderSet(origin, referer, userAgent string) HeaderSet {
	return HeaderSet{origin: origin, referer: referer, userAgent: userAgent}
}

func (h HeaderSet) Origin() (string, error) {
	if h.origin == "" {
		return "", fmt.Errorf("%w: origin must be set first", ErrConfiguration)
	}
	return h.origin, nil
}

func (h HeaderSet) Referer() (string, error) {
	if h.referer == "" {
		return "", fmt.Errorf("%w: referer must be set first", ErrConfiguration)
	}
	return h.referer, nil
}

func (h HeaderSet) UserAgent() (string, error) {
	if h.userAgent == "" {
		return "", fmt.Errorf("%w: user agent must be set first", ErrConfiguration)
	}
	return h.userAgent, nil
}

func (h *HeaderSet) SetOrigin(v string)    { h.origin = v }
func (h *HeaderSet) SetReferer(v string)   { h.referer = v }
func (h *HeaderSet) SetUserAgent(v string) { h.userAgent = v }

// Add sets an extra header. Mandatory header names update the typed fields.
func (h *HeaderSet) Add(key, value string) {
	switch key {
	case HeaderOrigin:
		h.origin = value
		return
	case HeaderReferer:
		h.referer = value
		return
	case HeaderUserAgent:
		h.userAgent = value
		return
	}
	next := make(map[string]string, len(h.extra)+1)
	maps.Copy(next, h.extra)
	next[key] = value
	h.extra = next
}

// Remove deletes an extra header.
func (h *HeaderSet) Remove(key string) {
	if _, ok := h.extra[key]; !ok {
		return
	}
	next := maps.Clone(h.extra)
	delete(next, key)
	h.extra = next
}

// Headers returns a fresh map of every header, failing if a mandatory one is unset.
func (h HeaderSet) Headers() (map[string]string, error) {
	origin, err := h.Origin()
	if err != nil {
		return nil, err
	}
	referer, err := h.Referer()
	if err != nil {
		return nil, err
	}
	ua, err := h.UserAgent()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(h.extra)+3)
	maps.Copy(out, h.extra)
	out[HeaderOrigin] = origin
	out[HeaderReferer] = referer
	out[HeaderUserAgent] = ua
	return out, nil
}

// Equal compares every field including extras.
func (h HeaderSet) Equal(o HeaderSet) bool {
	return h.origin == o.origin && h.referer == o.referer && h.userAgent == o.userAgent && maps.Equal(h.extra, o.extra)
}

func (h HeaderSet) MarshalJSON() ([]byte, error) {
	m, err := h.Headers()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
