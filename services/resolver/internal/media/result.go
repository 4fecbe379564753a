package media

import "encoding/json"

// Subtitle is a subtitle track. Two subtitles are equal when all fields are.
type Subtitle struct {
	Language string `json:"language"`
	URL      string `json:"url"`
	Ext      string `json:"ext"`
}

// StreamVariant is one playable rendition from a variant playlist.
type StreamVariant struct {
	Provider   string
	Headers    HeaderSet
	URL        string
	Ext        string
	Quality    Quality
	Resolution string
	Codec      string
	Bandwidth  int64
	// AudioChannels is never populated by the current providers.
	AudioChannels int
}

// Equal compares variants field by field.
func (s StreamVariant) Equal(o StreamVariant) bool {
	return s.Provider == o.Provider && s.Headers.Equal(o.Headers) && s.URL == o.URL &&
		s.Ext == o.Ext && s.Quality == o.Quality && s.Resolution == o.Resolution &&
		s.Codec == o.Codec && s.Bandwidth == o.Bandwidth && s.AudioChannels == o.AudioChannels
}

type streamJSON struct {
	Provider      string    `json:"provider"`
	Headers       HeaderSet `json:"headers"`
	URL           string    `json:"url"`
	Ext           string    `json:"ext"`
	Quality       Quality   `json:"quality"`
	Codec         *string   `json:"codec"`
	Bandwith      *int64    `json:"bandwith"`
	AudioChannels *int      `json:"audio_channels"`
}

func (s StreamVariant) MarshalJSON() ([]byte, error) {
	out := streamJSON{
		Provider: s.Provider,
		Headers:  s.Headers,
		URL:      s.URL,
		Ext:      s.Ext,
		Quality:  s.Quality,
	}
	if s.Codec != "" {
		out.Codec = &s.Codec
	}
	if s.Bandwidth > 0 {
		out.Bandwith = &s.Bandwidth
	}
	if s.AudioChannels > 0 {
		out.AudioChannels = &s.AudioChannels
	}
	return json.Marshal(out)
}

// ProviderResult is everything one provider resolved for a link.
type ProviderResult struct {
	Provider  string          `json:"provider"`
	Streams   []StreamVariant `json:"streams"`
	Subtitles []Subtitle      `json:"subtitles"`
}

// NewProviderResult builds a result, dropping duplicate subtitles while
// keeping first-seen order.
func NewProviderResult(provider string, streams []StreamVariant, subtitles []Subtitle) *ProviderResult {
	seen := make(map[Subtitle]struct{}, len(subtitles))
	uniq := make([]Subtitle, 0, len(subtitles))
	for _, s := range subtitles {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}
	if streams == nil {
		streams = []StreamVariant{}
	}
	return &ProviderResult{Provider: provider, Streams: streams, Subtitles: uniq}
}

// AggregatedResult collects every provider result for one request.
// Nil entries stand for providers that failed.
type AggregatedResult struct {
	Source    string
	Providers []*ProviderResult
}

// Resolved returns the non-nil provider results in order.
func (a AggregatedResult) Resolved() []*ProviderResult {
	out := make([]*ProviderResult, 0, len(a.Providers))
	for _, p := range a.Providers {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (a AggregatedResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name      string            `json:"name"`
		Providers []*ProviderResult `json:"providers"`
	}{Name: a.Source, Providers: a.Resolved()})
}
