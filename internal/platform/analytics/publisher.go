// Package analytics publishes resolver usage events to JetStream. Events
// are best effort: a resolution or proxied playlist never fails because an
// event could not be sent.
package analytics

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// SubjectResolverSourcesResolved carries one event per ScrapeAll call.
	SubjectResolverSourcesResolved = "analytics.resolver.sources_resolved"
	// SubjectResolverProxyServed carries one event per rewritten playlist.
	SubjectResolverProxyServed = "analytics.resolver.proxy_served"
)

// Event is the JSON body of every analytics message. UserID is the JWT
// subject or the signed proxy uid; it is empty for anonymous CLI runs.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher sends events with PublishAsync. A nil *Publisher, or one built
// with a nil JetStream context, drops everything.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
	now func() time.Time
}

func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log, now: time.Now}
}

// Publish enqueues one event. Marshal and enqueue failures are logged at
// warn level.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := json.Marshal(Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: p.now().UTC(),
		Properties: props,
	})
	if err != nil {
		p.log.Warn("analytics: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("analytics: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Flush waits up to timeout for pending async publishes and reports whether
// they all completed. Call it before draining the connection.
func (p *Publisher) Flush(timeout time.Duration) bool {
	if p == nil || p.js == nil {
		return true
	}
	select {
	case <-p.js.PublishAsyncComplete():
		return true
	case <-time.After(timeout):
		p.log.Warn("analytics: pending events dropped at shutdown", zap.Int("pending", p.js.PublishAsyncPending()))
		return false
	}
}
