// Package notify carries external change notifications to the category
// engine. The only obligation on a subscriber is to trigger a refetch, so
// the broker favors never blocking a publisher over delivering every event.
package notify

import (
	"sync"

	"tally/internal/logger"
)

// Kind classifies a change event.
type Kind string

const (
	KindInsert  Kind = "insert"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindUnknown Kind = "unknown"
)

// ParseKind maps an arbitrary event string onto a known kind.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindInsert, KindUpdate, KindDelete:
		return Kind(s)
	}
	return KindUnknown
}

// Event is one external change to a company's records. RecordID may be
// empty when the upstream source does not know which record changed.
type Event struct {
	CompanyID string `json:"company_id"`
	Kind      Kind   `json:"kind"`
	RecordID  string `json:"record_id,omitempty"`
}

const subscriberBuffer = 16

// Broker is an in-process pub/sub hub keyed by company id.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[int]chan Event
	next int
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a listener for one company's events. The returned
// cancel function removes the subscription and closes the channel.
func (b *Broker) Subscribe(companyID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[companyID] == nil {
		b.subs[companyID] = make(map[int]chan Event)
	}
	id := b.next
	b.next++

	ch := make(chan Event, subscriberBuffer)
	b.subs[companyID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[companyID][id]; ok {
			delete(b.subs[companyID], id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its company. Publish
// never blocks: a subscriber whose buffer is full misses the event, which
// is acceptable because a later event triggers the same refetch.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[ev.CompanyID] {
		select {
		case ch <- ev:
		default:
			logger.Get().Warnw("dropping change event for slow subscriber",
				"company_id", ev.CompanyID,
				"kind", ev.Kind,
			)
		}
	}
}
