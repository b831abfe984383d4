package monitor

import (
	"fmt"
	"strings"
	"sync"

	"nftflow/internal/events"
	"nftflow/logger"
)

// Callback consumes one delivered event. A returned error is logged and does
// not disable the subscription.
type Callback func(*events.CanonicalEvent) error

// WildcardCollection subscribes across every collection.
const WildcardCollection = "*"

type subscription struct {
	key          string
	collection   string
	eventTypes   []events.EventType
	callback     Callback
	walletFilter string
}

// Registry holds the active subscriptions and fans events out to matching
// callbacks. Both backends share it; it owns the subscriptions exclusively
// and callbacks are never retained elsewhere.
type Registry struct {
	mu   sync.Mutex
	subs map[string]*subscription
	log  *logger.Log
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[string]*subscription),
		log:  logger.GetLogger(),
	}
}

// Add registers a subscription and returns its key. Event types must be a
// non-empty list; unrecognized type strings are tolerated and simply never
// match.
func (r *Registry) Add(collection string, eventTypes []events.EventType, cb Callback, walletFilter string) (string, error) {
	if len(eventTypes) == 0 {
		return "", &ValidationError{Reason: "eventTypes must be a non-empty array"}
	}
	if cb == nil {
		return "", &ValidationError{Reason: "callback must not be nil"}
	}

	key := subscriptionKey(collection, eventTypes)
	sub := &subscription{
		key:          key,
		collection:   collection,
		eventTypes:   append([]events.EventType(nil), eventTypes...),
		callback:     cb,
		walletFilter: walletFilter,
	}

	r.mu.Lock()
	r.subs[key] = sub
	r.mu.Unlock()

	r.log.WithComponent("subscription_registry").WithFields(logger.Fields{
		"key":           key,
		"collection":    collection,
		"wallet_filter": walletFilter != "",
	}).Info("subscription added")
	return key, nil
}

// Remove deletes the subscription with the given key. An empty key clears
// every subscription. Removing a key that does not exist is a no-op.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	if key == "" {
		r.subs = make(map[string]*subscription)
	} else {
		delete(r.subs, key)
	}
	r.mu.Unlock()
}

// Count returns the number of active subscriptions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Dispatch delivers the event to every matching subscription and returns how
// many callbacks were invoked. A subscription matches when its collection is
// the event's collection or the wildcard, its event types contain the event's
// type, and its wallet filter (if any) matches the event's from or to
// address. The source address hint names the account an account-scoped fetch
// was made for; it is logged for traceability but never widens a wallet
// filter. A failing callback is logged and does not interrupt delivery to
// the remaining subscribers.
func (r *Registry) Dispatch(ev *events.CanonicalEvent, sourceAddressHint string) int {
	if ev == nil {
		return 0
	}

	r.mu.Lock()
	matched := make([]*subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if !sub.matches(ev) {
			continue
		}
		matched = append(matched, sub)
	}
	r.mu.Unlock()

	invoked := 0
	for _, sub := range matched {
		r.invoke(sub, ev)
		invoked++
	}
	if invoked > 0 {
		r.log.WithComponent("subscription_registry").WithFields(logger.Fields{
			"event_type": string(ev.EventType),
			"item_id":    ev.ItemID,
			"source":     sourceAddressHint,
			"delivered":  invoked,
		}).Debug("event dispatched")
	}
	return invoked
}

func (sub *subscription) matches(ev *events.CanonicalEvent) bool {
	if sub.collection != WildcardCollection && sub.collection != ev.Payload.CollectionSlug {
		return false
	}
	typeMatch := false
	for _, t := range sub.eventTypes {
		if t == ev.EventType {
			typeMatch = true
			break
		}
	}
	if !typeMatch {
		return false
	}
	if sub.walletFilter != "" && !ev.Involves(sub.walletFilter) {
		return false
	}
	return true
}

// invoke shields dispatch from panicking or failing callbacks.
func (r *Registry) invoke(sub *subscription, ev *events.CanonicalEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			cbErr := &CallbackError{SubscriptionKey: sub.key, Err: fmt.Errorf("panic: %v", rec)}
			r.log.WithComponent("subscription_registry").WithError(cbErr).Error("subscriber callback panicked")
		}
	}()
	if err := sub.callback(ev); err != nil {
		cbErr := &CallbackError{SubscriptionKey: sub.key, Err: err}
		r.log.WithComponent("subscription_registry").WithError(cbErr).Warn("subscriber callback failed")
	}
}

// subscriptionKey derives the registry key. Wildcard subscriptions collapse
// onto the bare wildcard so "subscribe to everything" is a single slot.
func subscriptionKey(collection string, eventTypes []events.EventType) string {
	if collection == WildcardCollection {
		return WildcardCollection
	}
	parts := make([]string, len(eventTypes))
	for i, t := range eventTypes {
		parts[i] = string(t)
	}
	return collection + ":" + strings.Join(parts, ",")
}
