package monitor

import (
	"context"
	"sync"
	"time"

	"nftflow/config"
	"nftflow/internal/chain"
	"nftflow/internal/events"
	"nftflow/internal/marketapi"
	"nftflow/logger"
)

// streamTransport is the slice of the push client the stream backend needs.
type streamTransport interface {
	Connect(ctx context.Context) error
	Connected() bool
	OnError(func(error))
	OnEvents(topic string, eventTypes []events.EventType, handler marketapi.StreamHandler) error
	ClearHandlers()
	Close()
}

const baseReconnectDelay = time.Second

// StreamBackend delivers marketplace events over the long-lived push
// transport. A transport drop schedules an exponential-backoff reconnection
// attempt; retries continue until Disconnect is called, there is no give-up
// state.
type StreamBackend struct {
	transport streamTransport
	registry  *Registry
	log       *logger.Log

	apiKey            string
	maxReconnectDelay time.Duration

	mu                sync.Mutex
	state             ConnectionState
	ctx               context.Context
	reconnectAttempts int
	reconnectTimer    *time.Timer

	// afterFunc is stubbed in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

// NewStreamBackend wires a stream backend from the monitor configuration.
func NewStreamBackend(cfg *config.Config, chainCtx *chain.Context, transport streamTransport) (*StreamBackend, error) {
	if chainCtx == nil {
		return nil, &ConfigurationError{Reason: "missing chain context"}
	}

	maxDelay := time.Duration(cfg.Monitor.MaxReconnectDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}

	return &StreamBackend{
		transport:         transport,
		registry:          NewRegistry(),
		log:               logger.GetLogger(),
		apiKey:            cfg.Source.APIKey,
		maxReconnectDelay: maxDelay,
		state:             StateDisconnected,
		afterFunc:         time.AfterFunc,
	}, nil
}

// Connect opens the push transport and registers the error handler that
// drives reconnection. A no-op when already Connected. A successful connect
// resets the reconnection attempt counter.
func (b *StreamBackend) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateConnected {
		b.mu.Unlock()
		return nil
	}
	if b.apiKey == "" {
		b.mu.Unlock()
		return &ConfigurationError{Reason: "missing marketplace API key"}
	}
	b.state = StateConnecting
	b.ctx = ctx
	b.mu.Unlock()

	b.transport.OnError(b.handleTransportError)

	if err := b.transport.Connect(ctx); err != nil {
		b.mu.Lock()
		b.state = StateDisconnected
		b.mu.Unlock()
		return &NetworkError{Op: "stream connect", Err: err}
	}

	b.mu.Lock()
	b.state = StateConnected
	b.reconnectAttempts = 0
	b.mu.Unlock()

	b.log.WithComponent("stream_backend").Info("stream backend connected")
	return nil
}

// SubscribeToCollection registers a subscription scoped to one collection.
func (b *StreamBackend) SubscribeToCollection(collection string, eventTypes []events.EventType, cb Callback, wallet string) (string, error) {
	return b.subscribe(collection, eventTypes, cb, wallet)
}

// SubscribeToAllCollections registers a wildcard subscription.
func (b *StreamBackend) SubscribeToAllCollections(eventTypes []events.EventType, cb Callback, wallet string) (string, error) {
	return b.subscribe(marketapi.WildcardTopic, eventTypes, cb, wallet)
}

// subscribe requires a live transport. The registry holds the subscription
// for counting and teardown; delivery happens through a transport-edge
// handler that normalizes the push payload and applies the wallet filter
// before invoking the user callback.
func (b *StreamBackend) subscribe(collection string, eventTypes []events.EventType, cb Callback, wallet string) (string, error) {
	if b.transport == nil || !b.transport.Connected() {
		return "", &StateError{Reason: "client not initialized"}
	}

	key, err := b.registry.Add(collection, eventTypes, cb, wallet)
	if err != nil {
		return "", err
	}

	handler := func(eventType string, payload events.StreamPayload) {
		raw := events.StreamEvent{EventType: eventType, Payload: payload}
		ev := events.NormalizeStream(raw)
		if ev == nil {
			return
		}
		if wallet != "" && !ev.Involves(wallet) {
			return
		}
		b.deliver(key, cb, ev)
	}

	if err := b.transport.OnEvents(collection, eventTypes, handler); err != nil {
		b.registry.Remove(key)
		return "", &NetworkError{Op: "stream subscribe", Err: err}
	}
	return key, nil
}

func (b *StreamBackend) deliver(key string, cb Callback, ev *events.CanonicalEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.WithComponent("stream_backend").WithFields(logger.Fields{
				"subscription": key,
				"panic":        rec,
			}).Error("subscriber callback panicked")
		}
	}()
	logger.IncrementStreamEvent(len(ev.SeenID()))
	if err := cb(ev); err != nil {
		cbErr := &CallbackError{SubscriptionKey: key, Err: err}
		b.log.WithComponent("stream_backend").WithError(cbErr).Warn("subscriber callback failed")
	}
}

// Unsubscribe clears every subscription. The transport stays connected.
func (b *StreamBackend) Unsubscribe() {
	b.registry.Remove("")
	if b.transport != nil {
		b.transport.ClearHandlers()
	}
}

// Disconnect cancels any pending reconnection, clears subscriptions, tears
// the transport down and transitions to Disconnected. Idempotent.
func (b *StreamBackend) Disconnect() {
	b.mu.Lock()
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
		b.reconnectTimer = nil
	}
	b.state = StateDisconnected
	b.reconnectAttempts = 0
	b.mu.Unlock()

	b.Unsubscribe()
	if b.transport != nil {
		b.transport.Close()
	}
	b.log.WithComponent("stream_backend").Info("stream backend disconnected")
}

// ConnectionState returns the current state.
func (b *StreamBackend) ConnectionState() ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SubscriptionCount returns the number of active subscriptions.
func (b *StreamBackend) SubscriptionCount() int {
	return b.registry.Count()
}

// handleTransportError schedules a reconnection attempt. Only one timer is
// ever pending: further errors while it is armed are ignored, and errors
// after Disconnect are ignored entirely.
func (b *StreamBackend) handleTransportError(cause error) {
	b.mu.Lock()
	if b.state != StateConnected && b.state != StateReconnecting {
		b.mu.Unlock()
		return
	}
	if b.reconnectTimer != nil {
		b.mu.Unlock()
		return
	}
	b.state = StateReconnecting
	b.reconnectAttempts++
	attempt := b.reconnectAttempts
	delay := reconnectDelay(attempt, b.maxReconnectDelay)
	b.reconnectTimer = b.afterFunc(delay, b.retryConnect)
	b.mu.Unlock()

	b.log.WithComponent("stream_backend").WithError(cause).WithFields(logger.Fields{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	}).Warn("transport error, reconnection scheduled")
}

// retryConnect runs when the backoff timer fires.
func (b *StreamBackend) retryConnect() {
	b.mu.Lock()
	if b.state != StateReconnecting {
		// disconnected while the timer was in flight
		b.mu.Unlock()
		return
	}
	b.reconnectTimer = nil
	ctx := b.ctx
	b.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.transport.Connect(ctx); err != nil {
		// handleTransportError re-schedules with the next attempt count
		b.handleTransportError(err)
		return
	}

	b.mu.Lock()
	b.state = StateConnected
	b.reconnectAttempts = 0
	b.mu.Unlock()
	b.log.WithComponent("stream_backend").Info("stream transport reconnected")
}

// reconnectDelay computes the exponential backoff for the given attempt:
// 1s, 2s, 4s, ... bounded by the configured cap.
func reconnectDelay(attempt int, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 2^(attempt-1) saturates well past any sane cap
	if attempt > 30 {
		return maxDelay
	}
	delay := baseReconnectDelay << uint(attempt-1)
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
