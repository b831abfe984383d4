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

// eventsFetcher is the slice of the REST client the polling backend needs.
type eventsFetcher interface {
	Events(ctx context.Context, q marketapi.EventsQuery) ([]events.RestEvent, error)
}

// watchTarget is one distinct address the polling loop fetches for: either a
// wallet account or a collection. Each target carries its own watermark.
type watchTarget struct {
	account    string
	collection string
}

// PollingBackend delivers marketplace events by periodically fetching the
// REST events endpoint for every watched address, normalizing and
// deduplicating the batches and dispatching survivors through the
// subscription registry. It is the fallback path when the push transport is
// unavailable.
type PollingBackend struct {
	fetcher  eventsFetcher
	registry *Registry
	dedup    *events.Deduplicator
	chain    *chain.Context
	log      *logger.Log

	apiKey   string
	interval time.Duration
	lookback time.Duration

	mu         sync.Mutex
	state      ConnectionState
	ctx        context.Context
	watch      map[string]watchTarget
	watermarks map[string]time.Time
	stop       chan struct{}
	wg         sync.WaitGroup
	polling    bool

	// now is stubbed in tests.
	now func() time.Time
}

// NewPollingBackend wires a polling backend from the monitor configuration.
func NewPollingBackend(cfg *config.Config, chainCtx *chain.Context, fetcher eventsFetcher) (*PollingBackend, error) {
	dedup, err := events.NewDeduplicator(cfg.Monitor.DedupCapacity)
	if err != nil {
		return nil, err
	}

	interval := time.Duration(cfg.Monitor.PollingIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	lookback := time.Duration(cfg.Monitor.InitialLookbackSeconds) * time.Second
	if lookback <= 0 {
		lookback = 5 * time.Minute
	}

	return &PollingBackend{
		fetcher:    fetcher,
		registry:   NewRegistry(),
		dedup:      dedup,
		chain:      chainCtx,
		log:        logger.GetLogger(),
		apiKey:     cfg.Source.APIKey,
		interval:   interval,
		lookback:   lookback,
		state:      StateDisconnected,
		watch:      make(map[string]watchTarget),
		watermarks: make(map[string]time.Time),
		now:        time.Now,
	}, nil
}

// Connect validates the construction inputs and transitions to Connected.
// Calling while already Connected is a no-op.
func (b *PollingBackend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateConnected {
		return nil
	}
	if b.apiKey == "" {
		return &ConfigurationError{Reason: "missing marketplace API key"}
	}
	if b.chain == nil {
		return &ConfigurationError{Reason: "missing chain context"}
	}

	b.ctx = ctx
	b.state = StateConnected
	b.log.WithComponent("polling_backend").WithFields(logger.Fields{
		"interval": b.interval,
		"lookback": b.lookback,
		"chain":    b.chain.Name,
	}).Info("polling backend connected")
	return nil
}

// SubscribeToCollection registers a subscription scoped to one collection.
func (b *PollingBackend) SubscribeToCollection(collection string, eventTypes []events.EventType, cb Callback, wallet string) (string, error) {
	return b.subscribe(collection, eventTypes, cb, wallet)
}

// SubscribeToAllCollections registers a wildcard subscription. The polling
// path fetches per address, so a wildcard subscription needs a wallet to
// watch.
func (b *PollingBackend) SubscribeToAllCollections(eventTypes []events.EventType, cb Callback, wallet string) (string, error) {
	return b.subscribe(WildcardCollection, eventTypes, cb, wallet)
}

func (b *PollingBackend) subscribe(collection string, eventTypes []events.EventType, cb Callback, wallet string) (string, error) {
	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		return "", &StateError{Reason: "backend not connected"}
	}
	b.mu.Unlock()

	if collection == WildcardCollection && wallet == "" {
		return "", &ValidationError{Reason: "wildcard subscriptions on the polling backend require a wallet address"}
	}

	key, err := b.registry.Add(collection, eventTypes, cb, wallet)
	if err != nil {
		return "", err
	}

	target := watchTarget{account: wallet, collection: collection}
	watchKey := wallet
	if watchKey == "" {
		watchKey = collection
	}

	b.mu.Lock()
	if _, ok := b.watch[watchKey]; !ok {
		b.watch[watchKey] = target
		if _, ok := b.watermarks[watchKey]; !ok {
			b.watermarks[watchKey] = b.now().Add(-b.lookback)
		}
	}
	startLoop := !b.polling
	if startLoop {
		b.polling = true
		b.stop = make(chan struct{})
	}
	b.mu.Unlock()

	if startLoop {
		b.wg.Add(1)
		go b.pollLoop(b.stop)
	}
	return key, nil
}

// Unsubscribe clears every subscription and stops the polling loop.
// Watermarks survive so a later subscription to the same address resumes
// where it left off.
func (b *PollingBackend) Unsubscribe() {
	b.registry.Remove("")

	b.mu.Lock()
	b.watch = make(map[string]watchTarget)
	stop := b.stop
	running := b.polling
	b.polling = false
	b.stop = nil
	b.mu.Unlock()

	if running && stop != nil {
		close(stop)
		b.wg.Wait()
	}
}

// Disconnect stops polling, clears every subscription, forgets seen event
// ids and watermarks and transitions to Disconnected. Idempotent.
func (b *PollingBackend) Disconnect() {
	b.Unsubscribe()

	b.mu.Lock()
	b.watermarks = make(map[string]time.Time)
	b.state = StateDisconnected
	b.mu.Unlock()

	b.dedup.Clear()
	b.log.WithComponent("polling_backend").Info("polling backend disconnected")
}

// ConnectionState returns the current state.
func (b *PollingBackend) ConnectionState() ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SubscriptionCount returns the number of active subscriptions.
func (b *PollingBackend) SubscriptionCount() int {
	return b.registry.Count()
}

func (b *PollingBackend) pollLoop(stop chan struct{}) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.pollOnce()
		}
	}
}

// pollOnce runs one polling cycle across every watched address.
func (b *PollingBackend) pollOnce() {
	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		return
	}
	ctx := b.ctx
	targets := make(map[string]watchTarget, len(b.watch))
	for k, t := range b.watch {
		targets[k] = t
	}
	b.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	for key, target := range targets {
		b.pollTarget(ctx, key, target)
	}
}

func (b *PollingBackend) pollTarget(ctx context.Context, watchKey string, target watchTarget) {
	log := b.log.WithComponent("polling_backend").WithFields(logger.Fields{"watch": watchKey})

	b.mu.Lock()
	watermark := b.watermarks[watchKey]
	b.mu.Unlock()

	q := marketapi.EventsQuery{After: watermark.Unix()}
	if target.account != "" {
		q.Account = target.account
		q.Chain = b.chain.Network
	} else {
		q.Collection = target.collection
	}

	batch, err := b.fetcher.Events(ctx, q)
	if err != nil {
		// transient; the next tick retries naturally
		log.WithError(&NetworkError{Op: "events fetch", Err: err}).Warn("fetch failed, skipping cycle")
		return
	}

	b.mu.Lock()
	live := b.state == StateConnected
	b.mu.Unlock()
	if !live {
		// disconnected while the fetch was in flight
		return
	}

	maxSeen := time.Time{}
	nowCap := b.now()
	for i := range batch {
		ev := events.NormalizeRest(batch[i], b.chain.Name)
		if ev == nil {
			continue
		}

		occurred := ev.OccurredAt()
		if !occurred.IsZero() && occurred.After(maxSeen) && !occurred.After(nowCap) {
			maxSeen = occurred
		}

		id := ev.SeenID()
		if b.dedup.Seen(id) {
			continue
		}
		b.dedup.Remember(id)

		b.processEvent(ev, target)
		logger.IncrementPollingEvent(len(id))
	}

	if !maxSeen.IsZero() {
		b.mu.Lock()
		if maxSeen.After(b.watermarks[watchKey]) {
			b.watermarks[watchKey] = maxSeen
		}
		b.mu.Unlock()
	}
}

// processEvent applies the backend-level wallet check before handing the
// event to the registry, whose per-subscription filter runs independently.
func (b *PollingBackend) processEvent(ev *events.CanonicalEvent, target watchTarget) {
	if target.account != "" && !ev.Involves(target.account) {
		return
	}
	b.registry.Dispatch(ev, target.account)
}
