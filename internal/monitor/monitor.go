package monitor

import (
	"context"
	"fmt"

	"nftflow/config"
	"nftflow/internal/chain"
	"nftflow/internal/events"
	"nftflow/internal/marketapi"
)

// ConnectionState describes where a backend is in its connection lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Monitor is the contract the rest of the program sees. Construction selects
// the push or polling backend; callers never inspect which one is active.
type Monitor interface {
	Connect(ctx context.Context) error
	Disconnect()
	SubscribeToCollection(collection string, eventTypes []events.EventType, cb Callback, wallet string) (string, error)
	SubscribeToAllCollections(eventTypes []events.EventType, cb Callback, wallet string) (string, error)
	Unsubscribe()
	ConnectionState() ConnectionState
	SubscriptionCount() int
}

// New builds the monitor selected by the configuration's monitor mode.
func New(cfg *config.Config, chainCtx *chain.Context) (Monitor, error) {
	if cfg == nil {
		return nil, &ConfigurationError{Reason: "missing configuration"}
	}

	switch cfg.Monitor.Mode {
	case "stream", "":
		transport, err := marketapi.NewStreamClient(cfg.Source.StreamURL, cfg.Source.APIKey)
		if err != nil {
			return nil, &ConfigurationError{Reason: err.Error()}
		}
		return NewStreamBackend(cfg, chainCtx, transport)
	case "polling":
		client, err := marketapi.NewClient(cfg.Source.RestURL, cfg.Source.APIKey, marketapi.ClientOptions{
			Timeout:           cfg.Source.Timeout,
			UserAgent:         cfg.Source.UserAgent,
			RequestsPerSecond: cfg.Source.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.Source.RateLimit.BurstSize,
		})
		if err != nil {
			return nil, &ConfigurationError{Reason: err.Error()}
		}
		return NewPollingBackend(cfg, chainCtx, client)
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown monitor mode %q", cfg.Monitor.Mode)}
	}
}
