package channel

import (
	"context"
	"sync"

	"nftflow/internal/events"
	"nftflow/logger"
)

type Stats struct {
	Sent    int64
	Dropped int64
}

// Channels carries delivered canonical events from the monitor's subscriber
// callback to downstream consumers (the archive writer). Sends never block:
// when the buffer is full the event is dropped and counted.
type Channels struct {
	Events chan events.CanonicalEvent

	stats      Stats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Events: make(chan events.CanonicalEvent, bufferSize),
		log:    log,
	}

	log.WithComponent("event_channels").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("event channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Events)
	c.log.WithComponent("event_channels").Info("event channels closed")
}

func (c *Channels) IncrementSent() {
	c.statsMutex.Lock()
	c.stats.Sent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementDropped() {
	c.statsMutex.Lock()
	c.stats.Dropped++
	c.statsMutex.Unlock()
}

func (c *Channels) Send(ctx context.Context, ev events.CanonicalEvent) bool {
	select {
	case c.Events <- ev:
		c.IncrementSent()
		logger.RecordChannelMessage("events", len(ev.ItemID)+len(ev.TxHash))
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementDropped()
		return false
	}
}

func (c *Channels) GetStats() Stats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
