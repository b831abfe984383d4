package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nftflow/config"
	"nftflow/internal/archive"
	"nftflow/internal/chain"
	"nftflow/internal/channel"
	"nftflow/internal/events"
	"nftflow/internal/monitor"
	"nftflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	collectionsFlag := flag.String("collections", "", "Comma-separated collection slugs to watch (overrides config)")
	eventsFlag := flag.String("events", "", "Comma-separated event types to watch (overrides config)")
	walletFlag := flag.String("wallet", "", "Wallet address filter (overrides config)")
	modeFlag := flag.String("mode", "", "Monitor mode: stream or polling (overrides config)")

	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if *collectionsFlag != "" {
		cfg.Watch.Collections = splitList(*collectionsFlag)
	}
	if *eventsFlag != "" {
		cfg.Watch.EventTypes = splitList(*eventsFlag)
	}
	if *walletFlag != "" {
		cfg.Watch.Wallet = *walletFlag
	}
	if *modeFlag != "" {
		cfg.Monitor.Mode = *modeFlag
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Nftflow.Name,
		"version": cfg.Nftflow.Version,
		"mode":    cfg.Monitor.Mode,
	}).Info("starting nftflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	chainCtx, err := chain.Resolve(cfg.Chain.Network)
	if err != nil {
		log.WithError(err).Error("failed to resolve chain context")
		os.Exit(1)
	}

	channels := channel.NewChannels(cfg.Channels.EventBuffer)
	defer channels.Close()

	mon, err := monitor.New(cfg, chainCtx)
	if err != nil {
		log.WithError(err).Error("failed to create monitor")
		os.Exit(1)
	}

	var archiveWriter *archive.Writer
	if cfg.Storage.S3.Enabled {
		archiveWriter, err = archive.NewWriter(cfg, channels.Events)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archive writer")
	}

	var wg sync.WaitGroup

	if archiveWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := archiveWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("archive writer failed to start")
			}
		}()
	}

	if err := mon.Connect(ctx); err != nil {
		log.WithError(err).Error("failed to connect monitor")
		os.Exit(1)
	}

	eventTypes := watchEventTypes(cfg.Watch.EventTypes)
	deliver := func(ev *events.CanonicalEvent) error {
		log.WithComponent("main").WithFields(logger.Fields{
			"event_type": string(ev.EventType),
			"item_id":    ev.ItemID,
			"collection": ev.Payload.CollectionSlug,
			"price_raw":  ev.Payload.PriceRaw,
		}).Info("event received")
		if !channels.Send(ctx, *ev) {
			log.WithComponent("main").Warn("event channel full, dropping event")
		}
		return nil
	}

	if len(cfg.Watch.Collections) == 0 {
		if _, err := mon.SubscribeToAllCollections(eventTypes, deliver, cfg.Watch.Wallet); err != nil {
			log.WithError(err).Error("failed to subscribe to all collections")
			os.Exit(1)
		}
	} else {
		for _, collection := range cfg.Watch.Collections {
			if _, err := mon.SubscribeToCollection(collection, eventTypes, deliver, cfg.Watch.Wallet); err != nil {
				log.WithError(err).WithFields(logger.Fields{"collection": collection}).Error("failed to subscribe")
				os.Exit(1)
			}
		}
	}

	log.WithFields(logger.Fields{
		"subscriptions": mon.SubscriptionCount(),
		"state":         mon.ConnectionState().String(),
	}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	mon.Disconnect()
	cancel()

	if archiveWriter != nil {
		log.Info("stopping archive writer")
		archiveWriter.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("nftflow stopped")
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// watchEventTypes maps the configured type names onto the canonical enum,
// defaulting to every known type.
func watchEventTypes(names []string) []events.EventType {
	if len(names) == 0 {
		return append([]events.EventType(nil), events.KnownTypes...)
	}
	out := make([]events.EventType, 0, len(names))
	for _, n := range names {
		out = append(out, events.EventType(n))
	}
	return out
}
