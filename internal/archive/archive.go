package archive

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "nftflow/config"
	"nftflow/internal/events"
	"nftflow/logger"
)

// ParquetRecord is the on-disk row shape of one archived event.
type ParquetRecord struct {
	EventType   string `parquet:"name=event_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp   int64  `parquet:"name=timestamp, type=INT64"`
	ItemID      string `parquet:"name=item_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TxHash      string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	FromAddress string `parquet:"name=from_address, type=BYTE_ARRAY, convertedtype=UTF8"`
	ToAddress   string `parquet:"name=to_address, type=BYTE_ARRAY, convertedtype=UTF8"`
	PriceRaw    string `parquet:"name=price_raw, type=BYTE_ARRAY, convertedtype=UTF8"`
	Currency    string `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	Collection  string `parquet:"name=collection, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Writer archives delivered events to S3 as time-partitioned parquet files.
// Workers drain the event channel into per-collection buffers; a flush worker
// uploads them when the batch size or flush interval is reached.
type Writer struct {
	config      *appconfig.Config
	eventCh     <-chan events.CanonicalEvent
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      map[string][]events.CanonicalEvent
	flushTicker *time.Ticker
	batchSize   int
}

// NewWriter creates the archive writer and validates the AWS configuration.
func NewWriter(cfg *appconfig.Config, eventCh <-chan events.CanonicalEvent) (*Writer, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("archive_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	batchSize := cfg.Storage.S3.BatchSize
	if batchSize < 1 {
		batchSize = 500
	}

	w := &Writer{
		config:    cfg,
		eventCh:   eventCh,
		s3Client:  s3Client,
		wg:        &sync.WaitGroup{},
		log:       log,
		batchSize: batchSize,
	}

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("archive writer initialized")

	return w, nil
}

// Start launches the drain and flush workers.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.buffer = make(map[string][]events.CanonicalEvent)
	w.mu.Unlock()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting archive writer")

	flushInterval := w.config.Storage.S3.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	w.flushTicker = time.NewTicker(flushInterval)

	numWorkers := w.config.Storage.S3.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	log.WithFields(logger.Fields{"workers": numWorkers, "flush_interval": flushInterval}).Info("starting archive workers")

	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}

	w.wg.Add(1)
	go w.flushWorker()

	log.Info("archive writer started successfully")
	return nil
}

// Stop halts the workers and waits for them to finish.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	w.log.WithComponent("archive_writer").Info("stopping archive writer")
	w.wg.Wait()
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

func (w *Writer) worker(workerID int) {
	defer w.wg.Done()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "archive_drain",
	})

	log.Info("starting archive worker")

	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case ev, ok := <-w.eventCh:
			if !ok {
				log.Info("event channel closed, worker stopping")
				return
			}
			w.addEvent(ev)
		}
	}
}

func (w *Writer) addEvent(ev events.CanonicalEvent) {
	key := bufferKey(ev)

	w.mu.Lock()
	w.buffer[key] = append(w.buffer[key], ev)
	full := len(w.buffer[key]) >= w.batchSize
	var batch []events.CanonicalEvent
	if full {
		batch = w.buffer[key]
		delete(w.buffer, key)
	}
	w.mu.Unlock()

	if full {
		w.processBatch(key, batch)
	}
}

// bufferKey groups events by collection; events without a collection slug
// share one bucket.
func bufferKey(ev events.CanonicalEvent) string {
	if ev.Payload.CollectionSlug == "" {
		return "uncategorized"
	}
	return ev.Payload.CollectionSlug
}

func (w *Writer) flushWorker() {
	defer w.wg.Done()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-w.ctx.Done():
			w.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-w.flushTicker.C:
			w.flushBuffers("interval")
		}
	}
}

func (w *Writer) flushBuffers(reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string][]events.CanonicalEvent)
	w.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for key, evs := range buffers {
		if len(evs) == 0 {
			continue
		}
		w.processBatch(key, evs)
	}
}

func (w *Writer) processBatch(collection string, batch []events.CanonicalEvent) {
	batchID := uuid.New().String()
	now := time.Now().UTC()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"batch_id":     batchID,
		"collection":   collection,
		"record_count": len(batch),
		"operation":    "process_batch",
	})

	log.Info("processing batch")

	s3Key := w.generateS3Key(collection, now, batchID)
	log = log.WithFields(logger.Fields{"s3_key": s3Key})

	parquetData, fileSize, err := w.createParquetFile(batch)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := w.uploadToS3(s3Key, parquetData); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket}).
			Error("failed to upload to S3")
		return
	}

	logger.IncrementArchiveWrite(fileSize)
	log.WithFields(logger.Fields{"file_size": fileSize}).Info("batch uploaded successfully")
}

func (w *Writer) generateS3Key(collection string, ts time.Time, batchID string) string {
	parts := []string{}
	if w.config.Storage.S3.Prefix != "" {
		parts = append(parts, w.config.Storage.S3.Prefix)
	}
	parts = append(parts,
		fmt.Sprintf("collection=%s", collection),
		fmt.Sprintf("year=%04d", ts.Year()),
		fmt.Sprintf("month=%02d", ts.Month()),
		fmt.Sprintf("day=%02d", ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
	)

	filename := fmt.Sprintf("events_%s_%s_%s.parquet",
		collection,
		ts.Format("20060102150405"),
		batchID[:8])

	key := filepath.Join(append(parts, filename)...)
	return filepath.ToSlash(key)
}

func (w *Writer) createParquetFile(batch []events.CanonicalEvent) ([]byte, int64, error) {
	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"entries_count": len(batch),
		"operation":     "create_parquet_file",
	})
	log.Debug("creating parquet file")

	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range batch {
		ev := &batch[i]
		record := ParquetRecord{
			EventType:   string(ev.EventType),
			Timestamp:   ev.OccurredAt().UnixMilli(),
			ItemID:      ev.ItemID,
			TxHash:      ev.TxHash,
			FromAddress: ev.Payload.FromAddress,
			ToAddress:   ev.Payload.ToAddress,
			PriceRaw:    ev.Payload.PriceRaw,
			Currency:    ev.Payload.Currency,
			Collection:  ev.Payload.CollectionSlug,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	data := fw.Bytes()
	return data, int64(len(data)), nil
}

func (w *Writer) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":    "parquet",
			"nftflow-version": w.config.Nftflow.Version,
		},
	}

	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}
	return nil
}
