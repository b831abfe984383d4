package archive

import (
	"strings"
	"testing"
	"time"

	appconfig "nftflow/config"
	"nftflow/internal/events"
	"nftflow/logger"
)

func soldEvent(id, collection string) events.CanonicalEvent {
	return events.CanonicalEvent{
		EventType: events.ItemSold,
		Timestamp: "2024-05-01T12:00:00Z",
		ItemID:    id,
		TxHash:    "0xtx",
		Payload: events.Payload{
			FromAddress:    "0xseller",
			ToAddress:      "0xbuyer",
			PriceRaw:       "1000000000000000000",
			Currency:       "ETH",
			CollectionSlug: collection,
		},
	}
}

func testWriter() *Writer {
	cfg := &appconfig.Config{}
	cfg.Storage.S3.Bucket = "bucket"
	cfg.Storage.S3.Prefix = "events"
	return &Writer{
		config:    cfg,
		log:       logger.GetLogger(),
		buffer:    make(map[string][]events.CanonicalEvent),
		batchSize: 100,
	}
}

func TestAddEventBuffersByCollection(t *testing.T) {
	w := testWriter()
	w.addEvent(soldEvent("ethereum/0xabc/1", "cool-cats"))
	w.addEvent(soldEvent("ethereum/0xabc/2", "cool-cats"))
	w.addEvent(soldEvent("ethereum/0xdef/1", ""))

	if len(w.buffer["cool-cats"]) != 2 {
		t.Fatalf("expected 2 buffered events for cool-cats, got %d", len(w.buffer["cool-cats"]))
	}
	if len(w.buffer["uncategorized"]) != 1 {
		t.Fatalf("events without a collection should share one bucket, got %v", w.buffer)
	}
}

func TestGenerateS3Key(t *testing.T) {
	w := testWriter()
	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	key := w.generateS3Key("cool-cats", ts, "0123456789abcdef")

	if !strings.HasPrefix(key, "events/collection=cool-cats/year=2024/month=05/day=01/hour=09/") {
		t.Fatalf("unexpected partition path: %s", key)
	}
	if !strings.HasSuffix(key, ".parquet") {
		t.Fatalf("expected parquet filename, got %s", key)
	}
	if strings.Contains(key, "\\") {
		t.Fatalf("key must use forward slashes: %s", key)
	}
}

func TestCreateParquetFile(t *testing.T) {
	w := testWriter()
	batch := []events.CanonicalEvent{
		soldEvent("ethereum/0xabc/1", "cool-cats"),
		soldEvent("ethereum/0xabc/2", "cool-cats"),
	}
	data, size, err := w.createParquetFile(batch)
	if err != nil {
		t.Fatalf("createParquetFile: %v", err)
	}
	if size == 0 || int64(len(data)) != size {
		t.Fatalf("size mismatch: len=%d size=%d", len(data), size)
	}
	// parquet files end with the PAR1 magic
	if string(data[len(data)-4:]) != "PAR1" {
		t.Fatal("output is not a parquet file")
	}
}
