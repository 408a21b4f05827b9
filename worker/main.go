package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/region-news-map/internal/catalog"
	"github.com/DeafMist/region-news-map/internal/config"
	"github.com/DeafMist/region-news-map/internal/elasticsearch"
	"github.com/DeafMist/region-news-map/internal/geo"
	"github.com/DeafMist/region-news-map/internal/logger"
	"github.com/DeafMist/region-news-map/internal/models"
	"github.com/DeafMist/region-news-map/internal/processing"
	"github.com/DeafMist/region-news-map/internal/ttlcache"
)

type newsIndexer interface {
	IndexNews(ctx context.Context, doc models.NewsDocument) error
}

type seenCache = ttlcache.Cache[struct{}]

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = esClient.EnsureIndex(initCtx)
	cancel()
	if err != nil {
		log.Error("ensure index", slog.Any("err", err))
		os.Exit(1)
	}

	cache := ttlcache.New[struct{}](cfg.DedupeCapacity, cfg.DedupeTTL)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.KafkaTopic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", dlqTopic),
		slog.Bool("centroid_fallback", cfg.CentroidFallback),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, cache, cfg, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			sent, dlqErr := sendToDLQ(ctx, log, dlqWriter, msg, err)
			if dlqErr != nil {
				log.Info("context canceled during DLQ retry")
				return
			}
			// Without a DLQ copy the offset stays uncommitted so a restart reprocesses it.
			if !sent {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// sendToDLQ copies msg to the dead-letter topic with the failure attached, retrying with
// exponential backoff. It reports false when every attempt failed and returns an error
// only when ctx ends first.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) (bool, error) {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "original_topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := 0; attempt < dlqAttempts; attempt++ {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true, nil
		}

		backoff := dlqBackoff(attempt)
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, nil
}

const dlqAttempts = 5

var dlqBackoff = func(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func processMessage(ctx context.Context, log *slog.Logger, indexer newsIndexer, cache *seenCache, cfg *config.Worker, msg kafka.Message) error {
	var payload models.RawArticle
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	doc, err := buildDocument(payload, cfg)
	if err != nil {
		return err
	}

	if cache.Contains(doc.ID) {
		log.Debug("duplicate news", slog.String("id", doc.ID))
		return nil
	}

	if err := indexer.IndexNews(ctx, doc); err != nil {
		return err
	}

	cache.Set(doc.ID, struct{}{})
	log.Info("indexed news",
		slog.String("id", doc.ID),
		slog.String("region", doc.Region),
		slog.String("category", doc.Category),
		slog.Bool("located", doc.Location != nil),
	)
	return nil
}

// buildDocument normalises a raw article and fills in region, category and location
// from its text where the producer left them out.
func buildDocument(payload models.RawArticle, cfg *config.Worker) (models.NewsDocument, error) {
	title := strings.TrimSpace(processing.StripTags(payload.Title))
	text := strings.TrimSpace(processing.StripTags(payload.Description))
	if title == "" && text == "" {
		return models.NewsDocument{}, errors.New("empty payload")
	}
	if title == "" {
		title = processing.GenerateTitleFromText(text, 10)
	}

	ts := parseTimestamp(payload.Timestamp)
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	haystack := title + " " + text

	region, ok := catalog.LookupRegion(strings.TrimSpace(payload.Region))
	if !ok {
		if region, ok = catalog.DetectRegion(haystack); !ok {
			return models.NewsDocument{}, errors.New("region unknown and not detectable")
		}
	}

	category, ok := catalog.LookupCategory(strings.TrimSpace(payload.Category))
	if !ok {
		if category, ok = catalog.ClassifyCategory(haystack); !ok {
			return models.NewsDocument{}, errors.New("category unknown and not classifiable")
		}
	}

	var location *models.GeoPoint
	if pos, err := geo.Parse(payload.Lat, payload.Lng); err == nil {
		location = &models.GeoPoint{Lat: pos.Lat, Lon: pos.Lng}
	} else if cfg.CentroidFallback {
		location = &models.GeoPoint{Lat: region.Lat, Lon: region.Lng}
	}

	source := strings.TrimSpace(payload.Source)
	if source == "" {
		source = "unknown"
	}

	link := strings.TrimSpace(payload.Link)
	if link == "" {
		// Link-less items often carry the article URL in their body.
		if urls := processing.ExtractURLs(payload.Description); len(urls) > 0 {
			link = urls[0]
		}
	}

	cleaned := processing.CleanText(text)
	doc := models.NewsDocument{
		ID:          processing.BuildDocumentID(link, title, cleaned, ts),
		Title:       title,
		Description: processing.Summarize(text, cfg.DescriptionLimit),
		Link:        link,
		Region:      region.Name,
		Category:    category.Key,
		Location:    location,
		Keywords:    processing.ExtractKeywords(title+" "+cleaned, cfg.KeywordLimit, cfg.KeywordMinLength),
		Source:      source,
		Timestamp:   ts,
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	return doc, nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts.UTC()
		}
	}

	return time.Time{}
}
