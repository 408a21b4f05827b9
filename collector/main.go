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

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/region-news-map/internal/config"
	"github.com/DeafMist/region-news-map/internal/logger"
	"github.com/DeafMist/region-news-map/internal/models"
	"github.com/DeafMist/region-news-map/internal/ttlcache"
)

type feedParser interface {
	ParseURLWithContext(feedURL string, ctx context.Context) (*gofeed.Feed, error)
}

type publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("collector")
	cfg, err := config.LoadCollector()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic,
		Balancer:    &kafka.Hash{},
		MaxAttempts: 3,
	})
	defer writer.Close()

	parser := gofeed.NewParser()
	parser.UserAgent = "region-news-map-collector/1.0"

	c := &collector{
		log:     log,
		parser:  parser,
		pub:     writer,
		feeds:   cfg.Feeds,
		timeout: cfg.FetchTimeout,
		// Links published in recent polls are skipped.
		seen: ttlcache.New[struct{}](10_000, 4*cfg.Interval),
	}

	log.Info("collector started",
		slog.String("topic", cfg.KafkaTopic),
		slog.Int("feeds", len(cfg.Feeds)),
		slog.Duration("interval", cfg.Interval),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	c.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

type collector struct {
	log     *slog.Logger
	parser  feedParser
	pub     publisher
	feeds   []config.Feed
	timeout time.Duration
	seen    *ttlcache.Cache[struct{}]
}

// runOnce polls every feed. A failing feed is logged and skipped.
func (c *collector) runOnce(ctx context.Context) {
	total := 0
	for _, feed := range c.feeds {
		n, err := c.collectFeed(ctx, feed)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Warn("collect feed failed",
				slog.String("url", feed.URL),
				slog.String("region", feed.Region),
				slog.Any("err", err),
			)
			continue
		}
		total += n
	}
	c.log.Info("collection run completed", slog.Int("published", total))
}

func (c *collector) collectFeed(ctx context.Context, feed config.Feed) (int, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	parsed, err := c.parser.ParseURLWithContext(feed.URL, fetchCtx)
	if err != nil {
		return 0, fmt.Errorf("fetch feed: %w", err)
	}

	source := strings.TrimSpace(parsed.Title)
	if source == "" {
		source = feed.URL
	}

	msgs := make([]kafka.Message, 0, len(parsed.Items))
	var keys []string
	batch := make(map[string]struct{}, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		article := toRawArticle(feed, item, source)
		if article.Title == "" && article.Description == "" {
			continue
		}

		key := article.Link
		if key == "" {
			key = article.Title
		}
		if _, dup := batch[key]; dup || c.seen.Contains(key) {
			continue
		}
		batch[key] = struct{}{}

		value, err := json.Marshal(article)
		if err != nil {
			return 0, fmt.Errorf("marshal article: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(key), Value: value})
		keys = append(keys, key)
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := c.pub.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("publish articles: %w", err)
	}
	for _, key := range keys {
		c.seen.Set(key, struct{}{})
	}

	c.log.Debug("feed collected", slog.String("url", feed.URL), slog.Int("published", len(msgs)))
	return len(msgs), nil
}

// toRawArticle maps a feed item onto the ingest message. The feed's region and
// category are attached; geo:lat/geo:long or georss:point extensions supply coordinates.
func toRawArticle(feed config.Feed, item *gofeed.Item, source string) models.RawArticle {
	description := item.Description
	if strings.TrimSpace(description) == "" {
		description = item.Content
	}

	a := models.RawArticle{
		Title:       strings.TrimSpace(item.Title),
		Description: strings.TrimSpace(description),
		Link:        strings.TrimSpace(item.Link),
		Region:      feed.Region,
		Category:    feed.Category,
		Source:      source,
	}

	switch {
	case item.PublishedParsed != nil:
		a.Timestamp = item.PublishedParsed.UTC().Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		a.Timestamp = item.UpdatedParsed.UTC().Format(time.RFC3339)
	}

	a.Lat, a.Lng = itemCoordinates(item)
	return a
}

func itemCoordinates(item *gofeed.Item) (string, string) {
	if geo, ok := item.Extensions["geo"]; ok {
		lat, lng := extensionValue(geo, "lat"), extensionValue(geo, "long")
		if lat != "" && lng != "" {
			return lat, lng
		}
	}
	if georss, ok := item.Extensions["georss"]; ok {
		if parts := strings.Fields(extensionValue(georss, "point")); len(parts) == 2 {
			return parts[0], parts[1]
		}
	}
	return "", ""
}

func extensionValue(ns map[string][]ext.Extension, name string) string {
	values := ns[name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
