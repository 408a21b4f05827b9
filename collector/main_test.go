package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/region-news-map/internal/config"
	"github.com/DeafMist/region-news-map/internal/logger"
	"github.com/DeafMist/region-news-map/internal/models"
	"github.com/DeafMist/region-news-map/internal/ttlcache"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:geo="http://www.w3.org/2003/01/geo/wgs84_pos#" xmlns:georss="http://www.georss.org/georss">
<channel>
  <title>지역 일보</title>
  <item>
    <title>부산 불꽃 축제 개막</title>
    <description><![CDATA[<p>광안리에서 불꽃 축제가 열린다.</p>]]></description>
    <link>https://news.example/fireworks</link>
    <pubDate>Sat, 03 Feb 2024 13:05:06 +0900</pubDate>
    <geo:lat>35.1532</geo:lat>
    <geo:long>129.1186</geo:long>
  </item>
  <item>
    <title>해운대 야간 공연</title>
    <link>https://news.example/concert</link>
    <georss:point>35.1587 129.1604</georss:point>
  </item>
  <item>
    <title></title>
    <description></description>
  </item>
</channel>
</rss>`

type recordingPublisher struct {
	msgs []kafka.Message
	err  error
}

func (p *recordingPublisher) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func newCollector(t *testing.T, pub *recordingPublisher) (*collector, config.Feed) {
	t.Helper()
	return serveFeed(t, pub, sampleFeed)
}

func serveFeed(t *testing.T, pub *recordingPublisher, body string) (*collector, config.Feed) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	feed := config.Feed{Region: "부산광역시", Category: "festivals", URL: srv.URL}
	return &collector{
		log:     logger.Discard(),
		parser:  gofeed.NewParser(),
		pub:     pub,
		feeds:   []config.Feed{feed},
		timeout: 5 * time.Second,
		seen:    ttlcache.New[struct{}](100, time.Hour),
	}, feed
}

func decode(t *testing.T, msg kafka.Message) models.RawArticle {
	t.Helper()
	var a models.RawArticle
	require.NoError(t, json.Unmarshal(msg.Value, &a))
	return a
}

func TestCollectFeedPublishesArticles(t *testing.T) {
	pub := &recordingPublisher{}
	c, feed := newCollector(t, pub)

	n, err := c.collectFeed(context.Background(), feed)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, pub.msgs, 2)

	first := decode(t, pub.msgs[0])
	require.Equal(t, "부산 불꽃 축제 개막", first.Title)
	require.Contains(t, first.Description, "광안리")
	require.Equal(t, "부산광역시", first.Region)
	require.Equal(t, "festivals", first.Category)
	require.Equal(t, "35.1532", first.Lat)
	require.Equal(t, "129.1186", first.Lng)
	require.Equal(t, "2024-02-03T04:05:06Z", first.Timestamp)
	require.Equal(t, "지역 일보", first.Source)
	require.Equal(t, "https://news.example/fireworks", string(pub.msgs[0].Key))

	second := decode(t, pub.msgs[1])
	require.Equal(t, "35.1587", second.Lat)
	require.Equal(t, "129.1604", second.Lng)
	require.Empty(t, second.Timestamp)
}

func TestCollectFeedSkipsAlreadyPublished(t *testing.T) {
	pub := &recordingPublisher{}
	c, feed := newCollector(t, pub)

	_, err := c.collectFeed(context.Background(), feed)
	require.NoError(t, err)

	n, err := c.collectFeed(context.Background(), feed)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, pub.msgs, 2)
}

func TestCollectFeedDropsRepeatsWithinOneFetch(t *testing.T) {
	const repeated = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>지역 일보</title>
  <item><title>부산 불꽃 축제 개막</title><link>https://news.example/fireworks</link></item>
  <item><title>부산 불꽃 축제 개막 (수정)</title><link>https://news.example/fireworks</link></item>
  <item><title>광안리 교통 통제</title></item>
  <item><title>광안리 교통 통제</title></item>
</channel>
</rss>`

	pub := &recordingPublisher{}
	c, feed := serveFeed(t, pub, repeated)

	n, err := c.collectFeed(context.Background(), feed)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, pub.msgs, 2)
	require.Equal(t, "https://news.example/fireworks", string(pub.msgs[0].Key))
	require.Equal(t, "부산 불꽃 축제 개막", decode(t, pub.msgs[0]).Title)
	require.Equal(t, "광안리 교통 통제", string(pub.msgs[1].Key))
}

func TestCollectFeedPublishFailureRetriesNextRun(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	c, feed := newCollector(t, pub)

	_, err := c.collectFeed(context.Background(), feed)
	require.Error(t, err)
	require.Zero(t, c.seen.Len())

	pub.err = nil
	n, err := c.collectFeed(context.Background(), feed)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRunOnceSkipsBrokenFeed(t *testing.T) {
	pub := &recordingPublisher{}
	c, feed := newCollector(t, pub)
	c.feeds = []config.Feed{{Region: "경기도", Category: "employment", URL: "http://127.0.0.1:1/rss"}, feed}

	c.runOnce(context.Background())
	require.Len(t, pub.msgs, 2)
}

func TestToRawArticleFallsBackToContent(t *testing.T) {
	item := &gofeed.Item{Title: " 제목 ", Content: "<p>본문</p>", Link: "https://n/1"}
	a := toRawArticle(config.Feed{Region: "경기도", Category: "employment"}, item, "src")

	require.Equal(t, "제목", a.Title)
	require.Equal(t, "<p>본문</p>", a.Description)
	require.Empty(t, a.Lat)
	require.Equal(t, "src", a.Source)
}
