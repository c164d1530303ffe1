package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
	"go.uber.org/zap"

	"github.com/jhyu-wv/mantisRssSync/models"
)

const (
	feedTimeout   = 30 * time.Second
	maxFeedSize   = 5 * 1024 * 1024
	feedUserAgent = "mantisRssSync/1.0"
)

var (
	// ErrUnknownFeedType はRSSでもAtomでもないフィードの場合のエラーです
	ErrUnknownFeedType = errors.New("フィード形式を判別できません")
	// ErrPartialFeed は解析エラーまでに閉じたエントリのみ復元できた場合のエラーです。
	// このエラーと一緒に返るエントリは有効です。
	ErrPartialFeed = errors.New("フィードの一部のみ解析できました")
)

// FeedReader はRSS/Atomフィードを取得して正規化します
type FeedReader struct {
	client  *http.Client
	logger  *zap.Logger
	maxSize int64
}

// NewFeedReader は新しいフィードリーダーを作成します
func NewFeedReader(logger *zap.Logger) *FeedReader {
	return NewFeedReaderWithClient(&http.Client{Timeout: feedTimeout}, logger)
}

// NewFeedReaderWithClient は任意のHTTPクライアントでフィードリーダーを作成します
func NewFeedReaderWithClient(client *http.Client, logger *zap.Logger) *FeedReader {
	return &FeedReader{client: client, logger: logger, maxSize: maxFeedSize}
}

// Fetch はフィードを取得し、エントリをFeedRecordとして返します。
// 取得・解析に失敗した場合はエラーを記録し空のスライスを返します。
// 途中で壊れたフィードは警告を記録し、復元できたエントリのみ返します。
func (f *FeedReader) Fetch(ctx context.Context, feedURL string) []models.FeedRecord {
	body, err := f.fetchBody(ctx, feedURL)
	if err != nil {
		f.logger.Error("RSSフィード処理失敗", zap.String("url", feedURL), zap.Error(err))
		return []models.FeedRecord{}
	}

	entries, err := ParseEntries(body)
	switch {
	case errors.Is(err, ErrPartialFeed):
		f.logger.Warn("RSSフィード解析警告: 途中までのエントリのみ取得しました",
			zap.String("url", feedURL),
			zap.Int("recovered", len(entries)),
			zap.Error(err))
	case err != nil:
		f.logger.Error("RSSフィード処理失敗", zap.String("url", feedURL), zap.Error(err))
		return []models.FeedRecord{}
	}

	records := make([]models.FeedRecord, 0, len(entries))
	for i, entry := range entries {
		if entry.Title == "" || entry.Link == "" {
			f.logger.Warn("RSSフィード解析警告: エントリの必須要素が欠けています",
				zap.Int("index", i),
				zap.Bool("missing_title", entry.Title == ""),
				zap.Bool("missing_link", entry.Link == ""))
		}
		records = append(records, entry.Project())
	}

	f.logger.Info("RSSアイテム取得", zap.Int("count", len(records)))
	return records
}

func (f *FeedReader) fetchBody(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成エラー: %w", err)
	}
	req.Header.Set("User-Agent", feedUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("フィード取得エラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("フィード取得エラー: HTTP %d", resp.StatusCode)
	}

	// 上限を1バイト超えて読み、切り詰めが起きたかを判定する
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("フィード読み込みエラー: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		f.logger.Warn("RSSフィードがサイズ上限を超えたため切り詰めました",
			zap.String("url", feedURL),
			zap.Int64("limit_bytes", f.maxSize))
		body = body[:f.maxSize]
	}
	return body, nil
}

// ParseEntries はフィード本文を解析し、形式に応じてRawEntryへ変換します。
// 厳密な解析に失敗した場合は閉じ終えたエントリだけで再解析し、
// 復元できたエントリと ErrPartialFeed を返します。
func ParseEntries(body []byte) ([]models.RawEntry, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS:
		entries, err := parseRSS(body)
		if err == nil {
			return entries, nil
		}
		if repaired, n := repairFeed(body, "item"); n > 0 {
			if recovered, rerr := parseRSS(repaired); rerr == nil {
				return recovered, fmt.Errorf("%w: %w", ErrPartialFeed, err)
			}
		}
		return nil, err

	case gofeed.FeedTypeAtom:
		entries, err := parseAtom(body)
		if err == nil {
			return entries, nil
		}
		if repaired, n := repairFeed(body, "entry"); n > 0 {
			if recovered, rerr := parseAtom(repaired); rerr == nil {
				return recovered, fmt.Errorf("%w: %w", ErrPartialFeed, err)
			}
		}
		return nil, err
	}

	return nil, ErrUnknownFeedType
}

func parseRSS(body []byte) ([]models.RawEntry, error) {
	parser := &rss.Parser{}
	feed, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("RSS解析エラー: %w", err)
	}
	entries := make([]models.RawEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, rssEntry(item))
	}
	return entries, nil
}

func parseAtom(body []byte) ([]models.RawEntry, error) {
	parser := &atom.Parser{}
	feed, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Atom解析エラー: %w", err)
	}
	entries := make([]models.RawEntry, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		entries = append(entries, atomEntry(entry))
	}
	return entries, nil
}

func rssEntry(item *rss.Item) models.RawEntry {
	entry := models.RawEntry{
		Title: item.Title,
		Link:  item.Link,
	}
	for _, c := range item.Categories {
		if c != nil && c.Value != "" {
			entry.Tags = append(entry.Tags, c.Value)
		}
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Subject) > 0 {
		entry.Category = &item.DublinCoreExt.Subject[0]
	}
	if item.Description != "" {
		entry.Description = &item.Description
	}
	if item.Content != "" {
		entry.Content = &models.RawContent{Text: item.Content}
	}
	return entry
}

func atomEntry(e *atom.Entry) models.RawEntry {
	entry := models.RawEntry{
		Title: e.Title,
		Link:  atomLink(e.Links),
	}
	for _, c := range e.Categories {
		if c != nil && c.Term != "" {
			entry.Tags = append(entry.Tags, c.Term)
		}
	}
	if e.Summary != "" {
		entry.Summary = &e.Summary
	}
	if e.Content != nil {
		entry.Content = &models.RawContent{
			IsList: true,
			Blocks: []models.ContentBlock{{Type: e.Content.Type, Value: e.Content.Value}},
		}
	}
	return entry
}

// atomLink は rel="alternate" (または rel 未指定) のリンクを優先して返します
func atomLink(links []*atom.Link) string {
	for _, l := range links {
		if l != nil && (l.Rel == "" || l.Rel == "alternate") {
			return l.Href
		}
	}
	for _, l := range links {
		if l != nil && l.Href != "" {
			return l.Href
		}
	}
	return ""
}
